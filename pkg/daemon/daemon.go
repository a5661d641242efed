// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

// Package daemon assembles every control-plane subsystem into a single
// running lispd instance: the mapping store, nonce registry, timer wheel,
// socket multiplexer, forwarding cache, device dispatcher and the
// map-request/register/probe/info-request state machines all live on one
// Daemon value instead of package-level globals. A sasha-s/go-deadlock mutex
// guards that state against accidental reentrancy, even though the intended
// shape is a single event-loop goroutine doing all the touching — the same
// single-thread discipline original_source/lispd_tun.c's dispatch loop
// assumed by construction rather than enforcing at runtime.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	deadlock "github.com/sasha-s/go-deadlock"
	"golang.org/x/time/rate"

	"github.com/lispmob/lispd/pkg/afi"
	"github.com/lispmob/lispd/pkg/auth"
	"github.com/lispmob/lispd/pkg/config"
	"github.com/lispmob/lispd/pkg/ctrl"
	"github.com/lispmob/lispd/pkg/device"
	"github.com/lispmob/lispd/pkg/encap"
	"github.com/lispmob/lispd/pkg/fwdcache"
	"github.com/lispmob/lispd/pkg/ifwatch"
	"github.com/lispmob/lispd/pkg/logfields"
	"github.com/lispmob/lispd/pkg/mapdb"
	"github.com/lispmob/lispd/pkg/message"
	"github.com/lispmob/lispd/pkg/metrics"
	"github.com/lispmob/lispd/pkg/nonce"
	"github.com/lispmob/lispd/pkg/sockmux"
	"github.com/lispmob/lispd/pkg/status"
	"github.com/lispmob/lispd/pkg/timerwheel"
)

// negativeCacheTTL is how long a negative map-cache entry (installed when a
// Map-Request's retry budget is exhausted) is trusted before the next
// packet toward that EID triggers a fresh Map-Request.
const negativeCacheTTL = 15 * time.Second

// smrSubscriber is one peer that has been served a mapping for a prefix and
// therefore must be solicited (SMR) if that prefix's locator set changes.
type smrSubscriber struct {
	prefix message.EIDPrefix
	dest   netip.AddrPort
}

// Daemon holds every piece of runtime state for one lispd instance.
type Daemon struct {
	mu deadlock.Mutex

	cfg    *config.Config
	logger *slog.Logger

	store  *mapdb.Store
	nonces *nonce.Registry
	timers *timerwheel.Wheel
	fwd    *fwdcache.Cache
	dev    *device.Device

	mux *sockmux.Multiplexer

	mapReqMgr     *ctrl.MapRequestManager
	registerSched *ctrl.RegisterScheduler
	prober        *ctrl.Prober
	infoReq       *ctrl.InfoRequester
	smr           *ctrl.SMRManager
	ifwatch       *ifwatch.Watcher

	smrSubscribers map[string][]smrSubscriber

	statusSrv *status.Server

	authKey []byte
	authAlg auth.Algorithm
}

// New constructs a Daemon from cfg. It does not open any sockets; call
// Start for that.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	fwd, err := fwdcache.New(4096)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:            cfg,
		logger:         logger,
		store:          mapdb.New(),
		nonces:         nonce.New(),
		timers:         timerwheel.New(),
		fwd:            fwd,
		authAlg:        auth.HMACSHA256_128,
		smrSubscribers: make(map[string][]smrSubscriber),
	}
	if len(cfg.MapServers) > 0 {
		d.authKey = []byte(cfg.MapServers[0].Key)
	}

	d.dev = device.New(cfg.Mode, device.Handlers{
		OnMapRequest:  d.handleMapRequest,
		OnMapReply:    d.handleMapReply,
		OnMapRegister: d.handleMapRegister,
		OnMapNotify:   d.handleMapNotify,
		OnInfo:        d.handleInfo,
		OnECM:         d.handleECM,
	})

	return d, nil
}

// Start opens the UDP sockets, arms the periodic state machines, and begins
// the single-threaded event loop in a background goroutine.
func (d *Daemon) Start(ctx context.Context) error {
	mux, err := sockmux.Listen(sockmux.Config{
		Port:       sockmux.DefaultPort,
		EnableIPv4: true,
		EnableIPv6: true,
		MTU:        d.cfg.MTU,
		SendRate:   rate.Limit(200),
		SendBurst:  50,
		OnDrop:     func(reason string, size int) { metrics.RecordDrop(reason) },
	})
	if err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	d.mux = mux

	d.mapReqMgr = ctrl.NewMapRequestManager(d.nonces, d.timers, d.sendMapRequest, d.onMapRequestGiveUp, 2, 2*time.Second, 8*time.Second)
	d.prober = ctrl.NewProber(d.nonces, d.timers, d.sendProbe, d.onProbeStatusChange, d.cfg.RLOCProbingInterval, 5*time.Second, d.cfg.RLOCProbingRetries)
	d.infoReq = ctrl.NewInfoRequester(d.nonces, d.timers, d.sendInfoRequest, d.cfg.InfoRequestInterval, d.onMapRegisterNeeded)
	d.registerSched = ctrl.NewRegisterScheduler(d.timers, d.cfg.MapRegisterInterval, d.sendMapRegister)
	d.smr = ctrl.NewSMRManager(d.timers, d.sendSMR, d.listSMRTargets)

	if watcher := ifwatch.New(d); watcher.Start() == nil {
		d.ifwatch = watcher
	} else {
		d.logger.Warn("interface watch unavailable; SMR will not trigger on link/address changes")
	}

	now := time.Now()
	d.registerSched.Start(now)
	if _, err := d.infoReq.Start(now); err != nil {
		d.logger.Warn("initial info-request failed", logfields.Error, err)
	}

	go d.loop(ctx)
	return nil
}

// ServeStatus binds the diagnostics socket at path.
func (d *Daemon) ServeStatus(path string) error {
	srv, err := status.Serve(path, d.Snapshot, d.logger)
	if err != nil {
		return err
	}
	d.statusSrv = srv
	return nil
}

// RegisterMetrics registers lispd's collectors against reg.
func (d *Daemon) RegisterMetrics(reg prometheus.Registerer) {
	metrics.MustRegister(reg)
}

func (d *Daemon) loop(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case dgram, ok := <-d.mux.Incoming():
			if !ok {
				return
			}
			d.mu.Lock()
			d.handleDatagram(dgram)
			d.mu.Unlock()
		case now := <-ticker.C:
			d.mu.Lock()
			d.timers.Fire(now)
			metrics.SetOutstandingNonces(d.nonces.Len())
			d.mu.Unlock()
		}
	}
}

func (d *Daemon) handleDatagram(dgram sockmux.Datagram) {
	msg, err := message.Parse(dgram.Payload)
	if err != nil {
		d.logger.Warn("dropping malformed datagram", logfields.RemoteAddr, dgram.From.String(), logfields.Error, err)
		metrics.RecordDrop("malformed")
		return
	}
	if err := d.verifyInbound(msg, dgram.Payload); err != nil {
		d.logger.Warn("dropping message with invalid auth", logfields.RemoteAddr, dgram.From.String(), logfields.MsgType, msg.Type().String(), logfields.Error, err)
		metrics.RecordDrop("auth")
		return
	}
	if err := d.dev.Dispatch(msg, dgram.From); err != nil {
		d.logger.Warn("dispatch failed", logfields.MsgType, msg.Type().String(), logfields.Error, err)
	}
}

// verifyInbound checks the HMAC on the message kinds that carry one
// (Map-Register, and a received Info-Reply) before any handler is allowed
// to mutate state from it. Messages of any other kind, or carried with no
// configured auth key, pass through unchecked — there is nothing to verify
// them against.
func (d *Daemon) verifyInbound(msg message.Message, raw []byte) error {
	if len(d.authKey) == 0 {
		return nil
	}
	switch m := msg.(type) {
	case *message.MapRegister:
		return auth.Verify(d.authAlg, d.authKey, message.MsgMapRegister, raw)
	case *message.InfoMessage:
		if !m.IsReply {
			return nil
		}
		return auth.Verify(d.authAlg, d.authKey, message.MsgInfo, raw)
	default:
		return nil
	}
}

// Snapshot reports the daemon's current diagnostic state for the status
// socket.
func (d *Daemon) Snapshot() status.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	outstandingReqs, outstandingProbes := 0, 0
	if d.mapReqMgr != nil {
		outstandingReqs = d.mapReqMgr.Outstanding()
	}
	if d.prober != nil {
		outstandingProbes = d.prober.Outstanding()
	}
	natStatus := ""
	if d.infoReq != nil {
		natStatus = d.infoReq.Status().String()
	}

	return status.Snapshot{
		NATStatus:              natStatus,
		OutstandingMapRequests: outstandingReqs,
		OutstandingProbes:      outstandingProbes,
		LocalEntries:           d.store.LocalLen(),
		MapCacheEntries:        d.store.CacheLen(),
	}
}

// Stop closes every open socket and server.
func (d *Daemon) Stop() {
	if d.mux != nil {
		_ = d.mux.Close()
	}
	if d.statusSrv != nil {
		_ = d.statusSrv.Close()
	}
	if d.registerSched != nil {
		d.registerSched.Stop()
	}
	if d.ifwatch != nil {
		d.ifwatch.Stop()
	}
}

// --- outbound send callbacks, wired into the ctrl state machines ---

// sendMapRequest wraps the Map-Request in an Encapsulated Control Message
// and sends it from the mandated source port (0xF000 | (nonce & 0x0FFF)),
// so a reply can be correlated back to the request even through a NAT's
// port remapping.
func (d *Daemon) sendMapRequest(nonceVal uint64, target message.EIDPrefix, dest netip.AddrPort) error {
	req := &message.MapRequest{
		MapReplyWanted: true,
		Nonce:          nonceVal,
		Records:        []message.EIDPrefixRecord{{MaskLen: target.MaskLen, EID: target.Address}},
	}
	if err := encap.ValidateITRRLOCs(req.ITRRLOCs); err != nil {
		return err
	}
	encoded, err := message.Encode(req)
	if err != nil {
		return err
	}
	wrapped, err := message.Encode(encap.WrapECM(encoded, false, nil))
	if err != nil {
		return err
	}
	return d.mux.SendFrom(context.Background(), encap.SourcePort(nonceVal), dest, wrapped)
}

// onMapRequestGiveUp installs a short-lived negative map-cache entry for
// target once its Map-Request retry budget is exhausted: Action carries
// ActionSendMapRequest so a packet toward target during the negative-cache
// window triggers a fresh Map-Request rather than silently reusing a stale
// decision.
func (d *Daemon) onMapRequestGiveUp(target message.EIDPrefix) {
	d.logger.Warn("map-request retries exhausted", logfields.EIDPrefix, target.Address.String())

	rec := message.MappingRecord{
		EIDMaskLen: target.MaskLen,
		EID:        target.Address,
		IID:        target.IID,
		HasIID:     target.HasIID,
		Action:     message.ActionSendMapRequest,
	}
	expiry := time.Now().Add(negativeCacheTTL)
	if err := d.store.AddCache(target, rec, expiry); err != nil {
		d.logger.Warn("negative cache insert failed", logfields.EIDPrefix, target.Address.String(), logfields.Error, err)
		return
	}
	d.invalidateForwarding(target)
}

func (d *Daemon) sendProbe(nonceVal uint64, locator netip.Addr) error {
	req := &message.MapRequest{Probe: true, Nonce: nonceVal}
	encoded, err := message.Encode(req)
	if err != nil {
		return err
	}
	dest := netip.AddrPortFrom(locator, sockmux.DefaultPort)
	return d.mux.Send(context.Background(), dest, encoded)
}

// onProbeStatusChange records a locator's new reachability against every
// map-cache entry that lists it, and invalidates the memoized forwarding
// decision for each prefix that actually changed, so the next packet picks
// up the next-best locator rather than a stale one.
func (d *Daemon) onProbeStatusChange(locator netip.Addr, reachable bool) {
	state := mapdb.LocatorDown
	label := "unreachable"
	if reachable {
		state = mapdb.LocatorUp
		label = "reachable"
	}
	metrics.RecordLocatorTransition(locator.String(), label)
	d.logger.Info("locator reachability changed", logfields.Locator, locator.String(), logfields.LocatorState, label)

	for _, prefix := range d.store.UpdateLocatorState(locator, state) {
		d.invalidateForwarding(prefix)
	}
}

func (d *Daemon) invalidateForwarding(prefix message.EIDPrefix) {
	addr, ok := afi.AddrOf(prefix.Address)
	if !ok {
		return
	}
	var iid uint32
	if prefix.HasIID {
		iid = prefix.IID
	}
	d.fwd.Invalidate(fwdcache.Key{IID: iid, HasIID: prefix.HasIID, Addr: addr})
}

// ForwardingDecision returns the locator to use for target, consulting the
// memoized decision cache first and falling back to a fresh map-cache
// lookup on a miss, memoizing the result before returning it.
func (d *Daemon) ForwardingDecision(now time.Time, target message.EIDPrefix) (fwdcache.Decision, bool) {
	addr, ok := afi.AddrOf(target.Address)
	if !ok {
		return fwdcache.Decision{}, false
	}
	var iid uint32
	if target.HasIID {
		iid = target.IID
	}
	key := fwdcache.Key{IID: iid, HasIID: target.HasIID, Addr: addr}

	if dec, ok := d.fwd.Get(key, now); ok {
		return dec, true
	}

	entry, ok := d.store.LookupCache(iid, target.HasIID, addr)
	if !ok || !entry.ExpiresAt.After(now) {
		return fwdcache.Decision{}, false
	}

	// A negative cache entry (installed by onMapRequestGiveUp) carries no
	// locators at all — its whole purpose is the Action, telling the
	// caller to issue a fresh Map-Request rather than forward natively.
	if entry.Mapping.Action == message.ActionSendMapRequest {
		dec := fwdcache.Decision{Action: int(entry.Mapping.Action), ExpiresAt: entry.ExpiresAt}
		d.fwd.Put(key, dec)
		return dec, true
	}

	locator, ok := bestLocator(entry.Mapping.Locators)
	if !ok {
		return fwdcache.Decision{}, false
	}

	dec := fwdcache.Decision{Locator: locator, Action: int(entry.Mapping.Action), ExpiresAt: entry.ExpiresAt}
	d.fwd.Put(key, dec)
	return dec, true
}

// bestLocator picks the lowest-priority (highest-preference) locator that
// isn't known Down.
func bestLocator(locs []mapdb.Locator) (netip.Addr, bool) {
	best := -1
	var bestAddr netip.Addr
	for _, l := range locs {
		if l.State == mapdb.LocatorDown {
			continue
		}
		addr, ok := afi.AddrOf(l.Record.Addr)
		if !ok {
			continue
		}
		if best == -1 || int(l.Record.Priority) < best {
			best = int(l.Record.Priority)
			bestAddr = addr
		}
	}
	return bestAddr, best != -1
}

func (d *Daemon) sendInfoRequest(nonceVal uint64) error {
	if len(d.cfg.MapResolvers) == 0 {
		return fmt.Errorf("daemon: no map-resolver configured for info-request")
	}
	info := &message.InfoMessage{Nonce: nonceVal, KeyID: d.mapServerKeyID()}
	encoded, err := message.Encode(info)
	if err != nil {
		return err
	}
	resolver, err := netip.ParseAddr(d.cfg.MapResolvers[0])
	if err != nil {
		return err
	}
	return d.mux.Send(context.Background(), netip.AddrPortFrom(resolver, sockmux.DefaultPort), encoded)
}

func (d *Daemon) sendMapRegister(now time.Time) {
	if len(d.cfg.MapServers) == 0 {
		return
	}
	width, err := d.authAlg.Width()
	if err != nil {
		d.logger.Warn("map-register auth width unavailable", logfields.Error, err)
		return
	}

	reg := &message.MapRegister{}
	reg.WantMapNotify = true
	reg.KeyID = d.mapServerKeyID()
	reg.AuthData = make([]byte, width) // zeroed until signed below

	encoded, err := message.Encode(reg)
	if err != nil {
		d.logger.Warn("map-register encode failed", logfields.Error, err)
		return
	}
	if len(d.authKey) > 0 {
		if signed, err := auth.Sign(d.authAlg, d.authKey, message.MsgMapRegister, encoded); err == nil {
			encoded = signed
		}
	}

	ms, err := netip.ParseAddr(d.cfg.MapServers[0].Address)
	if err != nil {
		d.logger.Warn("map-server address invalid", logfields.MapServer, d.cfg.MapServers[0].Address, logfields.Error, err)
		return
	}
	if err := d.mux.Send(context.Background(), netip.AddrPortFrom(ms, sockmux.DefaultPort), encoded); err != nil {
		d.logger.Warn("map-register send failed", logfields.Error, err)
	}
}

func (d *Daemon) mapServerKeyID() uint16 {
	if len(d.cfg.MapServers) == 0 {
		return 0
	}
	return d.cfg.MapServers[0].KeyID
}

func (d *Daemon) onMapRegisterNeeded() {
	if d.registerSched != nil {
		d.registerSched.TriggerNow(time.Now())
	}
}

// --- SMR wiring: OnLinkChange/OnAddressChange implement ifwatch.Collaborator ---

func (d *Daemon) OnLinkChange(name string, index int, up bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.smr != nil {
		d.smr.LocalMappingsChanged(time.Now())
	}
}

func (d *Daemon) OnAddressChange(index int, prefix netip.Prefix, added bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.smr != nil {
		d.smr.LocalMappingsChanged(time.Now())
	}
}

func eidKey(p message.EIDPrefix) string {
	addr := p.Address
	if addr == nil {
		addr = afi.NoAddress{}
	}
	return fmt.Sprintf("%d:%t:%d:%x", p.IID, p.HasIID, p.MaskLen, addr.Encode())
}

// recordSMRSubscriber remembers that dest was served a reply for prefix, so
// a later SMR round knows to solicit it.
func (d *Daemon) recordSMRSubscriber(prefix message.EIDPrefix, dest netip.AddrPort) {
	key := eidKey(prefix)
	for _, sub := range d.smrSubscribers[key] {
		if sub.dest == dest {
			return
		}
	}
	d.smrSubscribers[key] = append(d.smrSubscribers[key], smrSubscriber{prefix: prefix, dest: dest})
}

// listSMRTargets is only ever called from within an SMRManager callback,
// which in turn only ever fires from inside d.timers.Fire under d.loop's
// lock — it must not take d.mu itself, or a goroutine already holding it
// would deadlock against its own non-reentrant lock.
func (d *Daemon) listSMRTargets() []ctrl.SMRTarget {
	var targets []ctrl.SMRTarget
	for _, subs := range d.smrSubscribers {
		for _, sub := range subs {
			targets = append(targets, ctrl.SMRTarget{Prefix: sub.prefix, Dest: sub.dest})
		}
	}
	return targets
}

// sendSMR emits an SMR-flagged Map-Request for target to dest, soliciting
// the peer to re-request the mapping.
func (d *Daemon) sendSMR(target message.EIDPrefix, dest netip.AddrPort) error {
	req := &message.MapRequest{
		SMR:     true,
		Records: []message.EIDPrefixRecord{{MaskLen: target.MaskLen, EID: target.Address}},
	}
	encoded, err := message.Encode(req)
	if err != nil {
		return err
	}
	return d.mux.Send(context.Background(), dest, encoded)
}

// --- inbound handlers, wired into the device dispatcher ---

func (d *Daemon) handleMapRequest(m *message.MapRequest, from netip.AddrPort) error {
	for _, rec := range m.Records {
		addr, ok := afi.AddrOf(rec.EID)
		if !ok {
			continue
		}
		mapping, found := d.store.LookupLocal(0, false, addr)
		if !found {
			continue
		}

		prefix := message.EIDPrefix{Address: rec.EID, MaskLen: rec.MaskLen}
		if m.SMRInvoked && d.smr != nil {
			d.smr.Acknowledge(prefix)
		}
		d.recordSMRSubscriber(prefix, from)

		reply := &message.MapReply{Nonce: m.Nonce, Records: []message.MappingRecord{mapping.ToRecord()}}
		encoded, err := message.Encode(reply)
		if err != nil {
			return err
		}
		if err := d.mux.Send(context.Background(), from, encoded); err != nil {
			return err
		}
	}
	return nil
}

func (d *Daemon) handleMapReply(m *message.MapReply, from netip.AddrPort) error {
	if m.Probe {
		_, ok := d.prober.HandleReply(m.Nonce, time.Now())
		if !ok {
			return fmt.Errorf("daemon: probe reply nonce mismatch")
		}
		return nil
	}

	target, ok := d.mapReqMgr.HandleReply(m.Nonce)
	if !ok {
		return fmt.Errorf("daemon: map-reply nonce mismatch")
	}
	for _, rec := range m.Records {
		expiry := time.Now().Add(time.Duration(rec.TTLMinutes) * time.Minute)
		if err := d.store.AddCache(target, rec, expiry); err != nil {
			return err
		}
	}
	d.invalidateForwarding(target)
	return nil
}

// handleMapRegister inserts every carried record into the local store,
// notifying the registrant if it asked to be. It does no HMAC check of its
// own: verifyInbound has already verified the register before dispatch.
func (d *Daemon) handleMapRegister(m *message.MapRegister, from netip.AddrPort) error {
	for _, rec := range m.Records {
		prefix := message.EIDPrefix{Address: rec.EID, MaskLen: rec.EIDMaskLen, HasIID: rec.HasIID, IID: rec.IID}
		if err := d.store.AddLocal(prefix, rec); err != nil {
			return err
		}
	}
	if !m.WantMapNotify {
		return nil
	}
	notify := &message.MapNotify{}
	notify.Nonce = m.Nonce
	notify.KeyID = m.KeyID
	notify.AuthData = m.AuthData
	notify.Records = m.Records
	encoded, err := message.Encode(notify)
	if err != nil {
		return err
	}
	return d.mux.Send(context.Background(), from, encoded)
}

func (d *Daemon) handleMapNotify(m *message.MapNotify, from netip.AddrPort) error {
	d.logger.Debug("map-notify received", logfields.RemoteAddr, from.String())
	return nil
}

func (d *Daemon) handleInfo(m *message.InfoMessage, from netip.AddrPort) error {
	if !m.IsReply {
		return nil
	}
	// Auth on a received info-reply is already checked in verifyInbound
	// before Dispatch; an outbound info-request carries no auth data to
	// verify on our end.
	result, err := d.infoReq.ProcessReply(m)
	if err != nil {
		return err
	}
	metrics.SetNATStatus(result.Status.String())
	return nil
}

// handleECM unwraps an Encapsulated Control Message and, for an RTR-mode
// device, re-emits the inner Map-Request toward the configured map-resolver
// after verifying its RTR-auth field rather than dispatching it locally —
// RTR decap + RTR-auth verify + re-emit, per its personality. Every other
// mode dispatches the inner message as if it had arrived unwrapped.
func (d *Daemon) handleECM(m *message.EncapControlMessage, from netip.AddrPort) error {
	inner, err := message.Parse(m.Inner)
	if err != nil {
		return err
	}
	if err := d.verifyInbound(inner, m.Inner); err != nil {
		d.logger.Warn("dropping ecm-wrapped message with invalid auth", logfields.RemoteAddr, from.String(), logfields.Error, err)
		metrics.RecordDrop("auth")
		return nil
	}

	if d.dev.Mode != device.ModeRTR {
		return d.dev.Dispatch(inner, from)
	}
	return d.relayECM(m, inner, from)
}

// verifyRTRAuth checks an ECM's RTR-auth field, which covers the inner
// message bytes directly rather than any wire layout message.AuthDataRange
// describes — it sits outside the inner message entirely, added by the
// RTR's peer specifically so the RTR can prove the relay is authorized.
func (d *Daemon) verifyRTRAuth(m *message.EncapControlMessage) error {
	if m.RTRAuth == nil || len(d.authKey) == 0 {
		return nil
	}
	return auth.VerifyRaw(d.authAlg, d.authKey, m.Inner, m.RTRAuth.AuthData)
}

func (d *Daemon) relayECM(m *message.EncapControlMessage, inner message.Message, from netip.AddrPort) error {
	if err := d.verifyRTRAuth(m); err != nil {
		d.logger.Warn("dropping ecm with invalid rtr-auth", logfields.RemoteAddr, from.String(), logfields.Error, err)
		metrics.RecordDrop("rtr-auth")
		return nil
	}

	req, ok := inner.(*message.MapRequest)
	if !ok || len(d.cfg.MapResolvers) == 0 {
		return d.dev.Dispatch(inner, from)
	}

	resolver, err := netip.ParseAddr(d.cfg.MapResolvers[0])
	if err != nil {
		return err
	}
	encoded, err := message.Encode(req)
	if err != nil {
		return err
	}
	return d.mux.Send(context.Background(), netip.AddrPortFrom(resolver, sockmux.DefaultPort), encoded)
}
