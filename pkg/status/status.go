// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

// Package status implements the diagnostics surface: a Unix-domain socket
// that, on each connection, dumps a JSON snapshot of the daemon's NAT
// state, outstanding requests and map-cache/local-DB sizes. Uses the same
// log/slog + logfields call shape as the rest of lispd's structured
// logging, with google/uuid correlating each query in the log with the
// response it produced.
package status

import (
	"encoding/json"
	"log/slog"
	"net"
	"os"

	"github.com/google/uuid"

	"github.com/lispmob/lispd/pkg/logfields"
)

// Snapshot is the diagnostic state reported on each query.
type Snapshot struct {
	NATStatus              string `json:"natStatus"`
	OutstandingMapRequests int    `json:"outstandingMapRequests"`
	OutstandingProbes      int    `json:"outstandingProbes"`
	LocalEntries           int    `json:"localEntries"`
	MapCacheEntries        int    `json:"mapCacheEntries"`
}

// SourceFunc produces a fresh Snapshot on demand.
type SourceFunc func() Snapshot

// Server serves Snapshot over a Unix-domain socket, one JSON document per
// connection.
type Server struct {
	listener net.Listener
	source   SourceFunc
	logger   *slog.Logger
}

// Serve binds path (removing any stale socket file first) and starts
// accepting status queries in a background goroutine.
func Serve(path string, source SourceFunc, logger *slog.Logger) (*Server, error) {
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}

	s := &Server{listener: ln, source: source, logger: logger}
	go s.acceptLoop()
	return s, nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // listener closed
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	id := uuid.New()
	snap := s.source()

	if err := json.NewEncoder(conn).Encode(snap); err != nil {
		s.logger.Warn("status query failed", logfields.CorrelationID, id.String(), logfields.Error, err)
		return
	}
	s.logger.Debug("status query served", logfields.CorrelationID, id.String(), logfields.NATStatus, snap.NATStatus)
}

// Close stops accepting new status queries.
func (s *Server) Close() error { return s.listener.Close() }
