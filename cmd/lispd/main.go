// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

// Command lispd runs the LISP control-plane daemon.
package main

import (
	"log/slog"
	"os"

	"github.com/lispmob/lispd/daemon/cmd"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := cmd.NewDaemonCommand(logger).Execute(); err != nil {
		logger.Error("lispd exited with error", "error", err)
		os.Exit(1)
	}
}
