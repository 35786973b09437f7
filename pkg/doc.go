// Package pkg provides shared utilities for the uotghs host controller driver.
//
// This package contains common functionality used across the host, hal and
// simulator packages, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error values for resource, request and transport failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component tag:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentHost, "device addressed", "address", 1)
//
// Logging must never be used from interrupt context. Handlers may lock and
// allocate.
//
// # Errors
//
// Errors are sentinel values grouped by the failure they describe:
//
//	if errors.Is(err, pkg.ErrOutOfPipes) {
//	    // every channel is bound to an endpoint
//	}
//
// Transport failures returned by the host always match [ErrTransfer] and
// additionally one of [ErrNAK], [ErrStall], [ErrProtocol] or [ErrTimeout].
package pkg
