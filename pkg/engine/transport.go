// Package engine implements the client side of the impairment engine's control API.
package engine

import (
	"context"

	"github.com/impairlab/impairctl/pkg/impairment"
	"github.com/impairlab/impairctl/pkg/stats"
)

// Names of the control operations, used in errors and logs
const (
	OpFetchConfig  = "fetch-config"
	OpSubmitConfig = "submit-config"
	OpStart        = "start"
	OpStop         = "stop"
	OpFetchStats   = "fetch-stats"
	OpResetStats   = "reset-stats"
)

// Status values returned by the engine
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
	StatusOK      = "ok"
)

// Transport executes the engine control operations. Each call is a single
// request/response exchange without retries. A failed call returns either a
// *TransportError, meaning the outcome of the operation is unknown, or a
// *ProtocolError, meaning the engine rejected it.
type Transport interface {
	// FetchConfig returns the configuration held by the engine
	FetchConfig(ctx context.Context) (impairment.Config, error)
	// SubmitConfig updates the configuration held by the engine without starting it
	SubmitConfig(ctx context.Context, config impairment.Config) error
	// SubmitStart starts the engine with the given configuration. Returns nil
	// only if the engine confirmed it is running.
	SubmitStart(ctx context.Context, config impairment.Config) error
	// SubmitStop stops the engine. Returns nil only if the engine confirmed it is stopped.
	SubmitStop(ctx context.Context) error
	// FetchStats returns the current statistics
	FetchStats(ctx context.Context) (stats.Snapshot, error)
	// ResetStats sets the engine counters to zero
	ResetStats(ctx context.Context) error
}
