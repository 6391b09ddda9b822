// Package scheduler drives the periodic scan: refresh borrowers, read and
// evaluate each one, then execute admissible liquidations in profit order.
package scheduler

import (
	"github.com/alanyoungcy/liquidbot/internal/directory"
	"github.com/alanyoungcy/liquidbot/internal/ledger"
	"github.com/alanyoungcy/liquidbot/internal/market"
	"github.com/alanyoungcy/liquidbot/internal/strategy"
)

// EngineState is the state shared across ticks. The scheduler owns it; the
// HTTP server only reads through the directory's and ledger's own locking.
type EngineState struct {
	Directory  *directory.Directory
	Ledger     *ledger.Ledger
	Markets    *market.Registry
	Thresholds strategy.Thresholds
}
