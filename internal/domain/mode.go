package domain

import "fmt"

// RunMode selects how the platform executes a strategy.
type RunMode string

const (
	// ModeBacktest replays historical data deterministically.
	ModeBacktest RunMode = "backtest"
	// ModeLive routes orders to the broker with real money.
	ModeLive RunMode = "live"
	// ModeLivePaper consumes live data but fills orders locally.
	ModeLivePaper RunMode = "live_paper"
)

// ParseRunMode validates a mode string coming from config or the wire.
func ParseRunMode(s string) (RunMode, error) {
	switch RunMode(s) {
	case ModeBacktest, ModeLive, ModeLivePaper:
		return RunMode(s), nil
	default:
		return "", fmt.Errorf("domain: unknown run mode %q", s)
	}
}

// IsLive reports whether the mode consumes a live data feed.
func (m RunMode) IsLive() bool {
	return m == ModeLive || m == ModeLivePaper
}
