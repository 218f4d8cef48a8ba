package domain

// TradingMode selects which broker the coordinator drives.
type TradingMode string

const (
	ModePaper TradingMode = "PAPER"
	ModeLive  TradingMode = "LIVE"
)

// BotConfig is the dynamic, operator-controlled trading configuration. It is
// polled from the config store on a cooldown; the coordinator holds a
// read-only snapshot per cycle.
type BotConfig struct {
	Mode             TradingMode `json:"mode"`
	ExecutionEnabled bool        `json:"execution_enabled"`
	KillSwitch       bool        `json:"kill_switch"`

	MinEdge   float64 `json:"min_edge"`
	FeeBuffer float64 `json:"fee_buffer"`
	MinShares int     `json:"min_shares"`
	MaxFillMs int     `json:"max_fill_ms"`

	MaxUsdPerTrade   float64 `json:"max_usd_per_trade"`
	MaxOpenUsdTotal  float64 `json:"max_open_usd_total"`
	MaxDailyLossUsd  float64 `json:"max_daily_loss_usd"`
	MaxTradesPerHour int     `json:"max_trades_per_hour"`
}

// SafeDefaults returns the fallback BotConfig used whenever the config store
// is unreachable or returns garbage. It must never fail open: kill switch on,
// paper mode, execution disabled.
func SafeDefaults() BotConfig {
	return BotConfig{
		Mode:             ModePaper,
		ExecutionEnabled: false,
		KillSwitch:       true,
		MinEdge:          0.02,
		FeeBuffer:        0.01,
		MinShares:        50,
		MaxFillMs:        1500,
		MaxUsdPerTrade:   25,
		MaxOpenUsdTotal:  200,
		MaxDailyLossUsd:  100,
		MaxTradesPerHour: 60,
	}
}
