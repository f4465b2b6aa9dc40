package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"trend-grid-bot-go/internal/models"
)

// LoadConfig 从指定路径加载JSON配置文件并解析到Config结构体中
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	config := &models.Config{}
	if err := decoder.Decode(config); err != nil {
		return nil, err
	}

	applyDefaults(config)

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

func applyDefaults(cfg *models.Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = "data/state"
	}
	if cfg.LiveAPIURL == "" {
		cfg.LiveAPIURL = "https://fapi.binance.com"
	}
	if cfg.LiveWSURL == "" {
		cfg.LiveWSURL = "wss://fstream.binance.com"
	}
	if cfg.TestnetAPIURL == "" {
		cfg.TestnetAPIURL = "https://testnet.binancefuture.com"
	}
	if cfg.TestnetWSURL == "" {
		cfg.TestnetWSURL = "wss://stream.binancefuture.com"
	}
	if cfg.Grid.LevelsPerSide == 0 {
		cfg.Grid.LevelsPerSide = 3
	}
	if cfg.Grid.MaxTotalOrders == 0 {
		cfg.Grid.MaxTotalOrders = 2 * cfg.Grid.LevelsPerSide
	}
	if cfg.Grid.ReactivationMode == "" {
		cfg.Grid.ReactivationMode = models.ReactivateFullCycle
	}
	if cfg.Grid.TickSize == "" {
		cfg.Grid.TickSize = "0.01"
	}
	if cfg.Grid.StepSize == "" {
		cfg.Grid.StepSize = "0.001"
	}
	if cfg.MACD.FastPeriod == 0 {
		cfg.MACD.FastPeriod = 12
	}
	if cfg.MACD.SlowPeriod == 0 {
		cfg.MACD.SlowPeriod = 26
	}
	if cfg.MACD.SignalPeriod == 0 {
		cfg.MACD.SignalPeriod = 9
	}
	if cfg.MACD.BullishRule == "" {
		cfg.MACD.BullishRule = models.MACDLinesAboveZero
	}
	if cfg.EMA.Epsilon == 0 {
		cfg.EMA.Epsilon = 1e-9
	}
	if cfg.DynamicTP.CheckIntervalSec == 0 {
		cfg.DynamicTP.CheckIntervalSec = 60
	}
	if cfg.Stream.HeartbeatTimeoutSec == 0 {
		cfg.Stream.HeartbeatTimeoutSec = 60
	}
	if cfg.Stream.ReconnectCeilingSec == 0 {
		cfg.Stream.ReconnectCeilingSec = 60
	}
	if cfg.Stream.ViolationThreshold == 0 {
		cfg.Stream.ViolationThreshold = 10
	}
	if cfg.Stream.CloseGraceSec == 0 {
		cfg.Stream.CloseGraceSec = 5
	}
	if cfg.Stream.ListenKeyRefreshMin == 0 {
		cfg.Stream.ListenKeyRefreshMin = 15
	}
	if cfg.TickIntervalSec == 0 {
		cfg.TickIntervalSec = 5
	}
}

// Validate rejects configurations the engine must never run with. A rejected
// config is reported before it is applied; the current cycle keeps its prior
// valid configuration.
func Validate(cfg *models.Config) error {
	if cfg.Symbol == "" {
		return fmt.Errorf("config: symbol is required")
	}
	if cfg.Grid.GridSpacing <= 0 {
		return fmt.Errorf("config: grid_spacing must be > 0, got %v", cfg.Grid.GridSpacing)
	}
	if cfg.Grid.GridQuantity <= 0 {
		return fmt.Errorf("config: grid_quantity must be > 0, got %v", cfg.Grid.GridQuantity)
	}
	if cfg.Grid.LevelsPerSide < 1 {
		return fmt.Errorf("config: levels_per_side must be >= 1, got %d", cfg.Grid.LevelsPerSide)
	}
	if cfg.Grid.Leverage < 1 {
		return fmt.Errorf("config: leverage must be >= 1, got %d", cfg.Grid.Leverage)
	}
	switch cfg.Grid.ReactivationMode {
	case models.ReactivateImmediate, models.ReactivateFullCycle:
	default:
		return fmt.Errorf("config: unknown reactivation_mode %q", cfg.Grid.ReactivationMode)
	}
	for name, size := range map[string]string{
		"tick_size": cfg.Grid.TickSize,
		"step_size": cfg.Grid.StepSize,
	} {
		d, err := decimal.NewFromString(size)
		if err != nil || !d.IsPositive() {
			return fmt.Errorf("config: %s must be a positive decimal, got %q", name, size)
		}
	}

	tp := cfg.DynamicTP
	if tp.MinTP > tp.BaseTP || tp.BaseTP > tp.MaxTP {
		return fmt.Errorf("config: need min_tp <= base_tp <= max_tp, got %v/%v/%v",
			tp.MinTP, tp.BaseTP, tp.MaxTP)
	}
	if tp.SafetyMargin < 0 {
		return fmt.Errorf("config: safety_margin must be >= 0, got %v", tp.SafetyMargin)
	}

	if cfg.MACD.Enabled {
		if cfg.MACD.FastPeriod < 1 || cfg.MACD.SlowPeriod < 1 || cfg.MACD.SignalPeriod < 1 {
			return fmt.Errorf("config: MACD periods must be >= 1, got %d/%d/%d",
				cfg.MACD.FastPeriod, cfg.MACD.SlowPeriod, cfg.MACD.SignalPeriod)
		}
		if cfg.MACD.FastPeriod >= cfg.MACD.SlowPeriod {
			return fmt.Errorf("config: MACD fast_period must be < slow_period, got %d >= %d",
				cfg.MACD.FastPeriod, cfg.MACD.SlowPeriod)
		}
		switch cfg.MACD.BullishRule {
		case models.MACDLinesAboveZero, models.MACDHistogramRising:
		default:
			return fmt.Errorf("config: unknown MACD bullish_rule %q", cfg.MACD.BullishRule)
		}
	}
	if cfg.EMA.Enabled && cfg.EMA.Period < 1 {
		return fmt.Errorf("config: EMA period must be >= 1, got %d", cfg.EMA.Period)
	}

	return nil
}
