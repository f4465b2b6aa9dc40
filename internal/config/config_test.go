package config

import (
	"os"
	"path/filepath"
	"testing"

	"trend-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *models.Config {
	return &models.Config{
		Symbol: "BTCUSDT",
		Grid: models.GridConfig{
			GridSpacing:      0.005,
			GridQuantity:     0.01,
			LevelsPerSide:    3,
			Leverage:         5,
			TickSize:         "0.1",
			StepSize:         "0.001",
			ReactivationMode: models.ReactivateFullCycle,
		},
		DynamicTP: models.DynamicTPConfig{
			Enabled:      true,
			BaseTP:       0.5,
			MinTP:        0.2,
			MaxTP:        1.0,
			SafetyMargin: 0.05,
		},
		MACD: models.MACDConfig{
			Enabled:      true,
			FastPeriod:   12,
			SlowPeriod:   26,
			SignalPeriod: 9,
			BullishRule:  models.MACDLinesAboveZero,
		},
	}
}

func TestValidateAcceptsSaneConfig(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidateRejectsBadSpacing(t *testing.T) {
	cfg := validConfig()
	cfg.Grid.GridSpacing = 0
	assert.Error(t, Validate(cfg))

	cfg.Grid.GridSpacing = -0.01
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsInvertedTPBounds(t *testing.T) {
	cfg := validConfig()
	cfg.DynamicTP.MinTP = 0.8 // min > base
	assert.Error(t, Validate(cfg))

	cfg = validConfig()
	cfg.DynamicTP.MaxTP = 0.3 // base > max
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsBadMACDPeriods(t *testing.T) {
	cfg := validConfig()
	cfg.MACD.SignalPeriod = 0
	assert.Error(t, Validate(cfg))

	cfg = validConfig()
	cfg.MACD.FastPeriod = 30 // fast >= slow
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsBadTickSize(t *testing.T) {
	cfg := validConfig()
	cfg.Grid.TickSize = "0"
	assert.Error(t, Validate(cfg))

	cfg = validConfig()
	cfg.Grid.StepSize = "lots"
	assert.Error(t, Validate(cfg))
}

func TestValidateIgnoresDisabledFilters(t *testing.T) {
	cfg := validConfig()
	cfg.MACD.Enabled = false
	cfg.MACD.SignalPeriod = 0
	assert.NoError(t, Validate(cfg))
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	raw := `{
		"symbol": "BTCUSDT",
		"grid": {"grid_spacing": 0.005, "grid_quantity": 0.01, "leverage": 5},
		"dynamic_tp": {"base_tp": 0.5, "min_tp": 0.2, "max_tp": 1.0}
	}`
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Grid.LevelsPerSide)
	assert.Equal(t, 6, cfg.Grid.MaxTotalOrders)
	assert.Equal(t, models.ReactivateFullCycle, cfg.Grid.ReactivationMode)
	assert.Equal(t, 12, cfg.MACD.FastPeriod)
	assert.Equal(t, "0.01", cfg.Grid.TickSize)
	assert.Equal(t, 60, cfg.Stream.ReconnectCeilingSec)
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	raw := `{"symbol": "BTCUSDT", "grid": {"grid_spacing": -1, "grid_quantity": 0.01, "leverage": 5}}`
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
