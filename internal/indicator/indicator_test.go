package indicator

import (
	"math"
	"testing"
	"time"

	"trend-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func klinesFromCloses(closes []float64) []models.Kline {
	out := make([]models.Kline, len(closes))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = models.Kline{
			OpenTime:  base.Add(time.Duration(i) * time.Minute),
			Close:     c,
			CloseTime: base.Add(time.Duration(i+1) * time.Minute),
		}
	}
	return out
}

// risingCloses yields a strictly increasing series long enough for any of the
// default indicator windows.
func risingCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i)
	}
	return out
}

func defaultMACDConfig() models.MACDConfig {
	return models.MACDConfig{
		Enabled:      true,
		FastPeriod:   12,
		SlowPeriod:   26,
		SignalPeriod: 9,
		BullishRule:  models.MACDLinesAboveZero,
	}
}

func TestMACDBullishOnUptrend(t *testing.T) {
	f := NewMACDFilter(defaultMACDConfig())
	require.NoError(t, f.Update(klinesFromCloses(risingCloses(120))))

	st := f.Signal()
	assert.Equal(t, models.SignalAllow, st.Signal)
	assert.Greater(t, st.MACD, 0.0)
	assert.Greater(t, st.MACDSig, 0.0)
}

func TestMACDBlocksOnDowntrend(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 500 - float64(i)*2
	}
	f := NewMACDFilter(defaultMACDConfig())
	require.NoError(t, f.Update(klinesFromCloses(closes)))

	st := f.Signal()
	assert.Equal(t, models.SignalBlock, st.Signal)
	assert.Less(t, st.MACD, 0.0)
}

// A window containing an absurd close must leave the previous state standing
// instead of raising or producing a garbage verdict.
func TestMACDRejectsDegenerateCloses(t *testing.T) {
	f := NewMACDFilter(defaultMACDConfig())
	require.NoError(t, f.Update(klinesFromCloses(risingCloses(120))))
	before := f.Signal()

	bad := risingCloses(120)
	bad[60] = 1e15
	assert.Error(t, f.Update(klinesFromCloses(bad)))
	assert.Equal(t, before, f.Signal(), "state must be unchanged after rejection")

	bad = risingCloses(120)
	bad[10] = math.NaN()
	assert.Error(t, f.Update(klinesFromCloses(bad)))
	assert.Equal(t, before, f.Signal())

	bad = risingCloses(120)
	bad[0] = -3
	assert.Error(t, f.Update(klinesFromCloses(bad)))
	assert.Equal(t, before, f.Signal())
}

func TestMACDRejectsShortWindow(t *testing.T) {
	f := NewMACDFilter(defaultMACDConfig())
	assert.Error(t, f.Update(klinesFromCloses(risingCloses(20))))
	assert.Equal(t, models.SignalBlock, f.Signal().Signal)
}

func TestMACDHistogramRisingRule(t *testing.T) {
	cfg := defaultMACDConfig()
	cfg.BullishRule = models.MACDHistogramRising
	f := NewMACDFilter(cfg)

	// First update has no previous histogram, so it cannot be bullish.
	require.NoError(t, f.Update(klinesFromCloses(risingCloses(120))))
	assert.Equal(t, models.SignalBlock, f.Signal().Signal)

	// Accelerating closes push the histogram up between updates.
	accel := risingCloses(121)
	accel[120] = accel[119] + 40
	require.NoError(t, f.Update(klinesFromCloses(accel)))
	assert.Equal(t, models.SignalAllow, f.Signal().Signal)
}

func TestEMADirection(t *testing.T) {
	cfg := models.EMAConfig{Enabled: true, Period: 5, Epsilon: 1e-9, AllowRising: true}
	f := NewEMAFilter(cfg)

	// First update: no previous EMA yet, direction stays FLAT.
	require.NoError(t, f.Update(klinesFromCloses(risingCloses(30))))
	assert.Equal(t, models.DirectionFlat, f.Signal().Direction)
	assert.Equal(t, models.SignalBlock, f.Signal().Signal)

	// A higher window moves the EMA up.
	higher := risingCloses(31)
	require.NoError(t, f.Update(klinesFromCloses(higher)))
	assert.Equal(t, models.DirectionRising, f.Signal().Direction)
	assert.Equal(t, models.SignalAllow, f.Signal().Signal)
}

func TestEMAFallingPermission(t *testing.T) {
	cfg := models.EMAConfig{Enabled: true, Period: 5, Epsilon: 1e-9, AllowFalling: true}
	f := NewEMAFilter(cfg)

	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 300 - float64(i)
	}
	require.NoError(t, f.Update(klinesFromCloses(closes)))

	lower := append(closes, closes[len(closes)-1]-1)
	require.NoError(t, f.Update(klinesFromCloses(lower)))
	assert.Equal(t, models.DirectionFalling, f.Signal().Direction)
	assert.Equal(t, models.SignalAllow, f.Signal().Signal)
}

func TestEMARejectsDegenerateCloses(t *testing.T) {
	cfg := models.EMAConfig{Enabled: true, Period: 5, Epsilon: 1e-9, AllowRising: true}
	f := NewEMAFilter(cfg)
	require.NoError(t, f.Update(klinesFromCloses(risingCloses(30))))
	before := f.Signal()

	bad := risingCloses(30)
	bad[29] = math.Inf(1)
	assert.Error(t, f.Update(klinesFromCloses(bad)))
	assert.Equal(t, before, f.Signal())
}

func TestRegistryANDsEnabledFilters(t *testing.T) {
	macd := NewMACDFilter(defaultMACDConfig())
	emaCfg := models.EMAConfig{Enabled: true, Period: 5, Epsilon: 1e-9, AllowRising: true}
	emaF := NewEMAFilter(emaCfg)
	reg := NewRegistry(macd, emaF)

	// Nothing updated yet: both block.
	assert.False(t, reg.Allowed())

	reg.UpdateAll(klinesFromCloses(risingCloses(120)))
	// MACD allows after one window, EMA still FLAT on its first update.
	assert.False(t, reg.Allowed())

	reg.UpdateAll(klinesFromCloses(risingCloses(121)))
	assert.True(t, reg.Allowed())
}

func TestRegistryDisabledFiltersDoNotVote(t *testing.T) {
	cfg := defaultMACDConfig()
	cfg.Enabled = false
	reg := NewRegistry(NewMACDFilter(cfg))
	assert.True(t, reg.Allowed(), "registry with no enabled filters allows trading")
}

func TestRegistryStates(t *testing.T) {
	reg := NewRegistry(
		NewMACDFilter(defaultMACDConfig()),
		NewEMAFilter(models.EMAConfig{Enabled: true, Period: 5}),
	)
	states := reg.States()
	require.Len(t, states, 2)
	assert.Equal(t, "macd", states[0].Name)
	assert.Equal(t, "ema", states[1].Name)
}
