package takeprofit

import (
	"errors"
	"math"
	"testing"
	"time"

	"trend-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
)

type stubFunding struct {
	rate  float64
	err   error
	calls int
}

func (s *stubFunding) GetFundingRate() (float64, error) {
	s.calls++
	return s.rate, s.err
}

func tpConfig() models.DynamicTPConfig {
	return models.DynamicTPConfig{
		Enabled:          true,
		BaseTP:           0.5,
		MinTP:            0.2,
		MaxTP:            1.0,
		SafetyMargin:     0.05,
		CheckIntervalSec: 60,
	}
}

func TestAdjustedPositiveFunding(t *testing.T) {
	// 0.5 + 0.0004*100 + 0.05 = 0.59
	got := Adjusted(0.0004, tpConfig())
	assert.InDelta(t, 0.59, got, 1e-12)
}

func TestAdjustedNegativeFunding(t *testing.T) {
	// 0.5 + (-0.001*100) - 0.05 = 0.35
	got := Adjusted(-0.001, tpConfig())
	assert.InDelta(t, 0.35, got, 1e-12)
}

func TestAdjustedClampHolds(t *testing.T) {
	cfg := tpConfig()
	for _, rate := range []float64{-1, -0.5, -0.01, -0.0001, 0, 0.0001, 0.01, 0.5, 1} {
		got := Adjusted(rate, cfg)
		assert.GreaterOrEqual(t, got, cfg.MinTP, "rate %v", rate)
		assert.LessOrEqual(t, got, cfg.MaxTP, "rate %v", rate)
	}
}

func TestAdjustedDegenerateRate(t *testing.T) {
	got := Adjusted(math.NaN(), tpConfig())
	assert.Equal(t, 0.5, got)

	got = Adjusted(math.Inf(1), tpConfig())
	assert.Equal(t, 0.5, got)
}

func TestCurrentDisabledReturnsBase(t *testing.T) {
	cfg := tpConfig()
	cfg.Enabled = false
	src := &stubFunding{rate: 0.01}
	c := NewCalculator(cfg, src)

	assert.Equal(t, 0.5, c.Current())
	assert.Zero(t, src.calls, "disabled calculator must not fetch funding")
}

func TestCurrentCachesWithinInterval(t *testing.T) {
	src := &stubFunding{rate: 0.0004}
	c := NewCalculator(tpConfig(), src)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	assert.InDelta(t, 0.59, c.Current(), 1e-12)
	assert.InDelta(t, 0.59, c.Current(), 1e-12)
	assert.Equal(t, 1, src.calls, "second call within interval must hit the cache")

	// Past the interval the rate is fetched again.
	now = now.Add(61 * time.Second)
	src.rate = 0
	assert.InDelta(t, 0.45, c.Current(), 1e-12) // 0.5 - 0.05
	assert.Equal(t, 2, src.calls)
}

func TestCurrentKeepsCacheOnFetchError(t *testing.T) {
	src := &stubFunding{rate: 0.0004}
	c := NewCalculator(tpConfig(), src)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	assert.InDelta(t, 0.59, c.Current(), 1e-12)

	now = now.Add(2 * time.Minute)
	src.err = errors.New("gateway timeout")
	assert.InDelta(t, 0.59, c.Current(), 1e-12, "stale cache beats no value")
}

func TestCurrentColdCacheFetchErrorFallsBackToBase(t *testing.T) {
	src := &stubFunding{err: errors.New("gateway down")}
	c := NewCalculator(tpConfig(), src)
	assert.Equal(t, 0.5, c.Current())
}
