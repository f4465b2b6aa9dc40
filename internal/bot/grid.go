package bot

import (
	"fmt"

	"github.com/shopspring/decimal"

	"trend-grid-bot-go/internal/models"
)

// gridLevel is one desired resting order, priced on an exact tick multiple.
// The decimal string of the aligned price is the level's identity: two orders
// are "the same level" iff their keys match exactly.
type gridLevel struct {
	Side  models.Side
	Price decimal.Decimal
}

// Key returns the canonical identity of the level.
func (g gridLevel) Key() string {
	return string(g.Side) + "@" + g.Price.String()
}

// decimalFromTick parses a tick/step size string, rejecting non-positive
// values.
func decimalFromTick(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("bad tick size %q: %w", s, err)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("tick size %q must be positive", s)
	}
	return d, nil
}

// alignDecimal snaps a price onto the tick grid, rounding away from the
// spread: buys down, sells up. An order aligned this way never becomes more
// aggressive than the unaligned target.
func alignDecimal(p, tick decimal.Decimal, side models.Side) decimal.Decimal {
	steps := p.Div(tick)
	if side == models.Buy {
		steps = steps.Floor()
	} else {
		steps = steps.Ceil()
	}
	return steps.Mul(tick)
}

func alignPrice(price float64, tick decimal.Decimal, side models.Side) decimal.Decimal {
	return alignDecimal(decimal.NewFromFloat(price), tick, side)
}

// alignQuantity floors a quantity onto the lot-size grid.
func alignQuantity(qty float64, step decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(qty).Div(step).Floor().Mul(step)
}

// desiredLevels derives the full grid around the anchor: LevelsPerSide buys
// below, LevelsPerSide sells above, spaced by GridSpacing (a price fraction).
func desiredLevels(cfg models.GridConfig, anchor float64) ([]gridLevel, error) {
	if anchor <= 0 {
		return nil, fmt.Errorf("grid anchor must be positive, got %v", anchor)
	}
	tick, err := decimalFromTick(cfg.TickSize)
	if err != nil {
		return nil, err
	}

	// All level math stays in decimal: float rounding here would shift a
	// level by one tick and break the identity match against resting orders.
	anchorD := decimal.NewFromFloat(anchor)
	spacing := decimal.NewFromFloat(cfg.GridSpacing)
	one := decimal.NewFromInt(1)

	levels := make([]gridLevel, 0, 2*cfg.LevelsPerSide)
	for i := 1; i <= cfg.LevelsPerSide; i++ {
		offset := spacing.Mul(decimal.NewFromInt(int64(i)))
		buy := alignDecimal(anchorD.Mul(one.Sub(offset)), tick, models.Buy)
		sell := alignDecimal(anchorD.Mul(one.Add(offset)), tick, models.Sell)
		if !buy.IsPositive() {
			return nil, fmt.Errorf("grid level %d falls to a non-positive price", i)
		}
		levels = append(levels,
			gridLevel{Side: models.Buy, Price: buy},
			gridLevel{Side: models.Sell, Price: sell},
		)
	}
	return levels, nil
}

// occupiedKeys maps each live order back onto its level identity. PENDING and
// FILLED orders both occupy their level; terminal orders free it.
func occupiedKeys(orders []models.Order, cfg models.GridConfig) map[string]bool {
	tick, err := decimalFromTick(cfg.TickSize)
	if err != nil {
		return nil
	}
	keys := make(map[string]bool)
	for _, o := range orders {
		if o.Status != models.OrderPending && o.Status != models.OrderFilled {
			continue
		}
		lvl := gridLevel{Side: o.Side, Price: alignPrice(o.Price, tick, o.Side)}
		keys[lvl.Key()] = true
	}
	return keys
}

// liveOrderCount counts orders that hold exchange-side exposure.
func liveOrderCount(orders []models.Order) int {
	n := 0
	for _, o := range orders {
		if o.Status == models.OrderPending || o.Status == models.OrderFilled {
			n++
		}
	}
	return n
}
