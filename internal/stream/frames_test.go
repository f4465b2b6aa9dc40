package stream

import (
	"testing"

	"trend-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFramePing(t *testing.T) {
	ev, pong, err := parseFrame("market", []byte(`{"ping":1718000000123}`))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, models.HeartbeatEvent, ev.Type)
	assert.JSONEq(t, `{"pong":1718000000123}`, string(pong))
}

func TestParseFrameErrorFrame(t *testing.T) {
	ev, pong, err := parseFrame("market", []byte(`{"error":{"code":-1121,"msg":"Invalid symbol."}}`))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Nil(t, pong)
	assert.Equal(t, models.StreamErrorEvent, ev.Type)
	require.NotNil(t, ev.Err)
	assert.Equal(t, -1121, ev.Err.Code)
	assert.Equal(t, "Invalid symbol.", ev.Err.Message)
}

func TestParseFrameTrade(t *testing.T) {
	raw := `{"e":"aggTrade","s":"BTCUSDT","p":"42000.50","q":"0.012","T":1718000000500}`
	ev, _, err := parseFrame("market", []byte(raw))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, models.TradeTickEvent, ev.Type)
	require.NotNil(t, ev.Tick)
	assert.Equal(t, "BTCUSDT", ev.Tick.Symbol)
	assert.Equal(t, 42000.50, ev.Tick.Price)
	assert.Equal(t, int64(1718000000500), ev.Tick.TradeTime)
}

func TestParseFrameKlineOnlyClosedCandles(t *testing.T) {
	open := `{"e":"kline","k":{"t":1,"T":2,"o":"1","h":"2","l":"0.5","c":"1.5","v":"10","x":false}}`
	ev, _, err := parseFrame("market", []byte(open))
	require.NoError(t, err)
	assert.Nil(t, ev, "unfinished candles must not reach the filters")

	closed := `{"e":"kline","k":{"t":1,"T":2,"o":"1","h":"2","l":"0.5","c":"1.5","v":"10","x":true}}`
	ev, _, err = parseFrame("market", []byte(closed))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, models.KlineEvent, ev.Type)
	assert.Equal(t, 1.5, ev.Kline.Close)
}

func TestParseFrameOrderUpdate(t *testing.T) {
	raw := `{"e":"ORDER_TRADE_UPDATE","o":{"s":"BTCUSDT","c":"abc123","S":"BUY",
		"ot":"TAKE_PROFIT_MARKET","X":"FILLED","i":998877,"p":"42000","ap":"42001.5","z":"0.01","T":5}}`
	ev, _, err := parseFrame("account", []byte(raw))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, models.OrderUpdateEvent, ev.Type)
	require.NotNil(t, ev.Order)
	assert.Equal(t, "abc123", ev.Order.ClientOrderID)
	assert.Equal(t, int64(998877), ev.Order.ExchangeOrderID)
	assert.Equal(t, "FILLED", ev.Order.Status)
	assert.True(t, ev.Order.IsTakeProfit)
}

func TestParseFrameAccountUpdate(t *testing.T) {
	raw := `{"e":"ACCOUNT_UPDATE","a":{"m":"ORDER","P":[{"s":"BTCUSDT","pa":"-0.02","ep":"41990"}]}}`
	ev, _, err := parseFrame("account", []byte(raw))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, models.AccountUpdateEvent, ev.Type)
	require.NotNil(t, ev.Account)
	assert.Equal(t, -0.02, ev.Account.PositionAmount)
	assert.Equal(t, 41990.0, ev.Account.EntryPrice)
}

func TestParseFrameMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json at all`,
		`{"e":"aggTrade","p":"not-a-number"}`,
		`{"e":"ACCOUNT_UPDATE","a":{"P":[{"pa":"garbage"}]}}`,
	} {
		_, _, err := parseFrame("market", []byte(raw))
		assert.Error(t, err, "frame %q", raw)
	}
}

func TestParseFrameUnknownEventIgnored(t *testing.T) {
	ev, pong, err := parseFrame("market", []byte(`{"e":"listenKeyExpired"}`))
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.Nil(t, pong)
}
