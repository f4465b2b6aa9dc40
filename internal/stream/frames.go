package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"trend-grid-bot-go/internal/models"
)

// rawFrame is the superset shape every inbound text frame is probed against.
// The exchange multiplexes heartbeats, data events and error frames over one
// socket; exactly one of the discriminators is set per frame.
type rawFrame struct {
	Ping  *int64              `json:"ping,omitempty"`
	Error *models.StreamError `json:"error,omitempty"`
	Event string              `json:"e,omitempty"`
}

// tradeFrame mirrors the aggTrade payload. Prices arrive as strings.
type tradeFrame struct {
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

// klineFrame mirrors the kline event payload.
type klineFrame struct {
	Kline struct {
		StartTime int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

// orderFrame mirrors ORDER_TRADE_UPDATE.
type orderFrame struct {
	Order struct {
		Symbol        string `json:"s"`
		ClientOrderID string `json:"c"`
		Side          string `json:"S"`
		OrigType      string `json:"ot"`
		Status        string `json:"X"`
		OrderID       int64  `json:"i"`
		Price         string `json:"p"`
		AvgPrice      string `json:"ap"`
		CumQty        string `json:"z"`
		TradeTime     int64  `json:"T"`
	} `json:"o"`
}

// accountFrame mirrors ACCOUNT_UPDATE.
type accountFrame struct {
	Data struct {
		Reason    string `json:"m"`
		Positions []struct {
			Symbol         string `json:"s"`
			PositionAmount string `json:"pa"`
			EntryPrice     string `json:"ep"`
		} `json:"P"`
	} `json:"a"`
}

// parseFrame classifies one inbound frame. It returns the typed event (nil
// for frames that need no consumer, e.g. an unknown but well-formed event),
// the pong payload to write back when the frame was a heartbeat, or an error
// for malformed data.
func parseFrame(stream string, data []byte) (*models.StreamEvent, []byte, error) {
	var frame rawFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, nil, fmt.Errorf("undecodable frame: %w", err)
	}

	now := time.Now()

	if frame.Ping != nil {
		pong, err := json.Marshal(map[string]int64{"pong": *frame.Ping})
		if err != nil {
			return nil, nil, err
		}
		ev := &models.StreamEvent{Type: models.HeartbeatEvent, Stream: stream, Time: now}
		return ev, pong, nil
	}

	if frame.Error != nil {
		ev := &models.StreamEvent{
			Type: models.StreamErrorEvent, Stream: stream, Time: now, Err: frame.Error,
		}
		return ev, nil, nil
	}

	switch frame.Event {
	case "aggTrade", "trade":
		var t tradeFrame
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, nil, fmt.Errorf("bad trade frame: %w", err)
		}
		price, err := strconv.ParseFloat(t.Price, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("bad trade price %q: %w", t.Price, err)
		}
		qty, _ := strconv.ParseFloat(t.Quantity, 64)
		ev := &models.StreamEvent{
			Type: models.TradeTickEvent, Stream: stream, Time: now,
			Tick: &models.TradeTick{
				Symbol: t.Symbol, Price: price, Quantity: qty, TradeTime: t.TradeTime,
			},
		}
		return ev, nil, nil

	case "kline":
		var k klineFrame
		if err := json.Unmarshal(data, &k); err != nil {
			return nil, nil, fmt.Errorf("bad kline frame: %w", err)
		}
		if !k.Kline.Closed {
			return nil, nil, nil // only closed candles feed the filters
		}
		open, err1 := strconv.ParseFloat(k.Kline.Open, 64)
		high, err2 := strconv.ParseFloat(k.Kline.High, 64)
		low, err3 := strconv.ParseFloat(k.Kline.Low, 64)
		cls, err4 := strconv.ParseFloat(k.Kline.Close, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return nil, nil, fmt.Errorf("bad kline numerics in frame")
		}
		vol, _ := strconv.ParseFloat(k.Kline.Volume, 64)
		ev := &models.StreamEvent{
			Type: models.KlineEvent, Stream: stream, Time: now,
			Kline: &models.Kline{
				OpenTime:  time.UnixMilli(k.Kline.StartTime),
				Open:      open, High: high, Low: low, Close: cls, Volume: vol,
				CloseTime: time.UnixMilli(k.Kline.CloseTime),
			},
		}
		return ev, nil, nil

	case "ORDER_TRADE_UPDATE":
		var o orderFrame
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, nil, fmt.Errorf("bad order frame: %w", err)
		}
		price, _ := strconv.ParseFloat(o.Order.Price, 64)
		avg, _ := strconv.ParseFloat(o.Order.AvgPrice, 64)
		filled, _ := strconv.ParseFloat(o.Order.CumQty, 64)
		ev := &models.StreamEvent{
			Type: models.OrderUpdateEvent, Stream: stream, Time: now,
			Order: &models.OrderUpdate{
				Symbol:          o.Order.Symbol,
				ClientOrderID:   o.Order.ClientOrderID,
				ExchangeOrderID: o.Order.OrderID,
				Side:            models.Side(o.Order.Side),
				Status:          o.Order.Status,
				Price:           price,
				AvgPrice:        avg,
				FilledQuantity:  filled,
				IsTakeProfit:    o.Order.OrigType == "TAKE_PROFIT" || o.Order.OrigType == "TAKE_PROFIT_MARKET",
				TradeTime:       o.Order.TradeTime,
			},
		}
		return ev, nil, nil

	case "ACCOUNT_UPDATE":
		var a accountFrame
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, nil, fmt.Errorf("bad account frame: %w", err)
		}
		// One event per position entry; the engine trades one symbol, so in
		// practice this is zero or one.
		for _, p := range a.Data.Positions {
			amount, err := strconv.ParseFloat(p.PositionAmount, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("bad position amount %q: %w", p.PositionAmount, err)
			}
			entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
			ev := &models.StreamEvent{
				Type: models.AccountUpdateEvent, Stream: stream, Time: now,
				Account: &models.AccountUpdate{
					Symbol:         p.Symbol,
					PositionAmount: amount,
					EntryPrice:     entry,
					Reason:         a.Data.Reason,
				},
			}
			return ev, nil, nil
		}
		return nil, nil, nil
	}

	// Well-formed but unknown event type: not a protocol violation, just
	// something this engine does not consume.
	return nil, nil, nil
}
