// Package exchange is the REST boundary to the trading venue. Everything the
// engine knows about remote order state beyond this boundary arrives on the
// account stream; the gateway only carries commands and point lookups.
package exchange

import "trend-grid-bot-go/internal/models"

// Gateway 定义了策略控制器所需的交易所操作集合
type Gateway interface {
	// CreateOrder places a GTC limit order with an attached take-profit
	// price. The returned order carries the exchange order id; the caller
	// decides what that ack means (ConfirmCreated). The gateway never
	// touches the ledger.
	CreateOrder(side models.Side, price, quantity, tpPrice float64, clientOrderID string) (*models.Order, error)
	CancelOrder(exchangeOrderID int64) error
	GetPrice() (float64, error)
	GetFundingRate() (float64, error)
	GetServerTime() (int64, error)
	SetLeverage(leverage int) error
	CreateListenKey() (string, error)
	KeepAliveListenKey() error
}
