package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trend-grid-bot-go/internal/logger"
	"trend-grid-bot-go/internal/models"
)

// LiveGateway 通过签名的REST请求与真实交易所交互
type LiveGateway struct {
	apiKey     string
	secretKey  string
	baseURL    string
	symbol     string
	httpClient *http.Client
	listenKey  string
	timeOffset int64
	now        func() time.Time
}

// NewLiveGateway 创建网关实例并与服务器同步时间
func NewLiveGateway(apiKey, secretKey, baseURL, symbol string) (*LiveGateway, error) {
	g := &LiveGateway{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    baseURL,
		symbol:     symbol,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	if err := g.syncTime(); err != nil {
		return nil, fmt.Errorf("server time sync failed: %w", err)
	}
	return g, nil
}

// syncTime 计算本地与服务器的时间偏移，签名时间戳依赖它
func (g *LiveGateway) syncTime() error {
	serverTime, err := g.GetServerTime()
	if err != nil {
		return err
	}
	g.timeOffset = serverTime - g.now().UnixMilli()
	logger.S().Infow("server time synced", "offset_ms", g.timeOffset)
	return nil
}

// doRequest 是所有REST调用的通用出口。签名请求附加时间戳和HMAC-SHA256签名。
// 交易所的错误响应体被解码为 models.GatewayError 返回给调用方。
func (g *LiveGateway) doRequest(method, endpoint string, params url.Values, signed bool) ([]byte, error) {
	fullURL := g.baseURL + endpoint
	queryParams := url.Values{}
	for k, v := range params {
		queryParams[k] = v
	}

	var encodedParams string
	if signed {
		timestamp := g.now().UnixMilli() + g.timeOffset
		queryParams.Set("timestamp", strconv.FormatInt(timestamp, 10))
		payload := queryParams.Encode()
		encodedParams = payload + "&signature=" + g.sign(payload)
	} else {
		encodedParams = queryParams.Encode()
	}

	var req *http.Request
	var err error
	if method == http.MethodGet {
		finalURL := fullURL
		if encodedParams != "" {
			finalURL = fullURL + "?" + encodedParams
		}
		req, err = http.NewRequest(method, finalURL, nil)
	} else {
		req, err = http.NewRequest(method, fullURL, strings.NewReader(encodedParams))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var apiErr models.GatewayError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != 0 {
		return body, &apiErr
	}
	if resp.StatusCode != http.StatusOK {
		return body, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (g *LiveGateway) sign(data string) string {
	h := hmac.New(sha256.New, []byte(g.secretKey))
	h.Write([]byte(data))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// createOrderResponse 是下单接口的应答体
type createOrderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
}

// CreateOrder 下一个附带止盈价的GTC限价单
func (g *LiveGateway) CreateOrder(side models.Side, price, quantity, tpPrice float64, clientOrderID string) (*models.Order, error) {
	params := url.Values{}
	params.Set("symbol", g.symbol)
	params.Set("side", string(side))
	params.Set("type", "LIMIT")
	params.Set("timeInForce", "GTC")
	params.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
	params.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))
	if tpPrice > 0 {
		params.Set("takeProfitPrice", strconv.FormatFloat(tpPrice, 'f', -1, 64))
	}
	if clientOrderID != "" {
		params.Set("newClientOrderId", clientOrderID)
	}

	body, err := g.doRequest(http.MethodPost, "/fapi/v1/order", params, true)
	if err != nil {
		logger.S().Errorw("create order rejected", "err", err, "raw", string(body))
		return nil, err
	}

	var resp createOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode order ack: %w", err)
	}
	if resp.OrderID == 0 {
		// A 200 without an order id is as good as a failure to the caller.
		return nil, fmt.Errorf("order ack carried no order id: %s", string(body))
	}

	return &models.Order{
		CorrelationID:   resp.ClientOrderID,
		ExchangeOrderID: resp.OrderID,
		Symbol:          resp.Symbol,
		Side:            side,
		Price:           price,
		Quantity:        quantity,
		TakeProfitPrice: tpPrice,
		Status:          models.OrderPending,
	}, nil
}

// CancelOrder 按交易所订单ID撤单
func (g *LiveGateway) CancelOrder(exchangeOrderID int64) error {
	params := url.Values{}
	params.Set("symbol", g.symbol)
	params.Set("orderId", strconv.FormatInt(exchangeOrderID, 10))
	_, err := g.doRequest(http.MethodDelete, "/fapi/v1/order", params, true)
	return err
}

// GetPrice 获取当前标记价格
func (g *LiveGateway) GetPrice() (float64, error) {
	params := url.Values{}
	params.Set("symbol", g.symbol)
	body, err := g.doRequest(http.MethodGet, "/fapi/v1/ticker/price", params, false)
	if err != nil {
		return 0, err
	}
	var ticker struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &ticker); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(ticker.Price, 64)
}

// GetFundingRate 获取当前资金费率
func (g *LiveGateway) GetFundingRate() (float64, error) {
	params := url.Values{}
	params.Set("symbol", g.symbol)
	body, err := g.doRequest(http.MethodGet, "/fapi/v1/premiumIndex", params, false)
	if err != nil {
		return 0, err
	}
	var premium struct {
		LastFundingRate string `json:"lastFundingRate"`
	}
	if err := json.Unmarshal(body, &premium); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(premium.LastFundingRate, 64)
}

// GetServerTime 获取服务器时间(毫秒)
func (g *LiveGateway) GetServerTime() (int64, error) {
	body, err := g.doRequest(http.MethodGet, "/fapi/v1/time", nil, false)
	if err != nil {
		return 0, err
	}
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}
	return resp.ServerTime, nil
}

// SetLeverage 设置杠杆倍数
func (g *LiveGateway) SetLeverage(leverage int) error {
	params := url.Values{}
	params.Set("symbol", g.symbol)
	params.Set("leverage", strconv.Itoa(leverage))
	_, err := g.doRequest(http.MethodPost, "/fapi/v1/leverage", params, true)
	return err
}

// CreateListenKey 创建账户数据流的listenKey
func (g *LiveGateway) CreateListenKey() (string, error) {
	body, err := g.doRequest(http.MethodPost, "/fapi/v1/listenKey", nil, true)
	if err != nil {
		return "", fmt.Errorf("create listen key: %w", err)
	}
	var resp struct {
		ListenKey string `json:"listenKey"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode listen key: %w", err)
	}
	g.listenKey = resp.ListenKey
	return g.listenKey, nil
}

// KeepAliveListenKey 延长当前listenKey的有效期
func (g *LiveGateway) KeepAliveListenKey() error {
	if g.listenKey == "" {
		return fmt.Errorf("no listen key to keep alive")
	}
	params := url.Values{}
	params.Set("listenKey", g.listenKey)
	_, err := g.doRequest(http.MethodPut, "/fapi/v1/listenKey", params, true)
	return err
}
