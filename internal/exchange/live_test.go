package exchange

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"trend-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVenue serves the REST endpoints the gateway touches. Each test swaps in
// its own order handler.
type fakeVenue struct {
	srv        *httptest.Server
	orderReqs  []map[string][]string
	orderReply func(w http.ResponseWriter, r *http.Request)
}

func newFakeVenue(t *testing.T) *fakeVenue {
	t.Helper()
	v := &fakeVenue{}
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/time", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"serverTime":1718000000000}`)
	})
	mux.HandleFunc("/fapi/v1/order", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		v.orderReqs = append(v.orderReqs, r.Form)
		if v.orderReply != nil {
			v.orderReply(w, r)
			return
		}
		fmt.Fprint(w, `{"orderId":777,"clientOrderId":"cid-1","symbol":"BTCUSDT","status":"NEW"}`)
	})
	mux.HandleFunc("/fapi/v1/premiumIndex", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbol":"BTCUSDT","lastFundingRate":"0.00040000"}`)
	})
	mux.HandleFunc("/fapi/v1/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbol":"BTCUSDT","price":"42000.50"}`)
	})
	mux.HandleFunc("/fapi/v1/listenKey", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"listenKey":"lk-abc"}`)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/fapi/v1/leverage", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbol":"BTCUSDT","leverage":5}`)
	})
	v.srv = httptest.NewServer(mux)
	t.Cleanup(v.srv.Close)
	return v
}

func newGateway(t *testing.T, v *fakeVenue) *LiveGateway {
	t.Helper()
	g, err := NewLiveGateway("test-key", "test-secret", v.srv.URL, "BTCUSDT")
	require.NoError(t, err)
	return g
}

func formValue(form map[string][]string, key string) string {
	if vs := form[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func TestCreateOrderSignedAndStamped(t *testing.T) {
	v := newFakeVenue(t)
	g := newGateway(t, v)

	order, err := g.CreateOrder(models.Buy, 42000, 0.01, 42210, "cid-1")
	require.NoError(t, err)
	assert.Equal(t, int64(777), order.ExchangeOrderID)
	assert.Equal(t, models.Buy, order.Side)
	assert.Equal(t, 42210.0, order.TakeProfitPrice)

	require.Len(t, v.orderReqs, 1)
	form := v.orderReqs[0]
	assert.Equal(t, "BUY", formValue(form, "side"))
	assert.Equal(t, "LIMIT", formValue(form, "type"))
	assert.Equal(t, "GTC", formValue(form, "timeInForce"))
	assert.Equal(t, "42000", formValue(form, "price"))
	assert.Equal(t, "42210", formValue(form, "takeProfitPrice"))
	assert.Equal(t, "cid-1", formValue(form, "newClientOrderId"))
	assert.NotEmpty(t, formValue(form, "timestamp"), "signed request needs a timestamp")
	assert.NotEmpty(t, formValue(form, "signature"), "signed request needs a signature")
}

func TestCreateOrderAPIErrorDecoded(t *testing.T) {
	v := newFakeVenue(t)
	v.orderReply = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-2019,"msg":"Margin is insufficient."}`)
	}
	g := newGateway(t, v)

	_, err := g.CreateOrder(models.Buy, 42000, 0.01, 42210, "cid-err")
	require.Error(t, err)

	var apiErr *models.GatewayError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, -2019, apiErr.Code)
	assert.Contains(t, apiErr.Msg, "Margin")
}

func TestCreateOrderAckWithoutIDIsError(t *testing.T) {
	v := newFakeVenue(t)
	v.orderReply = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"clientOrderId":"cid-1","status":"NEW"}`)
	}
	g := newGateway(t, v)

	_, err := g.CreateOrder(models.Buy, 42000, 0.01, 42210, "cid-1")
	assert.Error(t, err, "an ack without an order id must not look like success")
}

func TestGetFundingRate(t *testing.T) {
	v := newFakeVenue(t)
	g := newGateway(t, v)

	rate, err := g.GetFundingRate()
	require.NoError(t, err)
	assert.InDelta(t, 0.0004, rate, 1e-12)
}

func TestGetPrice(t *testing.T) {
	v := newFakeVenue(t)
	g := newGateway(t, v)

	price, err := g.GetPrice()
	require.NoError(t, err)
	assert.Equal(t, 42000.50, price)
}

func TestListenKeyLifecycle(t *testing.T) {
	v := newFakeVenue(t)
	g := newGateway(t, v)

	assert.Error(t, g.KeepAliveListenKey(), "keepalive before create must fail")

	key, err := g.CreateListenKey()
	require.NoError(t, err)
	assert.Equal(t, "lk-abc", key)
	assert.NoError(t, g.KeepAliveListenKey())
}
