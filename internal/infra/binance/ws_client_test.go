package binance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDecodeTickKline(t *testing.T) {
	tick, err := decodeTick([]byte(`{"e":"kline","E":1700000000000,"s":"BTCUSDT","k":{"i":"1m","c":"50001.10","x":false}}`))
	require.NoError(t, err)
	require.NotNil(t, tick)
	require.Equal(t, "btcusdt@kline_1m", tick.Channel)
	require.Equal(t, "BTC", tick.Symbol)
	require.True(t, tick.Price.Equal(decimal.RequireFromString("50001.10")))
	require.Equal(t, time.UnixMilli(1700000000000).UTC(), tick.EventTime)
}

func TestDecodeTickIgnoresAcks(t *testing.T) {
	tick, err := decodeTick([]byte(`{"result":null,"id":1}`))
	require.NoError(t, err)
	require.Nil(t, tick)

	tick, err = decodeTick([]byte(`{"e":"trade","s":"BTCUSDT","p":"1"}`))
	require.NoError(t, err)
	require.Nil(t, tick)
}

func TestDecodeTickMalformed(t *testing.T) {
	_, err := decodeTick([]byte(`{not json`))
	require.Error(t, err)

	_, err = decodeTick([]byte(`{"e":"kline","s":"BTCUSDT","k":{"i":"1m","c":"abc"}}`))
	require.Error(t, err)

	_, err = decodeTick([]byte(`{"e":"kline","s":"BTCUSDT","k":{"i":"1m"}}`))
	require.Error(t, err)

	_, err = decodeTick([]byte("  "))
	require.Error(t, err)
}

func TestWSSessionRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	frames := make(chan domain.ControlFrame, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var frame domain.ControlFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		frames <- frame
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"kline","E":1700000000000,"s":"ETHUSDT","k":{"i":"1m","c":"3050"}}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	dialer := NewWSDialer(url, time.Second, time.Second, zaptest.NewLogger(t))

	ctx := context.Background()
	session, err := dialer.Dial(ctx)
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.Send(ctx, domain.ControlFrame{Method: domain.Subscribe, Params: []string{"ethusdt@kline_1m"}, ID: 1}))
	sent := <-frames
	require.Equal(t, domain.Subscribe, sent.Method)
	require.Equal(t, []string{"ethusdt@kline_1m"}, sent.Params)

	tick, err := session.Receive(ctx)
	require.NoError(t, err)
	require.Nil(t, tick)

	tick, err = session.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "ETH", tick.Symbol)
	require.True(t, tick.Price.Equal(decimal.NewFromInt(3050)))
}

func TestControlFrameWireFormat(t *testing.T) {
	data, err := json.Marshal(domain.ControlFrame{Method: domain.Unsubscribe, Params: []string{"btcusdt@kline_1m"}, ID: 7})
	require.NoError(t, err)
	require.JSONEq(t, `{"method":"UNSUBSCRIBE","params":["btcusdt@kline_1m"],"id":7}`, string(data))
}
