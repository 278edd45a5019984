package binance

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// klineEvent is the combined-less stream payload, e.g.
// {"e":"kline","E":1700000000000,"s":"BTCUSDT","k":{"i":"1m","c":"50001.10",...}}
type klineEvent struct {
	EventType string  `json:"e"`
	EventTime int64   `json:"E"`
	Symbol    string  `json:"s"`
	Kline     *kline  `json:"k"`
	Result    *string `json:"result"`
	ID        *int64  `json:"id"`
}

type kline struct {
	Interval string          `json:"i"`
	Close    NullableDecimal `json:"c"`
	Closed   bool            `json:"x"`
}

type NullableDecimal struct {
	Decimal decimal.Decimal
	Valid   bool
}

func (n *NullableDecimal) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		n.Valid = false
		return nil
	}
	trimmed := strings.TrimSpace(string(data))
	if len(trimmed) == 0 {
		n.Valid = false
		return nil
	}
	if trimmed[0] == '"' && trimmed[len(trimmed)-1] == '"' {
		trimmed = strings.Trim(trimmed, "\"")
	}
	dec, err := decimal.NewFromString(trimmed)
	if err != nil {
		n.Valid = false
		return err
	}
	n.Decimal = dec
	n.Valid = true
	return nil
}

func (n NullableDecimal) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Decimal.String())
}
