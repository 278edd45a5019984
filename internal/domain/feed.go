package domain

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	quoteAsset    = "USDT"
	channelStream = "@kline_1m"
)

// ChannelKey derives the feed channel for an asset symbol, e.g. BTC -> btcusdt@kline_1m.
func ChannelKey(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol)) + strings.ToLower(quoteAsset) + channelStream
}

// SymbolFromPair strips the quote suffix from a trading pair, e.g. BTCUSDT -> BTC.
func SymbolFromPair(pair string) string {
	pair = strings.TrimSpace(pair)
	if len(pair) <= len(quoteAsset) {
		return ""
	}
	return strings.ToUpper(pair[:len(pair)-len(quoteAsset)])
}

type Tick struct {
	Channel   string
	Symbol    string
	Price     decimal.Decimal
	EventTime time.Time
}

type ControlAction string

const (
	Subscribe   ControlAction = "SUBSCRIBE"
	Unsubscribe ControlAction = "UNSUBSCRIBE"
)

type ControlFrame struct {
	Method ControlAction `json:"method"`
	Params []string      `json:"params"`
	ID     int64         `json:"id"`
}

// FeedSession is one live connection to the streaming price source.
// Receive returns a nil tick for frames that carry no price.
type FeedSession interface {
	Send(ctx context.Context, frame ControlFrame) error
	Receive(ctx context.Context) (*Tick, error)
	Close() error
}

type FeedDialer interface {
	Dial(ctx context.Context) (FeedSession, error)
}

type PriceCache interface {
	Set(ctx context.Context, tick Tick) error
	Latest(ctx context.Context, symbol string) (*Tick, error)
}
