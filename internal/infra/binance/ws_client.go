package binance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WSDialer struct {
	url          string
	dialer       *websocket.Dialer
	readTimeout  time.Duration
	writeTimeout time.Duration
	logger       *zap.Logger
}

func NewWSDialer(url string, readTimeout, writeTimeout time.Duration, logger *zap.Logger) *WSDialer {
	return &WSDialer{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		},
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

func (d *WSDialer) Dial(ctx context.Context) (domain.FeedSession, error) {
	d.logger.Info("ws connect start", zap.String("url", d.url))
	conn, _, err := d.dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		d.logger.Error("ws connect failed", zap.String("url", d.url), zap.Error(err))
		return nil, err
	}
	d.logger.Info("ws connect success", zap.String("url", d.url))
	return &WSSession{conn: conn, readTimeout: d.readTimeout, writeTimeout: d.writeTimeout, logger: d.logger}, nil
}

type WSSession struct {
	conn         *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
	logger       *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

func (s *WSSession) Send(ctx context.Context, frame domain.ControlFrame) error {
	deadline := time.Time{}
	if s.writeTimeout > 0 {
		deadline = time.Now().Add(s.writeTimeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	_ = s.conn.SetWriteDeadline(deadline)

	s.logger.Info("ws control", zap.String("method", string(frame.Method)), zap.Strings("params", frame.Params), zap.Int64("id", frame.ID))
	if err := s.conn.WriteJSON(frame); err != nil {
		s.logger.Error("ws control failed", zap.String("method", string(frame.Method)), zap.Error(err))
		return err
	}
	return nil
}

func (s *WSSession) Receive(ctx context.Context) (*domain.Tick, error) {
	if s.readTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}

	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	tick, err := decodeTick(data)
	if err != nil {
		s.logger.Debug("ws message ignored", zap.Error(err))
		return nil, nil
	}
	return tick, nil
}

func (s *WSSession) Close() error {
	s.closeOnce.Do(func() {
		s.logger.Info("ws close")
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// decodeTick returns nil without error for control acknowledgements and
// non-kline events.
func decodeTick(data []byte) (*domain.Tick, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty message")
	}

	var event klineEvent
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return nil, fmt.Errorf("decode ws message: %w", err)
	}
	if event.ID != nil && event.EventType == "" {
		return nil, nil
	}
	if event.EventType != "kline" {
		return nil, nil
	}
	if event.Kline == nil || !event.Kline.Close.Valid {
		return nil, fmt.Errorf("kline without close price")
	}
	symbol := domain.SymbolFromPair(event.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("unexpected pair %q", event.Symbol)
	}

	interval := event.Kline.Interval
	if interval == "" {
		interval = "1m"
	}
	return &domain.Tick{
		Channel:   strings.ToLower(event.Symbol) + "@kline_" + interval,
		Symbol:    symbol,
		Price:     event.Kline.Close.Decimal,
		EventTime: time.UnixMilli(event.EventTime).UTC(),
	}, nil
}
