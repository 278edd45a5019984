package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"go.uber.org/zap"
)

type FeedState int32

const (
	FeedDisconnected FeedState = iota
	FeedConnecting
	FeedConnected
)

func (s FeedState) String() string {
	switch s {
	case FeedConnecting:
		return "connecting"
	case FeedConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// FeedConnection keeps one logical subscription session to the price feed,
// reconnecting after a fixed backoff for as long as its context lives.
type FeedConnection struct {
	dialer        domain.FeedDialer
	registry      *SubscriptionRegistry
	backoff       time.Duration
	controlBuffer int
	metrics       Metrics
	logger        *zap.Logger

	ticks  chan domain.Tick
	nextID atomic.Int64

	mu      sync.Mutex
	state   FeedState
	session domain.FeedSession
	control chan domain.ControlFrame
}

// NewFeedConnection attaches itself as the registry's control sink.
func NewFeedConnection(dialer domain.FeedDialer, registry *SubscriptionRegistry, backoff time.Duration, controlBuffer int, metrics Metrics, logger *zap.Logger) *FeedConnection {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if controlBuffer <= 0 {
		controlBuffer = 64
	}
	f := &FeedConnection{
		dialer:        dialer,
		registry:      registry,
		backoff:       backoff,
		controlBuffer: controlBuffer,
		metrics:       metrics,
		logger:        logger,
		ticks:         make(chan domain.Tick),
	}
	registry.SetSink(f)
	return f
}

// Ticks is the unbounded tick sequence. It survives reconnects and is closed
// when Run returns.
func (f *FeedConnection) Ticks() <-chan domain.Tick {
	return f.ticks
}

func (f *FeedConnection) State() FeedState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// SendControl queues a control frame on the live session. It is a no-op while
// disconnected; the registry replays its snapshot on the next open.
func (f *FeedConnection) SendControl(action domain.ControlAction, keys []string) {
	if len(keys) == 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != FeedConnected || f.control == nil {
		f.logger.Debug("feed control skipped while disconnected", zap.String("method", string(action)), zap.Strings("params", keys))
		return
	}

	frame := domain.ControlFrame{Method: action, Params: append([]string(nil), keys...), ID: f.nextID.Add(1)}
	select {
	case f.control <- frame:
	default:
		// The replay on reconnect restores the full key set.
		f.logger.Warn("feed control buffer full, forcing reconnect", zap.String("method", string(action)))
		_ = f.session.Close()
	}
}

func (f *FeedConnection) Run(ctx context.Context) {
	defer close(f.ticks)

	for {
		if ctx.Err() != nil {
			return
		}

		f.setState(FeedConnecting)
		session, err := f.dialer.Dial(ctx)
		if err != nil {
			f.setState(FeedDisconnected)
			if ctx.Err() != nil {
				return
			}
			f.logger.Warn("feed connect failed", zap.Duration("backoff", f.backoff), zap.Error(err))
			if !f.wait(ctx) {
				return
			}
			continue
		}

		err = f.serve(ctx, session)
		f.teardown(session)
		if ctx.Err() != nil {
			f.logger.Info("feed stopped")
			return
		}

		f.metrics.FeedReconnect()
		f.logger.Warn("feed session ended", zap.Duration("backoff", f.backoff), zap.Error(err))
		if !f.wait(ctx) {
			return
		}
	}
}

func (f *FeedConnection) serve(ctx context.Context, session domain.FeedSession) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	control := f.open(session)

	go func() {
		if err := f.writeLoop(sessionCtx, session, control); err != nil {
			f.logger.Warn("feed control write failed", zap.Error(err))
			cancel()
		}
	}()
	go func() {
		<-sessionCtx.Done()
		_ = session.Close()
	}()

	for {
		tick, err := session.Receive(sessionCtx)
		if err != nil {
			return err
		}
		if tick == nil {
			continue
		}
		select {
		case f.ticks <- *tick:
		case <-sessionCtx.Done():
			return sessionCtx.Err()
		}
	}
}

// open marks the session connected and queues the registry snapshot as one
// subscribe frame, atomically with respect to registry mutations.
func (f *FeedConnection) open(session domain.FeedSession) chan domain.ControlFrame {
	control := make(chan domain.ControlFrame, f.controlBuffer)

	f.registry.Replay(func(keys []string) {
		f.mu.Lock()
		f.session = session
		f.control = control
		f.state = FeedConnected
		f.mu.Unlock()

		f.logger.Info("feed connected", zap.Int("channels", len(keys)))
		if len(keys) > 0 {
			control <- domain.ControlFrame{Method: domain.Subscribe, Params: keys, ID: f.nextID.Add(1)}
		}
	})
	f.metrics.FeedConnected(true)
	return control
}

func (f *FeedConnection) writeLoop(ctx context.Context, session domain.FeedSession, control <-chan domain.ControlFrame) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-control:
			if err := session.Send(ctx, frame); err != nil {
				return err
			}
		}
	}
}

func (f *FeedConnection) teardown(session domain.FeedSession) {
	f.mu.Lock()
	if f.session == session {
		f.session = nil
		f.control = nil
	}
	f.state = FeedDisconnected
	f.mu.Unlock()

	f.metrics.FeedConnected(false)
	_ = session.Close()
}

func (f *FeedConnection) setState(state FeedState) {
	f.mu.Lock()
	f.state = state
	f.mu.Unlock()
}

func (f *FeedConnection) wait(ctx context.Context) bool {
	timer := time.NewTimer(f.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
