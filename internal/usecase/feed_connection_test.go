package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testBackoff = 10 * time.Millisecond

type feedHarness struct {
	registry *SubscriptionRegistry
	dialer   *fakeDialer
	feed     *FeedConnection
	cancel   context.CancelFunc
	done     chan struct{}
}

func startFeed(t *testing.T, seed []string, controlBuffer int, dialFailures ...error) *feedHarness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	registry := NewSubscriptionRegistry(nil, logger)
	registry.Seed(seed)
	dialer := newFakeDialer()
	for _, err := range dialFailures {
		dialer.failures <- err
	}
	feed := NewFeedConnection(dialer, registry, testBackoff, controlBuffer, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	h := &feedHarness{registry: registry, dialer: dialer, feed: feed, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		feed.Run(ctx)
	}()
	t.Cleanup(h.stop)
	return h
}

func (h *feedHarness) stop() {
	h.cancel()
	<-h.done
}

func (h *feedHarness) connect(t *testing.T) *fakeSession {
	t.Helper()
	session := newFakeSession()
	h.dialer.sessions <- session
	require.Eventually(t, func() bool { return h.feed.State() == FeedConnected }, time.Second, time.Millisecond)
	return session
}

func nextFrame(t *testing.T, session *fakeSession) domain.ControlFrame {
	t.Helper()
	select {
	case frame := <-session.sent:
		return frame
	case <-time.After(time.Second):
		t.Fatal("no control frame sent")
		return domain.ControlFrame{}
	}
}

func TestFeedReplaysSnapshotOnConnect(t *testing.T) {
	h := startFeed(t, []string{ethChannel, btcChannel, btcChannel}, 8)
	session := h.connect(t)

	frame := nextFrame(t, session)
	require.Equal(t, domain.Subscribe, frame.Method)
	require.Equal(t, []string{btcChannel, ethChannel}, frame.Params)
}

func TestFeedEmptySnapshotSendsNothing(t *testing.T) {
	h := startFeed(t, nil, 8)
	session := h.connect(t)

	require.Never(t, func() bool { return len(session.sentFrames()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestFeedForwardsRegistryIntents(t *testing.T) {
	h := startFeed(t, nil, 8)
	session := h.connect(t)

	h.registry.Increment(btcChannel)
	first := nextFrame(t, session)
	require.Equal(t, domain.Subscribe, first.Method)
	require.Equal(t, []string{btcChannel}, first.Params)

	h.registry.Decrement(btcChannel)
	second := nextFrame(t, session)
	require.Equal(t, domain.Unsubscribe, second.Method)
	require.Equal(t, []string{btcChannel}, second.Params)
	require.Greater(t, second.ID, first.ID)
}

func TestFeedReconnectReplaysCurrentSetOnce(t *testing.T) {
	h := startFeed(t, []string{btcChannel}, 8)
	first := h.connect(t)
	nextFrame(t, first)

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return h.feed.State() != FeedConnected }, time.Second, time.Millisecond)

	// Mutations while down are not sent anywhere.
	h.registry.Increment(ethChannel)
	h.registry.Decrement(btcChannel)
	require.Len(t, first.sentFrames(), 1)

	second := h.connect(t)
	frame := nextFrame(t, second)
	require.Equal(t, domain.Subscribe, frame.Method)
	require.Equal(t, []string{ethChannel}, frame.Params)
	require.Never(t, func() bool { return len(second.sentFrames()) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestFeedRetriesFailedDial(t *testing.T) {
	h := startFeed(t, []string{btcChannel}, 8, errors.New("connection refused"))
	require.Eventually(t, func() bool { return len(h.dialer.failures) == 0 }, time.Second, time.Millisecond)

	session := h.connect(t)
	frame := nextFrame(t, session)
	require.Equal(t, []string{btcChannel}, frame.Params)
}

func TestFeedDeliversTicksAcrossReconnects(t *testing.T) {
	h := startFeed(t, []string{btcChannel}, 8)
	first := h.connect(t)

	first.incoming <- &domain.Tick{Channel: btcChannel, Symbol: "BTC", Price: decimal.NewFromInt(50001)}
	tick := <-h.feed.Ticks()
	require.Equal(t, "BTC", tick.Symbol)
	require.True(t, tick.Price.Equal(decimal.NewFromInt(50001)))

	require.NoError(t, first.Close())
	second := h.connect(t)
	second.incoming <- nil
	second.incoming <- &domain.Tick{Channel: ethChannel, Symbol: "ETH", Price: decimal.NewFromInt(3000)}
	tick = <-h.feed.Ticks()
	require.Equal(t, "ETH", tick.Symbol)
}

func TestFeedFullControlBufferForcesReconnect(t *testing.T) {
	h := startFeed(t, nil, 1)
	first := newFakeSession()
	// Nobody drains sent, so Send blocks after the buffer below fills.
	first.sent = make(chan domain.ControlFrame)
	h.dialer.sessions <- first
	require.Eventually(t, func() bool { return h.feed.State() == FeedConnected }, time.Second, time.Millisecond)

	for _, key := range []string{"aaausdt@kline_1m", "bbbusdt@kline_1m", "cccusdt@kline_1m"} {
		h.registry.Increment(key)
	}

	require.Eventually(t, func() bool {
		select {
		case <-first.closed:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	second := h.connect(t)
	frame := nextFrame(t, second)
	require.Equal(t, []string{"aaausdt@kline_1m", "bbbusdt@kline_1m", "cccusdt@kline_1m"}, frame.Params)
}

func TestFeedClosesTicksOnStop(t *testing.T) {
	h := startFeed(t, nil, 8)
	h.connect(t)

	h.stop()
	_, ok := <-h.feed.Ticks()
	require.False(t, ok)
	require.Equal(t, FeedDisconnected, h.feed.State())
}
