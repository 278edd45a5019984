package usecase

import (
	"sort"
	"sync"

	"github.com/NasaVasa/pricealert/internal/domain"
	"go.uber.org/zap"
)

// ControlSink receives subscribe/unsubscribe intents. It is called while the
// registry lock is held and must not block or call back into the registry.
type ControlSink interface {
	SendControl(action domain.ControlAction, keys []string)
}

// SubscriptionRegistry counts created alerts per feed channel. A channel is
// subscribed exactly while its count is positive.
type SubscriptionRegistry struct {
	mu      sync.Mutex
	counts  map[string]int
	sink    ControlSink
	metrics Metrics
	logger  *zap.Logger
}

func NewSubscriptionRegistry(metrics Metrics, logger *zap.Logger) *SubscriptionRegistry {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &SubscriptionRegistry{
		counts:  make(map[string]int),
		metrics: metrics,
		logger:  logger,
	}
}

func (r *SubscriptionRegistry) SetSink(sink ControlSink) {
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
}

// Seed rebuilds counts from one key per created alert. No intents are emitted;
// the feed replays the snapshot when it connects.
func (r *SubscriptionRegistry) Seed(keys []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts = make(map[string]int, len(keys))
	for _, key := range keys {
		r.counts[key]++
	}
	r.metrics.SubscribedChannels(len(r.counts))
	r.logger.Info("subscription registry seeded", zap.Int("alerts", len(keys)), zap.Int("channels", len(r.counts)))
}

// Increment reports whether the channel went from zero to one.
func (r *SubscriptionRegistry) Increment(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[key]++
	if r.counts[key] != 1 {
		return false
	}
	r.metrics.SubscribedChannels(len(r.counts))
	r.emit(domain.Subscribe, []string{key})
	return true
}

// Decrement reports whether the channel went from one to zero.
func (r *SubscriptionRegistry) Decrement(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.decrementLocked(key) {
		return false
	}
	r.emit(domain.Unsubscribe, []string{key})
	return true
}

// Release decrements once per key and, if the subscribed key set changed,
// emits a single Unsubscribe(before) / Subscribe(after) pair.
func (r *SubscriptionRegistry) Release(keys []string) {
	if len(keys) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	before := r.keysLocked()
	for _, key := range keys {
		r.decrementLocked(key)
	}
	after := r.keysLocked()
	if equalKeys(before, after) {
		return
	}
	r.emit(domain.Unsubscribe, before)
	r.emit(domain.Subscribe, after)
}

func (r *SubscriptionRegistry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keysLocked()
}

func (r *SubscriptionRegistry) Count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

// Replay runs fn with the current key set while holding the lock, so no
// intent can be emitted between the snapshot and whatever fn does with it.
func (r *SubscriptionRegistry) Replay(fn func(keys []string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.keysLocked())
}

func (r *SubscriptionRegistry) decrementLocked(key string) bool {
	count, ok := r.counts[key]
	if !ok || count <= 0 {
		delete(r.counts, key)
		r.logger.Warn("subscription registry decrement below zero", zap.String("channel", key))
		return false
	}
	if count > 1 {
		r.counts[key] = count - 1
		return false
	}
	delete(r.counts, key)
	r.metrics.SubscribedChannels(len(r.counts))
	return true
}

func (r *SubscriptionRegistry) keysLocked() []string {
	keys := make([]string, 0, len(r.counts))
	for key := range r.counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (r *SubscriptionRegistry) emit(action domain.ControlAction, keys []string) {
	if r.sink == nil {
		return
	}
	r.sink.SendControl(action, keys)
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
