package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/shopspring/decimal"
)

type memAlerts struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]domain.Alert
	// findErr forces Find to fail when set.
	findErr error
}

func newMemAlerts() *memAlerts {
	return &memAlerts{rows: make(map[uint]domain.Alert)}
}

func (m *memAlerts) sorted() []domain.Alert {
	out := make([]domain.Alert, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memAlerts) Find(ctx context.Context, filter domain.AlertFilter) ([]domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []domain.Alert
	for _, row := range m.sorted() {
		if filter.UserID != nil && row.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && row.Status != *filter.Status {
			continue
		}
		if filter.Symbol != nil && row.Symbol != *filter.Symbol {
			continue
		}
		if filter.ThresholdAtMost != nil && row.Threshold.GreaterThan(*filter.ThresholdAtMost) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (m *memAlerts) FindByUserAndSymbol(ctx context.Context, userID uint, symbol string) (*domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.UserID == userID && row.Symbol == symbol {
			return &row, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memAlerts) GetByID(ctx context.Context, userID uint, alertID uint) (*domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[alertID]
	if !ok || row.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return &row, nil
}

func (m *memAlerts) ListByUser(ctx context.Context, userID uint, status domain.AlertStatus, offset, limit int) ([]domain.Alert, int64, error) {
	all, _ := m.Find(ctx, domain.AlertFilter{UserID: &userID, Status: &status})
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *memAlerts) Insert(ctx context.Context, alert *domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.UserID == alert.UserID && row.Symbol == alert.Symbol {
			return domain.ErrAlertExists
		}
	}
	m.nextID++
	alert.ID = m.nextID
	if alert.Status == "" {
		alert.Status = domain.AlertCreated
	}
	m.rows[alert.ID] = *alert
	return nil
}

func (m *memAlerts) UpdateStatus(ctx context.Context, alertID uint, from, to domain.AlertStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[alertID]
	if !ok || row.Status != from {
		return false, nil
	}
	row.Status = to
	m.rows[alertID] = row
	return true, nil
}

func (m *memAlerts) Revive(ctx context.Context, alertID uint, threshold decimal.Decimal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[alertID]
	if !ok || row.Status != domain.AlertDeleted {
		return false, nil
	}
	row.Status = domain.AlertCreated
	row.Threshold = threshold
	row.TriggeredAt = nil
	m.rows[alertID] = row
	return true, nil
}

func (m *memAlerts) MarkTriggered(ctx context.Context, alertIDs []uint, at time.Time) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var changed []uint
	for _, id := range alertIDs {
		row, ok := m.rows[id]
		if !ok || row.Status != domain.AlertCreated {
			continue
		}
		row.Status = domain.AlertTriggered
		row.TriggeredAt = &at
		m.rows[id] = row
		changed = append(changed, id)
	}
	return changed, nil
}

func (m *memAlerts) Delete(ctx context.Context, userID uint, alertID uint) (domain.AlertStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[alertID]
	if !ok || row.UserID != userID {
		return "", domain.ErrNotFound
	}
	delete(m.rows, alertID)
	return row.Status, nil
}

func (m *memAlerts) ListActiveChannelKeys(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for _, row := range m.sorted() {
		if row.Status == domain.AlertCreated {
			keys = append(keys, row.ChannelKey())
		}
	}
	return keys, nil
}

func (m *memAlerts) status(id uint) domain.AlertStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].Status
}

func (m *memAlerts) rowsFor(userID uint, symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, row := range m.rows {
		if row.UserID == userID && row.Symbol == symbol {
			count++
		}
	}
	return count
}

type memUsers struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{rows: make(map[uint]domain.User)}
}

func (m *memUsers) add(username, email string) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	user := domain.User{ID: m.nextID, Username: username, Email: email}
	m.rows[user.ID] = user
	return user
}

func (m *memUsers) GetByID(ctx context.Context, userID uint) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.rows[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &user, nil
}

func (m *memUsers) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.rows {
		if user.Username == username {
			return &user, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUsers) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.Username == user.Username {
			return domain.ErrDuplicateUser
		}
	}
	m.nextID++
	user.ID = m.nextID
	m.rows[user.ID] = *user
	return nil
}

type controlCall struct {
	Action domain.ControlAction
	Keys   []string
}

type recordingControl struct {
	mu    sync.Mutex
	calls []controlCall
}

func (r *recordingControl) SendControl(action domain.ControlAction, keys []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, controlCall{Action: action, Keys: append([]string(nil), keys...)})
}

func (r *recordingControl) snapshot() []controlCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]controlCall(nil), r.calls...)
}

type sentNotification struct {
	To           domain.Recipient
	Notification domain.Notification
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingDispatcher) Dispatch(to domain.Recipient, n domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{To: to, Notification: n})
}

func (r *recordingDispatcher) snapshot() []sentNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentNotification(nil), r.sent...)
}

type recordingSink struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
	// block makes Notify wait for ctx to end.
	block bool
}

func (r *recordingSink) Notify(ctx context.Context, to domain.Recipient, n domain.Notification) error {
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{To: to, Notification: n})
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

var errSessionClosed = errors.New("session closed")

type fakeSession struct {
	mu       sync.Mutex
	frames   []domain.ControlFrame
	incoming chan *domain.Tick
	closed   chan struct{}
	once     sync.Once
	sent     chan domain.ControlFrame
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		incoming: make(chan *domain.Tick, 16),
		closed:   make(chan struct{}),
		sent:     make(chan domain.ControlFrame, 64),
	}
}

func (s *fakeSession) Send(ctx context.Context, frame domain.ControlFrame) error {
	select {
	case <-s.closed:
		return errSessionClosed
	default:
	}
	s.mu.Lock()
	s.frames = append(s.frames, frame)
	s.mu.Unlock()
	select {
	case s.sent <- frame:
		return nil
	case <-s.closed:
		return errSessionClosed
	}
}

func (s *fakeSession) Receive(ctx context.Context) (*domain.Tick, error) {
	select {
	case <-s.closed:
		return nil, errSessionClosed
	case tick := <-s.incoming:
		return tick, nil
	}
}

func (s *fakeSession) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSession) sentFrames() []domain.ControlFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ControlFrame(nil), s.frames...)
}

type fakeDialer struct {
	sessions chan *fakeSession
	failures chan error
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{sessions: make(chan *fakeSession, 8), failures: make(chan error, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context) (domain.FeedSession, error) {
	select {
	case err := <-d.failures:
		return nil, err
	default:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case session := <-d.sessions:
		return session, nil
	}
}
