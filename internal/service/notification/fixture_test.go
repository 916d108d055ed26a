package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/devflow/devflow-api/internal/email"
	"github.com/devflow/devflow-api/internal/model"
	"github.com/devflow/devflow-api/internal/repository"
	"github.com/devflow/devflow-api/internal/repository/cache"
	"github.com/devflow/devflow-api/internal/repository/postgres"
	"github.com/devflow/devflow-api/internal/testutil"
	"github.com/devflow/devflow-api/pkg/logger"
	"github.com/devflow/devflow-api/pkg/metrics"
	"github.com/devflow/devflow-api/pkg/worker"
)

type pushed struct {
	userID  uuid.UUID
	event   string
	payload interface{}
}

type fakePusher struct {
	mu     sync.Mutex
	online map[uuid.UUID]bool
	sent   []pushed
	err    error
}

func (p *fakePusher) SendToUser(_ context.Context, userID uuid.UUID, event string, payload interface{}) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return false, p.err
	}
	if !p.online[userID] {
		return false, nil
	}
	p.sent = append(p.sent, pushed{userID: userID, event: event, payload: payload})
	return true, nil
}

type mail struct {
	to, subject, body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, mail{to: to, subject: subject, body: body})
	return nil
}

type fakeBroadcaster struct {
	events   []string
	payloads []interface{}
}

func (b *fakeBroadcaster) BroadcastAll(_ context.Context, event string, payload interface{}) error {
	b.events = append(b.events, event)
	b.payloads = append(b.payloads, payload)
	return nil
}

type countingWaker struct{ n int }

func (w *countingWaker) Notify() { w.n++ }

type failingOutbox struct {
	repository.OutboxRepository
}

func (failingOutbox) CreateTx(context.Context, *sqlx.Tx, *model.OutboxEvent) error {
	return errors.New("outbox unavailable")
}

type fixture struct {
	db          *sqlx.DB
	repos       Repositories
	svc         *service
	processor   *worker.OutboxProcessor
	pusher      *fakePusher
	mailer      *fakeMailer
	broadcaster *fakeBroadcaster
	waker       *countingWaker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t)
	base := postgres.NewBaseRepository(db)
	users := postgres.NewUserRepository(base)
	cachedUsers := cache.NewUserRepository(users, cache.Config{})

	f := &fixture{
		db: db,
		repos: Repositories{
			Tx:            &base,
			Notifications: postgres.NewNotificationRepository(base),
			Outbox:        postgres.NewOutboxRepository(base),
			Users:         users,
			Projects:      postgres.NewProjectRepository(base),
		},
		pusher:      &fakePusher{online: map[uuid.UUID]bool{}},
		mailer:      &fakeMailer{},
		broadcaster: &fakeBroadcaster{},
		waker:       &countingWaker{},
	}
	m := metrics.New("test")
	f.svc = NewService(f.repos, f.broadcaster, f.waker, logger.Nop(), m).(*service)

	// Deterministic, strictly increasing creation times.
	clock := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	templates, err := email.NewTemplates()
	require.NoError(t, err)
	deliverer := NewDeliverer(f.pusher, cachedUsers, f.mailer, templates, "https://devflow.test/", logger.Nop(), m)

	f.processor = worker.NewOutboxProcessor(f.repos.Outbox, worker.OutboxProcessorConfig{BatchSize: 10, PollInterval: time.Hour}, logger.Nop(), m)
	f.processor.Register(model.EventNotificationCreated, deliverer)
	return f
}

func (f *fixture) count(t *testing.T, query string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.Get(&n, query))
	return n
}

func (f *fixture) outboxStatuses(t *testing.T) []string {
	t.Helper()
	var statuses []string
	require.NoError(t, f.db.Select(&statuses, `SELECT status FROM outbox_events ORDER BY created_at`))
	return statuses
}
