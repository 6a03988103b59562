package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"printshop/internal/feed"
	"printshop/internal/models"
	"printshop/internal/outbox"
	"printshop/internal/repository"
)

type memOutboxRepo struct {
	mu     sync.Mutex
	nextID int64
	events map[int64]*repository.OutboxEvent
}

func newMemOutboxRepo() *memOutboxRepo {
	return &memOutboxRepo{events: make(map[int64]*repository.OutboxEvent)}
}

func (r *memOutboxRepo) CreateEvent(_ context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.events[r.nextID] = &repository.OutboxEvent{
		ID:        r.nextID,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
		Status:    repository.EventStatusCreated,
	}
	return nil
}

func (r *memOutboxRepo) GetPendingEvents(_ context.Context, limit, maxAttempts int) ([]*repository.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*repository.OutboxEvent
	for id := int64(1); id <= r.nextID && len(out) < limit; id++ {
		e, ok := r.events[id]
		if !ok || e.AttemptCount >= maxAttempts {
			continue
		}
		if e.Status != repository.EventStatusCreated && e.Status != repository.EventStatusFailed {
			continue
		}
		if e.NextAttemptAt.Valid && e.NextAttemptAt.Time.After(time.Now()) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memOutboxRepo) MarkEventProcessing(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return errors.New("no such event")
	}
	e.Status = repository.EventStatusProcessing
	return nil
}

func (r *memOutboxRepo) DeleteEvent(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, id)
	return nil
}

func (r *memOutboxRepo) UpdateEventFailure(_ context.Context, id int64, attemptCount int, status repository.EventStatus, nextAttemptAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return errors.New("no such event")
	}
	e.AttemptCount = attemptCount
	e.Status = status
	e.NextAttemptAt.Valid = true
	e.NextAttemptAt.Time = nextAttemptAt
	return nil
}

func (r *memOutboxRepo) remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *memOutboxRepo) get(id int64) (repository.OutboxEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return repository.OutboxEvent{}, false
	}
	return *e, true
}

type memPublisher struct {
	mu        sync.Mutex
	published []feed.Event
	err       error
}

func (p *memPublisher) Publish(e feed.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, e)
	return nil
}

func (p *memPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Fail(t, "condition not met before deadline")
}

func TestEnqueuePersistsEvent(t *testing.T) {
	repo := newMemOutboxRepo()
	enq := outbox.NewEnqueuer(repo)

	order := &models.Order{ID: "o1", UserID: "u1", Status: models.StatusPendingPayment}
	assert.NoError(t, enq.Enqueue(context.Background(), feed.InsertEvent(order)))
	assert.Equal(t, 1, repo.remaining())

	stored, ok := repo.get(1)
	assert.True(t, ok)
	var ev feed.Event
	assert.NoError(t, json.Unmarshal(stored.Payload, &ev))
	assert.Equal(t, feed.EventInsert, ev.Type)
	assert.Equal(t, "o1", ev.Row.ID)
}

func TestPollerRelaysAndDeletes(t *testing.T) {
	repo := newMemOutboxRepo()
	pub := &memPublisher{}
	enq := outbox.NewEnqueuer(repo)

	for _, id := range []string{"o1", "o2"} {
		order := &models.Order{ID: id, UserID: "u1"}
		assert.NoError(t, enq.Enqueue(context.Background(), feed.InsertEvent(order)))
	}

	poller := outbox.NewPoller(repo, pub, 10*time.Millisecond, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Start(ctx)

	waitFor(t, func() bool { return pub.count() == 2 })
	waitFor(t, func() bool { return repo.remaining() == 0 })
}

func TestPollerMarksFailureAndSchedulesRetry(t *testing.T) {
	repo := newMemOutboxRepo()
	pub := &memPublisher{err: errors.New("broker down")}
	enq := outbox.NewEnqueuer(repo)

	order := &models.Order{ID: "o1", UserID: "u1"}
	assert.NoError(t, enq.Enqueue(context.Background(), feed.InsertEvent(order)))

	poller := outbox.NewPoller(repo, pub, 10*time.Millisecond, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Start(ctx)

	waitFor(t, func() bool {
		e, ok := repo.get(1)
		return ok && e.AttemptCount == 1 && e.Status == repository.EventStatusFailed
	})

	// The retry delay pushes the next attempt into the future, so the row
	// stays untouched until then.
	e, _ := repo.get(1)
	assert.True(t, e.NextAttemptAt.Valid)
	assert.True(t, e.NextAttemptAt.Time.After(time.Now()))
	assert.Equal(t, 0, pub.count())
}

func TestPollerDropsMalformedPayload(t *testing.T) {
	repo := newMemOutboxRepo()
	assert.NoError(t, repo.CreateEvent(context.Background(), []byte("not json")))

	poller := outbox.NewPoller(repo, &memPublisher{}, 10*time.Millisecond, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Start(ctx)

	waitFor(t, func() bool { return repo.remaining() == 0 })
}
