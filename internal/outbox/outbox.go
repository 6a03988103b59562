package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"printshop/internal/feed"
	"printshop/internal/repository"
)

// Enqueuer persists change events next to the row mutation that produced
// them. The poller relays them to the feed topic afterwards.
type Enqueuer struct {
	repo repository.OutboxRepository
}

func NewEnqueuer(repo repository.OutboxRepository) *Enqueuer {
	return &Enqueuer{repo: repo}
}

func (e *Enqueuer) Enqueue(ctx context.Context, event feed.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return e.repo.CreateEvent(ctx, payload)
}

// Poller drains pending outbox rows into the change feed with bounded
// retries per event.
type Poller struct {
	repo         repository.OutboxRepository
	publisher    feed.Publisher
	pollInterval time.Duration
	limit        int
	maxAttempts  int
	retryDelay   time.Duration
}

func NewPoller(repo repository.OutboxRepository, publisher feed.Publisher, pollInterval time.Duration, limit int) *Poller {
	return &Poller{
		repo:         repo,
		publisher:    publisher,
		pollInterval: pollInterval,
		limit:        limit,
		maxAttempts:  3,
		retryDelay:   2 * time.Second,
	}
}

func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.relayPending(ctx)
		}
	}
}

func (p *Poller) relayPending(ctx context.Context) {
	events, err := p.repo.GetPendingEvents(ctx, p.limit, p.maxAttempts)
	if err != nil {
		log.Printf("Error fetching pending events: %v", err)
		return
	}
	for _, ev := range events {
		if err := p.repo.MarkEventProcessing(ctx, ev.ID); err != nil {
			log.Printf("Error marking event %d as PROCESSING: %v", ev.ID, err)
			continue
		}

		var change feed.Event
		if err := json.Unmarshal(ev.Payload, &change); err != nil {
			log.Printf("Dropping malformed outbox event %d: %v", ev.ID, err)
			if err := p.repo.DeleteEvent(ctx, ev.ID); err != nil {
				log.Printf("Error deleting malformed event %d: %v", ev.ID, err)
			}
			continue
		}

		if err := p.publisher.Publish(change); err != nil {
			p.markFailed(ctx, ev, err)
			continue
		}
		if err := p.repo.DeleteEvent(ctx, ev.ID); err != nil {
			log.Printf("Error deleting event %d after publish: %v", ev.ID, err)
		}
	}
}

func (p *Poller) markFailed(ctx context.Context, ev *repository.OutboxEvent, cause error) {
	newAttempt := ev.AttemptCount + 1
	newStatus := repository.EventStatusFailed
	if newAttempt >= p.maxAttempts {
		newStatus = repository.EventStatusNoAttemptsLeft
	}
	nextAttempt := time.Now().Add(p.retryDelay)
	if err := p.repo.UpdateEventFailure(ctx, ev.ID, newAttempt, newStatus, nextAttempt); err != nil {
		log.Printf("Error updating event %d on failure: %v", ev.ID, err)
	}
	log.Printf("Failed to publish event %d: %v", ev.ID, cause)
}
