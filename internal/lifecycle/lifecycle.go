package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"printshop/internal/audit"
	"printshop/internal/feed"
	"printshop/internal/identity"
	"printshop/internal/models"
	"printshop/internal/pricing"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrServerOffline     = errors.New("print server is offline")
	ErrNoFiles           = errors.New("order must contain at least one file")
)

type OrderRepo interface {
	Create(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	UpdateStatus(ctx context.Context, id string, status models.Status, updatedAt time.Time) error
	CompletePayment(ctx context.Context, id, userID, otp string, updatedAt time.Time) error
	Delete(ctx context.Context, id string) error
}

type ServerStatusSource interface {
	GetServerStatus(ctx context.Context) (*models.ServerStatus, error)
}

// EventSink receives change events for publication on the feed. Implemented
// by the outbox enqueuer; nil-safe so tests can run the engine bare.
type EventSink interface {
	Enqueue(ctx context.Context, event feed.Event) error
}

// Engine owns every order state transition. It writes through the
// repository and announces the result on the change feed; it never touches
// a viewer's local store, which catches up from the feed instead.
type Engine struct {
	repo    OrderRepo
	shop    ServerStatusSource
	pricing pricing.Service
	events  EventSink
	auditor *audit.Pool
}

func NewEngine(repo OrderRepo, shop ServerStatusSource, ps pricing.Service, events EventSink, auditor *audit.Pool) *Engine {
	return &Engine{
		repo:    repo,
		shop:    shop,
		pricing: ps,
		events:  events,
		auditor: auditor,
	}
}

type SubmitRequest struct {
	Files         []models.FileRef
	PaperSize     models.PaperSize
	Copies        int
	IsColorPrint  bool
	IsDoubleSided bool
	Notes         string
}

// Submit creates a new order in PendingPayment. The server-active flag gates
// student submissions only; staff and existing-order transitions are exempt.
func (e *Engine) Submit(ctx context.Context, session *identity.Session, req SubmitRequest) (*models.Order, error) {
	if session.Role == identity.RoleStudent && e.shop != nil {
		st, err := e.shop.GetServerStatus(ctx)
		if err != nil {
			return nil, fmt.Errorf("check server status: %w", err)
		}
		if !st.Active {
			return nil, ErrServerOffline
		}
	}
	if len(req.Files) == 0 {
		return nil, ErrNoFiles
	}
	if _, err := e.pricing.Quote(req.PaperSize, req.Copies, req.IsColorPrint, req.IsDoubleSided); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &models.Order{
		ID:            uuid.NewString(),
		UserID:        session.UserID,
		Files:         req.Files,
		PaperSize:     req.PaperSize,
		Copies:        req.Copies,
		IsColorPrint:  req.IsColorPrint,
		IsDoubleSided: req.IsDoubleSided,
		Notes:         req.Notes,
		Status:        models.StatusPendingPayment,
		PaymentStatus: models.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.repo.Create(ctx, order); err != nil {
		return nil, err
	}
	e.announce(ctx, feed.InsertEvent(order))
	e.record(order.ID, "", order.Status, "order submitted")
	return order, nil
}

// CompletePayment moves PendingPayment to Paid and issues the pickup OTP.
// Only the owner may pay; a missing or foreign order reads as not found so
// the caller learns nothing about other users' orders.
func (e *Engine) CompletePayment(ctx context.Context, session *identity.Session, orderID string) (*models.Order, error) {
	order, err := e.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.UserID != session.UserID {
		return nil, ErrNotFound
	}
	status := models.ParseStatus(string(order.Status))
	if status.Terminal() || order.Paid() {
		return nil, fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, orderID, status)
	}

	otp := generateOTP()
	now := time.Now().UTC()
	if err := e.repo.CompletePayment(ctx, orderID, session.UserID, otp, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	updated := *order
	updated.Status = models.StatusPaid
	updated.PaymentStatus = models.PaymentPaid
	updated.OTP = otp
	updated.UpdatedAt = now
	e.announce(ctx, feed.UpdateEvent(&updated))
	e.record(orderID, status, models.StatusPaid, "payment completed")
	return &updated, nil
}

// UpdateStatus lets shop staff set any forward status on a paid order.
// Skipped middle states are allowed; terminal orders reject all further
// transitions.
func (e *Engine) UpdateStatus(ctx context.Context, session *identity.Session, orderID string, target models.Status) (*models.Order, error) {
	if !session.Staff() {
		return nil, ErrForbidden
	}
	order, err := e.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}
	current := models.ParseStatus(string(order.Status))
	if current.Terminal() {
		return nil, fmt.Errorf("%w: order %s is already %s", ErrInvalidTransition, orderID, current)
	}
	if !order.Paid() {
		return nil, fmt.Errorf("%w: order %s is not paid", ErrInvalidTransition, orderID)
	}
	switch target {
	case models.StatusPaid, models.StatusReadyToPrint, models.StatusPrinting,
		models.StatusCompleted, models.StatusDelivered:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}

	now := time.Now().UTC()
	if err := e.repo.UpdateStatus(ctx, orderID, target, now); err != nil {
		return nil, err
	}

	updated := *order
	updated.Status = target
	updated.UpdatedAt = now
	e.announce(ctx, feed.UpdateEvent(&updated))
	e.record(orderID, current, target, "status updated")
	return &updated, nil
}

// Delete removes an order outright. Admin only; processing dashboards drop
// terminal orders by filtering, so deletion stays an administrative tool.
func (e *Engine) Delete(ctx context.Context, session *identity.Session, orderID string) error {
	if session.Role != identity.RoleAdmin {
		return ErrForbidden
	}
	order, err := e.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrNotFound
	}
	if err := e.repo.Delete(ctx, orderID); err != nil {
		return err
	}
	e.announce(ctx, feed.DeleteEvent(orderID))
	e.record(orderID, models.ParseStatus(string(order.Status)), "", "order deleted")
	return nil
}

func (e *Engine) announce(ctx context.Context, event feed.Event) {
	if e.events == nil {
		return
	}
	if err := e.events.Enqueue(ctx, event); err != nil {
		// The write already landed; the next bulk load repairs any viewer
		// that misses this event.
		log.Printf("Failed to enqueue %s event for order %s: %v", event.Type, event.ID, err)
	}
}

func (e *Engine) record(orderID string, from, to models.Status, message string) {
	if e.auditor == nil {
		return
	}
	e.auditor.Log(audit.Transition{
		Timestamp: time.Now().UTC(),
		OrderID:   orderID,
		OldStatus: string(from),
		NewStatus: string(to),
		Message:   message,
	})
}

// generateOTP returns a uniformly random 6-digit code. Collisions across
// orders are acceptable: the code is scoped to a single pickup interaction.
func generateOTP() string {
	return fmt.Sprintf("%06d", 100000+rand.Intn(900000))
}
