package lifecycle_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"printshop/internal/feed"
	"printshop/internal/identity"
	"printshop/internal/lifecycle"
	"printshop/internal/models"
	"printshop/internal/pricing"
)

var otpPattern = regexp.MustCompile(`^\d{6}$`)

type fakeRepo struct {
	orders map[string]*models.Order
}

func newFakeRepo(orders ...*models.Order) *fakeRepo {
	r := &fakeRepo{orders: make(map[string]*models.Order)}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *fakeRepo) Create(_ context.Context, o *models.Order) error {
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*models.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, id string, status models.Status, updatedAt time.Time) error {
	o := r.orders[id]
	o.Status = status
	o.UpdatedAt = updatedAt
	return nil
}

func (r *fakeRepo) CompletePayment(_ context.Context, id, userID, otp string, updatedAt time.Time) error {
	o := r.orders[id]
	o.Status = models.StatusPaid
	o.PaymentStatus = models.PaymentPaid
	o.OTP = otp
	o.UpdatedAt = updatedAt
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	delete(r.orders, id)
	return nil
}

type fakeShop struct {
	active bool
}

func (s *fakeShop) GetServerStatus(context.Context) (*models.ServerStatus, error) {
	return &models.ServerStatus{Active: s.active}, nil
}

type fakeSink struct {
	events []feed.Event
}

func (s *fakeSink) Enqueue(_ context.Context, e feed.Event) error {
	s.events = append(s.events, e)
	return nil
}

func student(id string) *identity.Session {
	return &identity.Session{UserID: id, Email: id + "@test", Role: identity.RoleStudent}
}

func staff() *identity.Session {
	return &identity.Session{UserID: "staff-1", Email: "shop@test", Role: identity.RoleXerox}
}

func admin() *identity.Session {
	return &identity.Session{UserID: "admin-1", Email: "admin@test", Role: identity.RoleAdmin}
}

func newEngine(repo *fakeRepo, shop *fakeShop, sink *fakeSink) *lifecycle.Engine {
	return lifecycle.NewEngine(repo, shop, pricing.NewService(), sink, nil)
}

func submitRequest() lifecycle.SubmitRequest {
	return lifecycle.SubmitRequest{
		Files:     []models.FileRef{{Name: "notes.pdf", URL: "/files/u1/notes.pdf"}},
		PaperSize: models.PaperNormal,
		Copies:    3,
	}
}

func paidOrder(id, userID string) *models.Order {
	return &models.Order{
		ID:            id,
		UserID:        userID,
		Files:         []models.FileRef{{Name: "doc.pdf", URL: "/files/doc.pdf"}},
		PaperSize:     models.PaperNormal,
		Copies:        1,
		Status:        models.StatusPaid,
		PaymentStatus: models.PaymentPaid,
		OTP:           "654321",
		CreatedAt:     time.Now().UTC(),
	}
}

func TestSubmitCreatesPendingPaymentOrder(t *testing.T) {
	repo := newFakeRepo()
	sink := &fakeSink{}
	e := newEngine(repo, &fakeShop{active: true}, sink)

	order, err := e.Submit(context.Background(), student("u1"), submitRequest())
	assert.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, models.StatusPendingPayment, order.Status)
	assert.Equal(t, models.PaymentPending, order.PaymentStatus)
	assert.Empty(t, order.OTP, "OTP must be absent before payment")

	assert.Len(t, sink.events, 1)
	assert.Equal(t, feed.EventInsert, sink.events[0].Type)
}

func TestSubmitBlockedWhenServerOffline(t *testing.T) {
	repo := newFakeRepo()
	e := newEngine(repo, &fakeShop{active: false}, &fakeSink{})

	_, err := e.Submit(context.Background(), student("u1"), submitRequest())
	assert.ErrorIs(t, err, lifecycle.ErrServerOffline)
	assert.Empty(t, repo.orders)
}

func TestSubmitOfflineGateSkippedForStaff(t *testing.T) {
	repo := newFakeRepo()
	e := newEngine(repo, &fakeShop{active: false}, &fakeSink{})

	_, err := e.Submit(context.Background(), staff(), submitRequest())
	assert.NoError(t, err)
}

func TestSubmitRequiresFiles(t *testing.T) {
	e := newEngine(newFakeRepo(), &fakeShop{active: true}, &fakeSink{})
	req := submitRequest()
	req.Files = nil
	_, err := e.Submit(context.Background(), student("u1"), req)
	assert.ErrorIs(t, err, lifecycle.ErrNoFiles)
}

func TestSubmitValidatesPrintOptions(t *testing.T) {
	e := newEngine(newFakeRepo(), &fakeShop{active: true}, &fakeSink{})
	req := submitRequest()
	req.Copies = 0
	_, err := e.Submit(context.Background(), student("u1"), req)
	assert.ErrorIs(t, err, pricing.ErrInvalidOptions)
}

func TestCompletePaymentIssuesOTP(t *testing.T) {
	order := paidOrder("o1", "u1")
	order.Status = models.StatusPendingPayment
	order.PaymentStatus = models.PaymentPending
	order.OTP = ""
	repo := newFakeRepo(order)
	sink := &fakeSink{}
	e := newEngine(repo, &fakeShop{active: true}, sink)

	updated, err := e.CompletePayment(context.Background(), student("u1"), "o1")
	assert.NoError(t, err)
	assert.Equal(t, models.StatusPaid, updated.Status)
	assert.Equal(t, models.PaymentPaid, updated.PaymentStatus)
	assert.Regexp(t, otpPattern, updated.OTP)

	stored := repo.orders["o1"]
	assert.Equal(t, updated.OTP, stored.OTP)

	assert.Len(t, sink.events, 1)
	assert.Equal(t, feed.EventUpdate, sink.events[0].Type)
	assert.Equal(t, updated.OTP, sink.events[0].Row.OTP)
}

func TestCompletePaymentByNonOwnerIsNotFound(t *testing.T) {
	order := paidOrder("o1", "u1")
	order.Status = models.StatusPendingPayment
	order.PaymentStatus = models.PaymentPending
	order.OTP = ""
	repo := newFakeRepo(order)
	e := newEngine(repo, &fakeShop{active: true}, &fakeSink{})

	_, err := e.CompletePayment(context.Background(), student("u2"), "o1")
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
	assert.Equal(t, models.PaymentPending, repo.orders["o1"].PaymentStatus)
	assert.Empty(t, repo.orders["o1"].OTP)
}

func TestCompletePaymentMissingOrder(t *testing.T) {
	e := newEngine(newFakeRepo(), &fakeShop{active: true}, &fakeSink{})
	_, err := e.CompletePayment(context.Background(), student("u1"), "ghost")
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestCompletePaymentTwiceRejected(t *testing.T) {
	repo := newFakeRepo(paidOrder("o1", "u1"))
	e := newEngine(repo, &fakeShop{active: true}, &fakeSink{})

	_, err := e.CompletePayment(context.Background(), student("u1"), "o1")
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
	assert.Equal(t, "654321", repo.orders["o1"].OTP)
}

func TestUpdateStatusRequiresStaff(t *testing.T) {
	repo := newFakeRepo(paidOrder("o1", "u1"))
	e := newEngine(repo, &fakeShop{active: true}, &fakeSink{})

	_, err := e.UpdateStatus(context.Background(), student("u1"), "o1", models.StatusPrinting)
	assert.ErrorIs(t, err, lifecycle.ErrForbidden)
	assert.Equal(t, models.StatusPaid, repo.orders["o1"].Status)
}

func TestUpdateStatusAllowsForwardSkips(t *testing.T) {
	repo := newFakeRepo(paidOrder("o1", "u1"))
	sink := &fakeSink{}
	e := newEngine(repo, &fakeShop{active: true}, sink)

	// Operators may jump straight from Paid to Delivered.
	updated, err := e.UpdateStatus(context.Background(), staff(), "o1", models.StatusDelivered)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, updated.Status)
	assert.Equal(t, models.StatusDelivered, repo.orders["o1"].Status)
	assert.Len(t, sink.events, 1)
}

func TestUpdateStatusOnTerminalOrderRejected(t *testing.T) {
	order := paidOrder("o1", "u1")
	order.Status = models.StatusDelivered
	repo := newFakeRepo(order)
	e := newEngine(repo, &fakeShop{active: true}, &fakeSink{})

	_, err := e.UpdateStatus(context.Background(), staff(), "o1", models.StatusPrinting)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
	assert.Equal(t, models.StatusDelivered, repo.orders["o1"].Status)
}

func TestUpdateStatusOnUnpaidOrderRejected(t *testing.T) {
	order := paidOrder("o1", "u1")
	order.Status = models.StatusPendingPayment
	order.PaymentStatus = models.PaymentPending
	repo := newFakeRepo(order)
	e := newEngine(repo, &fakeShop{active: true}, &fakeSink{})

	_, err := e.UpdateStatus(context.Background(), staff(), "o1", models.StatusPrinting)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
}

func TestUpdateStatusUnknownTargetRejected(t *testing.T) {
	repo := newFakeRepo(paidOrder("o1", "u1"))
	e := newEngine(repo, &fakeShop{active: true}, &fakeSink{})

	_, err := e.UpdateStatus(context.Background(), staff(), "o1", models.Status("Vaporized"))
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
}

func TestUpdateStatusMissingOrder(t *testing.T) {
	e := newEngine(newFakeRepo(), &fakeShop{active: true}, &fakeSink{})
	_, err := e.UpdateStatus(context.Background(), staff(), "ghost", models.StatusPrinting)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestDeleteRequiresAdmin(t *testing.T) {
	repo := newFakeRepo(paidOrder("o1", "u1"))
	e := newEngine(repo, &fakeShop{active: true}, &fakeSink{})

	assert.ErrorIs(t, e.Delete(context.Background(), staff(), "o1"), lifecycle.ErrForbidden)
	assert.ErrorIs(t, e.Delete(context.Background(), student("u1"), "o1"), lifecycle.ErrForbidden)
	assert.Contains(t, repo.orders, "o1")
}

func TestDeletePublishesDeleteEvent(t *testing.T) {
	repo := newFakeRepo(paidOrder("o1", "u1"))
	sink := &fakeSink{}
	e := newEngine(repo, &fakeShop{active: true}, sink)

	assert.NoError(t, e.Delete(context.Background(), admin(), "o1"))
	assert.NotContains(t, repo.orders, "o1")
	assert.Len(t, sink.events, 1)
	assert.Equal(t, feed.EventDelete, sink.events[0].Type)
	assert.Equal(t, "o1", sink.events[0].ID)
}

func TestDeleteMissingOrder(t *testing.T) {
	e := newEngine(newFakeRepo(), &fakeShop{active: true}, &fakeSink{})
	assert.ErrorIs(t, e.Delete(context.Background(), admin(), "ghost"), lifecycle.ErrNotFound)
}
