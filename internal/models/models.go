package models

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPendingPayment Status = "PendingPayment"
	StatusPaid           Status = "Paid"
	StatusReadyToPrint   Status = "ReadyToPrint"
	StatusPrinting       Status = "Printing"
	StatusCompleted      Status = "Completed"
	StatusDelivered      Status = "Delivered"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// legacyStatuses maps status strings found in older rows to the canonical set.
var legacyStatuses = map[string]Status{
	"pending payment":               StatusPendingPayment,
	"paid - waiting for processing": StatusPaid,
	"pending":                       StatusPaid,
	"ready to print":                StatusReadyToPrint,
	"ready for pickup":              StatusCompleted,
	"completed":                     StatusCompleted,
	"delivered":                     StatusDelivered,
	"pendingpayment":                StatusPendingPayment,
	"paid":                          StatusPaid,
	"readytoprint":                  StatusReadyToPrint,
	"printing":                      StatusPrinting,
}

// ParseStatus normalizes a persisted status string to the canonical set.
// Labels like "Processing 50%" collapse to Printing. Anything else is kept
// as-is so old rows stay displayable.
func ParseStatus(s string) Status {
	if st, ok := legacyStatuses[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st
	}
	if strings.HasPrefix(strings.ToLower(s), "processing") {
		return StatusPrinting
	}
	return Status(s)
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDelivered
}

type PaperSize string

const (
	PaperNormal PaperSize = "Normal Xerox"
	PaperGlossy PaperSize = "Glossy Print"
	PaperMatte  PaperSize = "Matte Print"
)

type FileRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Order struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Files         []FileRef     `json:"files"`
	PaperSize     PaperSize     `json:"paper_size"`
	Copies        int           `json:"copies"`
	IsColorPrint  bool          `json:"is_color_print"`
	IsDoubleSided bool          `json:"is_double_sided"`
	Notes         string        `json:"notes,omitempty"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	OTP           string        `json:"otp,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (o *Order) Paid() bool {
	return o.PaymentStatus == PaymentPaid
}

// Active reports whether the order still belongs on processing views.
// Terminal orders are excluded by filtering, never deleted.
func (o *Order) Active() bool {
	return !ParseStatus(string(o.Status)).Terminal()
}

type Staff struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Inventory is a single-row snapshot of shop consumables.
type Inventory struct {
	ID          int       `json:"id"`
	PaperA4     int       `json:"paper_a4"`
	PaperA3     int       `json:"paper_a3"`
	GlossySheet int       `json:"glossy_sheets"`
	MatteSheet  int       `json:"matte_sheets"`
	InkBlack    int       `json:"ink_black"`
	InkColor    int       `json:"ink_color"`
	PaperClips  int       `json:"paper_clips"`
	LastUpdated time.Time `json:"last_updated"`
}

type ServerStatus struct {
	Active      bool      `json:"is_active"`
	LastUpdated time.Time `json:"last_updated"`
}
