package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"printshop/internal/models"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, user_id, files, paper_size, copies, is_color_print,
		is_double_sided, notes, status, payment_status, otp, created_at, updated_at`

func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	files, err := json.Marshal(o.Files)
	if err != nil {
		return fmt.Errorf("marshal files: %w", err)
	}
	query := `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err = r.db.ExecContext(ctx, query,
		o.ID, o.UserID, files, o.PaperSize, o.Copies, o.IsColorPrint,
		o.IsDoubleSided, o.Notes, o.Status, o.PaymentStatus, o.OTP,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// GetByID returns nil without error when the order does not exist.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) Update(ctx context.Context, o *models.Order) error {
	files, err := json.Marshal(o.Files)
	if err != nil {
		return fmt.Errorf("marshal files: %w", err)
	}
	query := `UPDATE orders SET
			files=$1, paper_size=$2, copies=$3, is_color_print=$4,
			is_double_sided=$5, notes=$6, status=$7, payment_status=$8,
			otp=$9, updated_at=$10
		WHERE id=$11`
	res, err := r.db.ExecContext(ctx, query,
		files, o.PaperSize, o.Copies, o.IsColorPrint,
		o.IsDoubleSided, o.Notes, o.Status, o.PaymentStatus,
		o.OTP, o.UpdatedAt, o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("order %s not found", o.ID)
	}
	return nil
}

// UpdateStatus sets only the lifecycle status column.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status models.Status, updatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status=$1, updated_at=$2 WHERE id=$3`,
		status, updatedAt, id,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("order %s not found", id)
	}
	return nil
}

// CompletePayment flips the order to paid and attaches the pickup OTP. The
// user_id predicate keeps the write owner-scoped.
func (r *OrderRepository) CompletePayment(ctx context.Context, id, userID, otp string, updatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status=$1, payment_status=$2, otp=$3, updated_at=$4
			WHERE id=$5 AND user_id=$6`,
		models.StatusPaid, models.PaymentPaid, otp, updatedAt, id, userID,
	)
	if err != nil {
		return fmt.Errorf("complete payment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("order %s not found", id)
	}
	return nil
}

// ListOrders returns orders newest first, optionally scoped to one owner.
// Satisfies store.Loader.
func (r *OrderRepository) ListOrders(ctx context.Context, userID string) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []interface{}
	if userID != "" {
		query += ` WHERE user_id=$1`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var res []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row scanner) (*models.Order, error) {
	o := &models.Order{}
	var files []byte
	var notes, otp sql.NullString
	err := row.Scan(
		&o.ID, &o.UserID, &files, &o.PaperSize, &o.Copies, &o.IsColorPrint,
		&o.IsDoubleSided, &notes, &o.Status, &o.PaymentStatus, &otp,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Notes = notes.String
	o.OTP = otp.String
	if len(files) > 0 {
		if err := json.Unmarshal(files, &o.Files); err != nil {
			return nil, fmt.Errorf("unmarshal files: %w", err)
		}
	}
	o.Status = models.ParseStatus(string(o.Status))
	return o, nil
}
