package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"printshop/internal/models"
)

// ShopRepository covers the plain CRUD records around the order core:
// inventory snapshot, staff, and the global server-active flag.
type ShopRepository struct {
	db *sql.DB
}

func NewShopRepository(db *sql.DB) *ShopRepository {
	return &ShopRepository{db: db}
}

func (r *ShopRepository) GetServerStatus(ctx context.Context) (*models.ServerStatus, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT is_active, last_updated FROM server_status WHERE id=1`)
	st := &models.ServerStatus{}
	if err := row.Scan(&st.Active, &st.LastUpdated); err != nil {
		return nil, fmt.Errorf("get server status: %w", err)
	}
	return st, nil
}

func (r *ShopRepository) SetServerStatus(ctx context.Context, active bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE server_status SET is_active=$1, last_updated=NOW() WHERE id=1`, active)
	if err != nil {
		return fmt.Errorf("set server status: %w", err)
	}
	return nil
}

func (r *ShopRepository) GetInventory(ctx context.Context) (*models.Inventory, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, paper_a4, paper_a3, glossy_sheets, matte_sheets,
			ink_black, ink_color, paper_clips, last_updated
		FROM inventory WHERE id=1`)
	inv := &models.Inventory{}
	err := row.Scan(&inv.ID, &inv.PaperA4, &inv.PaperA3, &inv.GlossySheet,
		&inv.MatteSheet, &inv.InkBlack, &inv.InkColor, &inv.PaperClips, &inv.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("get inventory: %w", err)
	}
	return inv, nil
}

func (r *ShopRepository) UpdateInventory(ctx context.Context, inv *models.Inventory) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE inventory SET paper_a4=$1, paper_a3=$2, glossy_sheets=$3,
			matte_sheets=$4, ink_black=$5, ink_color=$6, paper_clips=$7,
			last_updated=NOW()
		WHERE id=1`,
		inv.PaperA4, inv.PaperA3, inv.GlossySheet, inv.MatteSheet,
		inv.InkBlack, inv.InkColor, inv.PaperClips)
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}
	return nil
}

func (r *ShopRepository) ListStaff(ctx context.Context) ([]*models.Staff, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, role, status, created_at
		FROM staff ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	defer rows.Close()

	var res []*models.Staff
	for rows.Next() {
		s := &models.Staff{}
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.Role, &s.Status, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan staff: %w", err)
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r *ShopRepository) CreateStaff(ctx context.Context, s *models.Staff) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO staff (id, name, email, role, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		s.ID, s.Name, s.Email, s.Role, s.Status, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create staff: %w", err)
	}
	return nil
}

func (r *ShopRepository) UpdateStaff(ctx context.Context, s *models.Staff) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE staff SET name=$1, email=$2, role=$3, status=$4 WHERE id=$5`,
		s.Name, s.Email, s.Role, s.Status, s.ID)
	if err != nil {
		return fmt.Errorf("update staff: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("staff %s not found", s.ID)
	}
	return nil
}

func (r *ShopRepository) DeleteStaff(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM staff WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete staff: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("staff %s not found", id)
	}
	return nil
}
