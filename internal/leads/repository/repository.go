// Package repository implements the Postgres-backed lead store.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"intake_backend/internal/leads/domain"
	"intake_backend/platform/phone"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ── Lookup ──────────────────────────────────────────────────────────────────

// LookupLead finds a lead by exact email match first, then by
// digit-normalized phone. Exact match only; PHI from different records is
// never mixed.
func (r *Repository) LookupLead(ctx context.Context, email, phoneNumber string) (*domain.Record, error) {
	rec, err := r.queryOne(ctx, `SELECT * FROM leads WHERE LOWER(email) = LOWER($1)`, email)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup lead by email: %w", err)
	}

	digits := phone.Digits(phoneNumber)
	if digits == "" {
		return nil, domain.ErrNotFound
	}
	rec, err = r.queryOne(ctx,
		`SELECT * FROM leads WHERE REGEXP_REPLACE(mobile_phone, '[^0-9]', '', 'g') = $1`,
		digits)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lookup lead by phone: %w", err)
	}
	return rec, nil
}

func (r *Repository) queryOne(ctx context.Context, sql string, args ...interface{}) (*domain.Record, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return recordFromRow(row), nil
}

// recordFromRow maps a SELECT * row onto a Record. Identity and timestamp
// columns have fixed slots; every other non-null TEXT column lands in Fields.
func recordFromRow(row map[string]interface{}) *domain.Record {
	rec := &domain.Record{Fields: make(map[string]string)}
	for col, value := range row {
		if value == nil {
			continue
		}
		switch col {
		case "lead_id":
			rec.LeadID = toInt64(value)
		case "email":
			rec.Email, _ = value.(string)
		case "mobile_phone":
			rec.MobilePhone, _ = value.(string)
		case "pin_code":
			rec.PinCode, _ = value.(string)
		case "created_at":
			rec.CreatedAt, _ = value.(time.Time)
		case "updated_at":
			rec.UpdatedAt, _ = value.(time.Time)
		default:
			if s, ok := value.(string); ok && s != "" {
				rec.Fields[col] = s
			}
		}
	}
	return rec
}

func toInt64(value interface{}) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}

// ── Create / update ─────────────────────────────────────────────────────────

// CreateLead inserts a new lead with just the contact identity. The phone is
// stored in E.164 form when it parses; lookups normalize to digits either way.
func (r *Repository) CreateLead(ctx context.Context, email, phoneNumber string) (int64, error) {
	var leadID int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO leads (email, mobile_phone)
		VALUES ($1, $2)
		RETURNING lead_id
	`, email, phone.NormalizeE164(phoneNumber)).Scan(&leadID)
	if err != nil {
		return 0, fmt.Errorf("create lead: %w", err)
	}
	return leadID, nil
}

// UpdateLead writes whitelisted profile columns with a dynamically built SET
// clause. Unknown columns are rejected before any SQL is issued.
func (r *Repository) UpdateLead(ctx context.Context, leadID int64, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	setParts := make([]string, 0, len(fields))
	args := make([]interface{}, 0, len(fields)+1)
	for col, value := range fields {
		if !domain.UpdatableColumns[col] {
			return fmt.Errorf("update lead: column %q is not updatable", col)
		}
		args = append(args, value)
		setParts = append(setParts, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	args = append(args, leadID)

	sql := fmt.Sprintf(
		"UPDATE leads SET %s, updated_at = NOW() WHERE lead_id = $%d",
		strings.Join(setParts, ", "), len(args),
	)

	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ── Handoffs ────────────────────────────────────────────────────────────────

func (r *Repository) CreateHandoff(ctx context.Context, leadID int64, handoffType string, payload map[string]interface{}) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal handoff payload: %w", err)
	}

	var handoffID int64
	err = r.pool.QueryRow(ctx, `
		INSERT INTO handoffs (lead_id, handoff_type, payload)
		VALUES ($1, $2, $3)
		RETURNING handoff_id
	`, nullableLeadID(leadID), handoffType, body).Scan(&handoffID)
	if err != nil {
		return 0, fmt.Errorf("create handoff: %w", err)
	}
	return handoffID, nil
}

// nullableLeadID maps the zero id to NULL so handoffs recorded before a lead
// exists still insert.
func nullableLeadID(leadID int64) interface{} {
	if leadID == 0 {
		return nil
	}
	return leadID
}
