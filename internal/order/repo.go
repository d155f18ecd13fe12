package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("order status cannot change")
)

// DBPool is the part of *pgxpool.Pool the repository needs.
type DBPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByReference(ctx context.Context, reference string) (*Order, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error)
	// SettleByReference moves a pending order to status. changed is false when
	// the order already had that status.
	SettleByReference(ctx context.Context, reference string, status Status) (o *Order, changed bool, err error)
}

type PGRepo struct{ db DBPool }

func NewPGRepo(db DBPool) *PGRepo { return &PGRepo{db: db} }

const orderColumns = `id, user_id, amount, currency, status, fulfillment_method, payment_method,
       payment_reference, payment_url, items, created_at, updated_at`

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *PGRepo) Create(ctx context.Context, o *Order) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	return r.db.QueryRow(ctx, `
    INSERT INTO orders (id, user_id, amount, currency, status, fulfillment_method, payment_method,
                        payment_reference, payment_url, idempotency_key, items, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW())
    RETURNING created_at, updated_at
  `, o.ID, o.UserID, o.Amount, o.Currency, string(o.Status), string(o.FulfillmentMethod), string(o.PaymentMethod),
		nullable(o.PaymentReference), nullable(o.PaymentURL), nullable(o.IdempotencyKey), items,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                         Order
		status, fulfillment, meth string
		reference, url            *string
		items                     []byte
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.Amount, &o.Currency, &status, &fulfillment, &meth,
		&reference, &url, &items, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status, o.FulfillmentMethod, o.PaymentMethod = Status(status), Fulfillment(fulfillment), PaymentMethod(meth)
	if reference != nil {
		o.PaymentReference = *reference
	}
	if url != nil {
		o.PaymentURL = *url
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items of order %s: %w", o.ID, err)
	}
	return &o, nil
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (r *PGRepo) GetByReference(ctx context.Context, reference string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.byReference(ctx, reference)
}

func (r *PGRepo) byReference(ctx context.Context, reference string) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_reference=$1`, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `
    SELECT `+orderColumns+`
    FROM orders WHERE user_id=$1
    ORDER BY created_at DESC LIMIT $2 OFFSET $3
  `, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *PGRepo) SettleByReference(ctx context.Context, reference string, status Status) (*Order, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	o, err := scanOrder(r.db.QueryRow(ctx, `
    UPDATE orders SET status=$2, updated_at=NOW()
    WHERE payment_reference=$1 AND status='pending'
    RETURNING `+orderColumns, reference, string(status)))
	if err == nil {
		return o, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	cur, err := r.byReference(ctx, reference)
	if err != nil {
		return nil, false, err
	}
	if cur.Status == status {
		return cur, false, nil
	}
	return cur, false, ErrInvalidTransition
}
