// Package catalog reads current product prices from the marketplace's products table.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/afrimarket/internal/money"
)

var ErrNotFound = errors.New("product not found")

type DBPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Repository interface {
	// Prices returns the current unit price of each known product id.
	Prices(ctx context.Context, ids []int64) (map[int64]decimal.Decimal, error)
}

type PGRepo struct{ db DBPool }

func NewPGRepo(db DBPool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) Prices(ctx context.Context, ids []int64) (map[int64]decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out := make(map[int64]decimal.Decimal, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	// price is a display string in the products table
	rows, err := r.db.Query(ctx, `
		SELECT id, price::text
		FROM products WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    int64
			price string
		)
		if err := rows.Scan(&id, &price); err != nil {
			return nil, err
		}
		d, err := money.ParsePrice(price)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", id, err)
		}
		out[id] = d
	}
	return out, rows.Err()
}
