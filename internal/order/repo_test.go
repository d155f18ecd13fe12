package order

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/afrimarket/internal/cart"
)

var cols = []string{"id", "user_id", "amount", "currency", "status", "fulfillment_method", "payment_method",
	"payment_reference", "payment_url", "items", "created_at", "updated_at"}

func ptr(s string) *string { return &s }

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestPGRepo_Create(t *testing.T) {
	mock := newMock(t)
	repo := NewPGRepo(mock)
	now := time.Now().UTC()

	o := &Order{
		ID: "o-1", UserID: "u-1", Amount: 10000, Currency: "XAF",
		Status: StatusPending, FulfillmentMethod: FulfillmentOnline, PaymentMethod: MethodPhone,
		PaymentReference: "order_u-1_1", PaymentURL: "https://campay.net/pay/x",
		Items: []cart.Item{{ProductID: 1, Name: "a", UnitPrice: decimal.NewFromInt(5000), Currency: "XAF", Quantity: 2}},
	}
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders")).
		WithArgs("o-1", "u-1", int64(10000), "XAF", "pending", "online", "phone",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	require.NoError(t, repo.Create(context.Background(), o))
	assert.Equal(t, now, o.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepo_GetByID(t *testing.T) {
	mock := newMock(t)
	repo := NewPGRepo(mock)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM orders WHERE id=\$1`).
		WithArgs("o-1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			"o-1", "u-1", int64(3000), "XAF", "pending", "delivery", "delivery",
			ptr("order_u-1_9"), ptr(""),
			[]byte(`[{"productId":4,"name":"Kola","unitPrice":"1500","currency":"XAF","quantity":2}]`),
			now, now))

	o, err := repo.GetByID(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, FulfillmentDelivery, o.FulfillmentMethod)
	require.Len(t, o.Items, 1)
	assert.True(t, o.Items[0].UnitPrice.Equal(decimal.NewFromInt(1500)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepo_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewPGRepo(mock)

	mock.ExpectQuery(`SELECT .+ FROM orders WHERE id=\$1`).WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPGRepo_GetByReference(t *testing.T) {
	mock := newMock(t)
	repo := NewPGRepo(mock)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM orders WHERE payment_reference=\$1`).
		WithArgs("order_u-1_9").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			"o-1", "u-1", int64(3000), "XAF", "pending", "online", "phone",
			ptr("order_u-1_9"), ptr("https://x/1"), []byte(`[]`), now, now))
	mock.ExpectQuery(`SELECT .+ FROM orders WHERE payment_reference=\$1`).WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	o, err := repo.GetByReference(context.Background(), "order_u-1_9")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), o.Amount)

	_, err = repo.GetByReference(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepo_ListByUser_ClampsPaging(t *testing.T) {
	mock := newMock(t)
	repo := NewPGRepo(mock)
	now := time.Now().UTC()

	rows := pgxmock.NewRows(cols).
		AddRow("o-2", "u-1", int64(2000), "XAF", "completed", "online", "card", ptr("r2"), ptr("https://x/2"), []byte(`[]`), now, now).
		AddRow("o-1", "u-1", int64(1000), "XAF", "pending", "online", "phone", ptr("r1"), ptr("https://x/1"), []byte(`[]`), now, now)
	mock.ExpectQuery(`FROM orders WHERE user_id=\$1`).WithArgs("u-1", 20, 0).WillReturnRows(rows)

	out, err := repo.ListByUser(context.Background(), "u-1", 500, -3)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "o-2", out[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepo_SettleByReference(t *testing.T) {
	now := time.Now().UTC()
	row := func(status string) *pgxmock.Rows {
		return pgxmock.NewRows(cols).AddRow("o-1", "u-1", int64(1000), "XAF", status, "online", "phone",
			ptr("r1"), ptr("https://x/1"), []byte(`[]`), now, now)
	}

	t.Run("pending to completed", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE orders SET status=\$2`).WithArgs("r1", "completed").WillReturnRows(row("completed"))

		o, changed, err := NewPGRepo(mock).SettleByReference(context.Background(), "r1", StatusCompleted)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, StatusCompleted, o.Status)
	})

	t.Run("already settled same way", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE orders SET status=\$2`).WithArgs("r1", "completed").WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(`FROM orders WHERE payment_reference=\$1`).WithArgs("r1").WillReturnRows(row("completed"))

		_, changed, err := NewPGRepo(mock).SettleByReference(context.Background(), "r1", StatusCompleted)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("conflicting terminal status", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE orders SET status=\$2`).WithArgs("r1", "completed").WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(`FROM orders WHERE payment_reference=\$1`).WithArgs("r1").WillReturnRows(row("cancelled"))

		_, _, err := NewPGRepo(mock).SettleByReference(context.Background(), "r1", StatusCompleted)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("unknown reference", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE orders SET status=\$2`).WithArgs("zz", "cancelled").WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(`FROM orders WHERE payment_reference=\$1`).WithArgs("zz").WillReturnError(pgx.ErrNoRows)

		_, _, err := NewPGRepo(mock).SettleByReference(context.Background(), "zz", StatusCancelled)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusCompleted))
	assert.True(t, CanTransition(StatusPending, StatusCancelled))
	assert.False(t, CanTransition(StatusCompleted, StatusCancelled))
	assert.False(t, CanTransition(StatusPending, StatusPending))
}

func TestPaymentMethod(t *testing.T) {
	assert.True(t, MethodPhone.Valid())
	assert.False(t, PaymentMethod("cash").Valid())
	assert.Equal(t, FulfillmentDelivery, MethodDelivery.Fulfillment())
	assert.Equal(t, FulfillmentOnline, MethodCard.Fulfillment())
}
