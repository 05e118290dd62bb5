package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iurnickita/mercados/internal/model"
	"github.com/iurnickita/mercados/internal/tz"
)

// Наполнение базы для тестов. Реестр платежей, рынки, места и счета
// ведутся внешней системой, сервис их только читает.

var errAlreadyExists = errors.New("already exists")

func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errAlreadyExists
	}
	return classify(err)
}

func (store *store) paymentPost(ctx context.Context, payment model.PaymentRecord) (int64, error) {
	row := store.database.QueryRowContext(ctx,
		"INSERT INTO payment (reference_key, amount, paid_at)"+
			" VALUES ($1, $2, $3)"+
			" RETURNING id",
		payment.Data.ReferenceKey,
		payment.Data.Amount,
		tz.UTC(payment.Data.PaidAt))
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, classify(err)
	}
	return id, nil
}

func (store *store) marketPost(ctx context.Context, market model.Market) (int64, error) {
	row := store.database.QueryRowContext(ctx,
		"INSERT INTO market (name) VALUES ($1) RETURNING id",
		market.Name)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, classify(err)
	}
	return id, nil
}

func (store *store) stallPost(ctx context.Context, stall model.Stall) (int64, error) {
	row := store.database.QueryRowContext(ctx,
		"INSERT INTO stall (market_id, number, status, monthly_fee)"+
			" VALUES ($1, $2, $3, $4)"+
			" RETURNING id",
		stall.Data.MarketID,
		stall.Data.Number,
		stall.Data.Status,
		stall.Data.MonthlyFee)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, uniqueViolation(err)
	}
	return id, nil
}

func (store *store) invoicePost(ctx context.Context, invoice model.Invoice) (int64, error) {
	var paidAt *time.Time
	if invoice.Data.PaidAt != nil {
		t := tz.UTC(*invoice.Data.PaidAt)
		paidAt = &t
	}
	row := store.database.QueryRowContext(ctx,
		"INSERT INTO invoice (stall_id, number, amount, status, issued_at, due_at, paid_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7)"+
			" RETURNING id",
		invoice.Data.StallID,
		invoice.Data.Number,
		invoice.Data.Amount,
		invoice.Data.Status,
		tz.UTC(invoice.Data.IssuedAt),
		tz.UTC(invoice.Data.DueAt),
		paidAt)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, uniqueViolation(err)
	}
	return id, nil
}
