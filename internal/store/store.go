package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"github.com/iurnickita/mercados/internal/model"
	"github.com/iurnickita/mercados/internal/store/config"
	"github.com/iurnickita/mercados/internal/tz"
)

type Store interface {
	Ping(ctx context.Context) error
	Close() error

	ConsultationLogPost(ctx context.Context, log model.ConsultationLog) (int64, error)
	ConsultationLogGet(ctx context.Context, from time.Time, to time.Time) ([]model.ConsultationLog, error)
	PaymentGetByKeys(ctx context.Context, keys []string) ([]model.PaymentRecord, error)

	InvoiceStateCounts(ctx context.Context) (map[string]int, error)
	InvoicePaidSum(ctx context.Context, from *time.Time, to *time.Time) (decimal.Decimal, error)
	InvoicePaidAverage(ctx context.Context) (decimal.Decimal, error)
	StallOccupancy(ctx context.Context) ([]model.MarketOccupancy, error)
}

var ErrUnavailable = errors.New("store unavailable")

type store struct {
	database *sql.DB
}

func NewStore(cfg config.Config) (Store, error) {
	db, err := sql.Open("pgx", cfg.DBDsn)
	if err != nil {
		return nil, err
	}

	for _, stmt := range schema {
		if _, err = db.Exec(stmt); err != nil {
			db.Close()
			return nil, classify(err)
		}
	}

	return &store{
		database: db,
	}, nil
}

var schema = []string{
	// Рынки и места
	"CREATE TABLE IF NOT EXISTS market (" +
		" id SERIAL PRIMARY KEY," +
		" name VARCHAR (100) NOT NULL" +
		" );",
	"CREATE TABLE IF NOT EXISTS stall (" +
		" id SERIAL PRIMARY KEY," +
		" market_id INTEGER NOT NULL REFERENCES market (id)," +
		" number VARCHAR (20) NOT NULL," +
		" status VARCHAR (20) NOT NULL," +
		" monthly_fee NUMERIC (12, 2) NOT NULL DEFAULT 0," +
		" UNIQUE (market_id, number)" +
		" );",
	// Счета. Одна строка на счет, меняется только статус и дата оплаты
	"CREATE TABLE IF NOT EXISTS invoice (" +
		" id SERIAL PRIMARY KEY," +
		" stall_id INTEGER NOT NULL REFERENCES stall (id)," +
		" number VARCHAR (30) NOT NULL UNIQUE," +
		" amount NUMERIC (12, 2) NOT NULL," +
		" status VARCHAR (20) NOT NULL" +
		"   CHECK (status IN ('PAID', 'PENDING', 'OVERDUE', 'CANCELLED'))," +
		" issued_at TIMESTAMPTZ NOT NULL," +
		" due_at TIMESTAMPTZ NOT NULL," +
		" paid_at TIMESTAMPTZ" +
		" );",
	// Журнал консультаций. Только вставка, записи не редактируются и не удаляются
	"CREATE TABLE IF NOT EXISTS consultation_log (" +
		" id BIGSERIAL PRIMARY KEY," +
		" type VARCHAR (3) NOT NULL," +
		" subtype VARCHAR (10) NOT NULL," +
		" search_key VARCHAR (40)," +
		" created_at TIMESTAMPTZ NOT NULL," +
		" result_total TEXT," +
		" user_code VARCHAR (20) NOT NULL," +
		" user_location VARCHAR (100) NOT NULL" +
		" );",
	"CREATE INDEX IF NOT EXISTS consultation_log_created_at ON consultation_log (created_at);",
	// Реестр платежей
	"CREATE TABLE IF NOT EXISTS payment (" +
		" id BIGSERIAL PRIMARY KEY," +
		" reference_key VARCHAR (40) NOT NULL," +
		" amount NUMERIC (14, 2) NOT NULL," +
		" paid_at TIMESTAMPTZ NOT NULL" +
		" );",
	"CREATE INDEX IF NOT EXISTS payment_reference_key ON payment (reference_key);",
}

// classify отделяет недоступность базы от ошибок конкретного запроса.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) ||
		errors.As(err, &netErr) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func (store *store) Ping(ctx context.Context) error {
	return classify(store.database.PingContext(ctx))
}

func (store *store) Close() error {
	return store.database.Close()
}

func (store *store) ConsultationLogPost(ctx context.Context, log model.ConsultationLog) (int64, error) {
	row := store.database.QueryRowContext(ctx,
		"INSERT INTO consultation_log (type, subtype, search_key, created_at, result_total, user_code, user_location)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7)"+
			" RETURNING id",
		log.Data.Type,
		log.Data.Subtype,
		log.Data.SearchKey,
		tz.UTC(log.Data.CreatedAt),
		log.Data.ResultTotal,
		log.Data.UserCode,
		log.Data.UserLocation)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, classify(err)
	}
	return id, nil
}

func (store *store) ConsultationLogGet(ctx context.Context, from time.Time, to time.Time) ([]model.ConsultationLog, error) {
	// Только записи с ключом поиска
	rows, err := store.database.QueryContext(ctx,
		"SELECT id, type, subtype, search_key, created_at, result_total, user_code, user_location"+
			" FROM consultation_log"+
			" WHERE created_at >= $1"+
			"   AND created_at < $2"+
			"   AND search_key IS NOT NULL"+
			" ORDER BY created_at, id",
		tz.UTC(from),
		tz.UTC(to))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var logs []model.ConsultationLog
	for rows.Next() {
		var logRow model.ConsultationLog
		var searchKey, resultTotal sql.NullString
		err := rows.Scan(&logRow.ID,
			&logRow.Data.Type,
			&logRow.Data.Subtype,
			&searchKey,
			&logRow.Data.CreatedAt,
			&resultTotal,
			&logRow.Data.UserCode,
			&logRow.Data.UserLocation)
		if err != nil {
			return nil, classify(err)
		}
		if searchKey.Valid {
			logRow.Data.SearchKey = &searchKey.String
		}
		if resultTotal.Valid {
			logRow.Data.ResultTotal = &resultTotal.String
		}
		logRow.Data.CreatedAt = tz.UTC(logRow.Data.CreatedAt)
		logs = append(logs, logRow)
	}

	return logs, classify(rows.Err())
}

func (store *store) PaymentGetByKeys(ctx context.Context, keys []string) ([]model.PaymentRecord, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rows, err := store.database.QueryContext(ctx,
		"SELECT id, reference_key, amount, paid_at"+
			" FROM payment"+
			" WHERE reference_key = ANY($1)"+
			" ORDER BY paid_at, id",
		keys)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var payments []model.PaymentRecord
	for rows.Next() {
		var paymentRow model.PaymentRecord
		err := rows.Scan(&paymentRow.ID,
			&paymentRow.Data.ReferenceKey,
			&paymentRow.Data.Amount,
			&paymentRow.Data.PaidAt)
		if err != nil {
			return nil, classify(err)
		}
		paymentRow.Data.PaidAt = tz.UTC(paymentRow.Data.PaidAt)
		payments = append(payments, paymentRow)
	}

	return payments, classify(rows.Err())
}

func (store *store) InvoiceStateCounts(ctx context.Context) (map[string]int, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM invoice GROUP BY status")
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, classify(err)
		}
		counts[status] = count
	}
	return counts, classify(rows.Err())
}

func (store *store) InvoicePaidSum(ctx context.Context, from *time.Time, to *time.Time) (decimal.Decimal, error) {
	// Пустые границы - без ограничения
	var fromArg, toArg *time.Time
	if from != nil {
		t := tz.UTC(*from)
		fromArg = &t
	}
	if to != nil {
		t := tz.UTC(*to)
		toArg = &t
	}
	row := store.database.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM invoice"+
			" WHERE status = $1"+
			"   AND ($2::timestamptz IS NULL OR paid_at >= $2)"+
			"   AND ($3::timestamptz IS NULL OR paid_at < $3)",
		model.InvoiceStatusPaid,
		fromArg,
		toArg)
	var sum decimal.Decimal
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, classify(err)
	}
	return sum, nil
}

func (store *store) InvoicePaidAverage(ctx context.Context) (decimal.Decimal, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT COALESCE(AVG(amount), 0) FROM invoice WHERE status = $1",
		model.InvoiceStatusPaid)
	var avg decimal.Decimal
	if err := row.Scan(&avg); err != nil {
		return decimal.Zero, classify(err)
	}
	return avg, nil
}

func (store *store) StallOccupancy(ctx context.Context) ([]model.MarketOccupancy, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT m.id, m.name, COUNT(s.id),"+
			" COUNT(s.id) FILTER (WHERE s.status = $1)"+
			" FROM market AS m"+
			" LEFT JOIN stall AS s ON s.market_id = m.id"+
			" GROUP BY m.id, m.name"+
			" ORDER BY m.id",
		model.StallStatusOccupied)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var markets []model.MarketOccupancy
	for rows.Next() {
		var m model.MarketOccupancy
		if err := rows.Scan(&m.MarketID, &m.Name, &m.Stalls, &m.Occupied); err != nil {
			return nil, classify(err)
		}
		markets = append(markets, m)
	}
	return markets, classify(rows.Err())
}
