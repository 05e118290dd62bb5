// Package dashboard собирает сводку по доходам, счетам и рынкам.
//
// Группы показателей считаются отдельными запросами и независимо друг от друга:
// упавший запрос помечает своё поле как недоступное, остальные поля остаются.
// Сводка не является атомарным снимком - каждая группа читает данные в свой момент
// внутри окна формирования отчёта.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iurnickita/mercados/internal/model"
	"github.com/iurnickita/mercados/internal/store"
	"github.com/iurnickita/mercados/internal/tz"
)

type Source interface {
	Ping(ctx context.Context) error
	InvoiceStateCounts(ctx context.Context) (map[string]int, error)
	InvoicePaidSum(ctx context.Context, from *time.Time, to *time.Time) (decimal.Decimal, error)
	InvoicePaidAverage(ctx context.Context) (decimal.Decimal, error)
	StallOccupancy(ctx context.Context) ([]model.MarketOccupancy, error)
}

// Metric - значение показателя или отметка о недоступности.
type Metric[T any] struct {
	Value       T      `json:"value"`
	Unavailable bool   `json:"unavailable,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func available[T any](v T) Metric[T] {
	return Metric[T]{Value: v}
}

func unavailable[T any](err error) Metric[T] {
	return Metric[T]{Unavailable: true, Reason: err.Error()}
}

// Прогноз, а не фактический доход
type Projection struct {
	MonthlyExpected    decimal.Decimal `json:"monthly_expected"`
	AnnualExpected     decimal.Decimal `json:"annual_expected"`
	OccupiedStalls     int             `json:"occupied_stalls"`
	AveragePaidInvoice decimal.Decimal `json:"average_paid_invoice"`
}

type Financial struct {
	MonthlyRevenue Metric[decimal.Decimal] `json:"monthly_revenue"`
	AnnualRevenue  Metric[decimal.Decimal] `json:"annual_revenue"`
	TotalRevenue   Metric[decimal.Decimal] `json:"total_revenue"`
	Projected      Metric[Projection]      `json:"projected"`
}

type InvoiceStats struct {
	Generated            int     `json:"generated"`
	Paid                 int     `json:"paid"`
	Pending              int     `json:"pending"`
	Overdue              int     `json:"overdue"`
	Cancelled            int     `json:"cancelled"`
	CollectionEfficiency float64 `json:"collection_efficiency"`
}

type MarketStats struct {
	MarketID      int64   `json:"market_id"`
	Name          string  `json:"name"`
	Stalls        int     `json:"stalls"`
	Occupied      int     `json:"occupied"`
	OccupancyRate float64 `json:"occupancy_rate"`
}

type EntityStats struct {
	Markets         int           `json:"markets"`
	Stalls          int           `json:"stalls"`
	OccupiedStalls  int           `json:"occupied_stalls"`
	AvailableStalls int           `json:"available_stalls"`
	OccupancyRate   float64       `json:"occupancy_rate"`
	ByMarket        []MarketStats `json:"by_market"`
}

type Stats struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Financial   Financial            `json:"financial"`
	Invoices    Metric[InvoiceStats] `json:"invoices"`
	Entities    Metric[EntityStats]  `json:"entities"`
}

type Aggregator interface {
	Stats(ctx context.Context) (Stats, error)
}

type aggregator struct {
	source Source
	loc    *time.Location
	now    func() time.Time
	zaplog *zap.Logger
}

func NewAggregator(source Source, loc *time.Location, zaplog *zap.Logger) Aggregator {
	return newAggregator(source, loc, time.Now, zaplog)
}

func newAggregator(source Source, loc *time.Location, now func() time.Time, zaplog *zap.Logger) *aggregator {
	if zaplog == nil {
		zaplog = zap.NewNop()
	}
	return &aggregator{source: source, loc: loc, now: now, zaplog: zaplog}
}

func (a *aggregator) Stats(ctx context.Context) (Stats, error) {
	// Недоступная база - отказ всего отчёта
	if err := a.source.Ping(ctx); err != nil {
		if !errors.Is(err, store.ErrUnavailable) {
			err = fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
		return Stats{}, err
	}

	now := a.now().UTC()
	stats := Stats{GeneratedAt: now}

	// Каждая горутина пишет только в свои поля
	var g errgroup.Group
	g.Go(func() error {
		var err error
		from := tz.MonthStart(now, a.loc)
		stats.Financial.MonthlyRevenue, err = a.revenue(ctx, "monthly_revenue", &from)
		return err
	})
	g.Go(func() error {
		var err error
		from := tz.YearStart(now, a.loc)
		stats.Financial.AnnualRevenue, err = a.revenue(ctx, "annual_revenue", &from)
		return err
	})
	g.Go(func() error {
		var err error
		stats.Financial.TotalRevenue, err = a.revenue(ctx, "total_revenue", nil)
		return err
	})
	g.Go(func() error {
		var err error
		stats.Financial.Projected, err = a.projection(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats.Invoices, err = a.invoices(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats.Entities, err = a.entities(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	return stats, nil
}

// degrade логирует упавший показатель. Наружу возвращается только
// недоступность базы, остальные ошибки остаются отметкой в поле.
func (a *aggregator) degrade(metric string, err error) error {
	a.zaplog.Warn("dashboard metric unavailable",
		zap.String("metric", metric),
		zap.Error(err),
	)
	if errors.Is(err, store.ErrUnavailable) {
		return err
	}
	return nil
}

func (a *aggregator) revenue(ctx context.Context, metric string, from *time.Time) (Metric[decimal.Decimal], error) {
	sum, err := a.source.InvoicePaidSum(ctx, from, nil)
	if err != nil {
		return unavailable[decimal.Decimal](err), a.degrade(metric, err)
	}
	return available(sum), nil
}

func (a *aggregator) projection(ctx context.Context) (Metric[Projection], error) {
	avg, err := a.source.InvoicePaidAverage(ctx)
	if err != nil {
		return unavailable[Projection](err), a.degrade("projected", err)
	}
	markets, err := a.source.StallOccupancy(ctx)
	if err != nil {
		return unavailable[Projection](err), a.degrade("projected", err)
	}
	occupied := 0
	for _, m := range markets {
		occupied += m.Occupied
	}
	monthly := avg.Mul(decimal.NewFromInt(int64(occupied))).Round(2)
	return available(Projection{
		MonthlyExpected:    monthly,
		AnnualExpected:     monthly.Mul(decimal.NewFromInt(12)),
		OccupiedStalls:     occupied,
		AveragePaidInvoice: avg.Round(2),
	}), nil
}

func (a *aggregator) invoices(ctx context.Context) (Metric[InvoiceStats], error) {
	counts, err := a.source.InvoiceStateCounts(ctx)
	if err != nil {
		return unavailable[InvoiceStats](err), a.degrade("invoices", err)
	}
	return available(invoiceStats(counts)), nil
}

// invoiceStats считает generated как сумму четырёх состояний,
// так что paid + pending + overdue + cancelled == generated всегда.
func invoiceStats(counts map[string]int) InvoiceStats {
	s := InvoiceStats{
		Paid:      counts[model.InvoiceStatusPaid],
		Pending:   counts[model.InvoiceStatusPending],
		Overdue:   counts[model.InvoiceStatusOverdue],
		Cancelled: counts[model.InvoiceStatusCancelled],
	}
	s.Generated = s.Paid + s.Pending + s.Overdue + s.Cancelled
	s.CollectionEfficiency = Percent(s.Paid, s.Generated)
	return s
}

func (a *aggregator) entities(ctx context.Context) (Metric[EntityStats], error) {
	markets, err := a.source.StallOccupancy(ctx)
	if err != nil {
		return unavailable[EntityStats](err), a.degrade("entities", err)
	}
	return available(entityStats(markets)), nil
}

func entityStats(markets []model.MarketOccupancy) EntityStats {
	s := EntityStats{
		Markets:  len(markets),
		ByMarket: make([]MarketStats, 0, len(markets)),
	}
	for _, m := range markets {
		s.Stalls += m.Stalls
		s.OccupiedStalls += m.Occupied
		s.ByMarket = append(s.ByMarket, MarketStats{
			MarketID:      m.MarketID,
			Name:          m.Name,
			Stalls:        m.Stalls,
			Occupied:      m.Occupied,
			OccupancyRate: Percent(m.Occupied, m.Stalls),
		})
	}
	s.AvailableStalls = s.Stalls - s.OccupiedStalls
	s.OccupancyRate = Percent(s.OccupiedStalls, s.Stalls)
	return s
}

// Percent - доля part от total в процентах с двумя знаками, 0 при нулевом total.
func Percent(part, total int) float64 {
	if total <= 0 || part <= 0 {
		return 0
	}
	if part > total {
		part = total
	}
	p, _ := decimal.NewFromInt(int64(part)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(total)), 2).
		Float64()
	return p
}
