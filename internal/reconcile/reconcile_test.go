package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/mercados/internal/model"
	"github.com/iurnickita/mercados/internal/period"
)

var year2025 = period.Period{Year: 2025, MonthFrom: time.January, MonthTo: time.December}

func consultation(id int64, key string, at time.Time, total string) model.ConsultationLog {
	log := model.ConsultationLog{ID: id, Data: model.ConsultationLogData{
		Type:      model.ConsultationTypeEC,
		Subtype:   model.ConsultationSubtypeNormal,
		CreatedAt: at,
	}}
	if key != "" {
		log.Data.SearchKey = &key
	}
	if total != "" {
		log.Data.ResultTotal = &total
	}
	return log
}

func payment(id int64, key string, at time.Time, amount string) model.PaymentRecord {
	return model.PaymentRecord{ID: id, Data: model.PaymentRecordData{
		ReferenceKey: key,
		Amount:       decimal.RequireFromString(amount),
		PaidAt:       at,
	}}
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func requirePartition(t *testing.T, r Report) {
	t.Helper()
	require.Equal(t, r.TotalMatches, r.ViaApp.Count+r.Previous.Count)
	require.True(t, r.ViaApp.Sum.Add(r.Previous.Sum).Equal(r.TotalPaid))
	for _, m := range r.Matches {
		require.Contains(t, []string{ClassificationViaApp, ClassificationPrevious}, m.Classification)
	}
}

func TestReconcileEmpty(t *testing.T) {
	r, err := Reconcile(year2025, nil, nil)
	require.NoError(t, err)
	require.Zero(t, r.TotalConsultations)
	require.Zero(t, r.TotalMatches)
	requireDecimal(t, "0", r.TotalPaid)
	requireDecimal(t, "0", r.TotalFound)
	require.Empty(t, r.Matches)
	require.NotNil(t, r.Matches)
	requirePartition(t, r)
}

func TestReconcilePaidViaApp(t *testing.T) {
	ts := time.Date(2025, 4, 10, 15, 0, 0, 0, time.UTC)
	logs := []model.ConsultationLog{consultation(1, "X", ts, "1,200.50")}
	payments := []model.PaymentRecord{payment(10, "X", ts.Add(time.Hour), "1200.50")}

	r, err := Reconcile(year2025, logs, payments)
	require.NoError(t, err)
	require.Equal(t, 1, r.TotalMatches)
	require.Equal(t, ClassificationViaApp, r.Matches[0].Classification)
	requireDecimal(t, "1200.50", r.TotalPaid)
	requireDecimal(t, "1200.50", r.TotalFound)
	require.Equal(t, 1, r.ViaApp.Count)
	require.Zero(t, r.Previous.Count)
	requirePartition(t, r)
}

func TestReconcilePaidPreviously(t *testing.T) {
	ts := time.Date(2025, 4, 10, 15, 0, 0, 0, time.UTC)
	logs := []model.ConsultationLog{consultation(1, "Y", ts, "")}
	payments := []model.PaymentRecord{payment(10, "Y", ts.Add(-time.Hour), "80")}

	r, err := Reconcile(year2025, logs, payments)
	require.NoError(t, err)
	require.Equal(t, 1, r.TotalMatches)
	require.Equal(t, ClassificationPrevious, r.Matches[0].Classification)
	require.Equal(t, 1, r.Previous.Count)
	requireDecimal(t, "80", r.Previous.Sum)
	requireDecimal(t, "0", r.TotalFound)
	requirePartition(t, r)
}

func TestReconcileSameInstantIsViaApp(t *testing.T) {
	ts := time.Date(2025, 4, 10, 15, 0, 0, 0, time.UTC)
	r, err := Reconcile(year2025,
		[]model.ConsultationLog{consultation(1, "Z", ts, "")},
		[]model.PaymentRecord{payment(1, "Z", ts.In(time.FixedZone("CST", -6*3600)), "5")})
	require.NoError(t, err)
	require.Equal(t, ClassificationViaApp, r.Matches[0].Classification)
}

func TestReconcileCrossProduct(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	logs := []model.ConsultationLog{
		consultation(1, "K", ts, "100"),
		consultation(2, "K", ts.Add(2*time.Hour), "100"),
		consultation(3, "L", ts, ""),
	}
	payments := []model.PaymentRecord{
		payment(10, "K", ts.Add(-time.Hour), "10"),
		payment(11, "K", ts.Add(time.Hour), "20"),
		payment(12, "K", ts.Add(3*time.Hour), "30"),
		payment(13, "OTHER", ts, "99"),
	}

	r, err := Reconcile(year2025, logs, payments)
	require.NoError(t, err)
	require.Equal(t, 3, r.TotalConsultations)
	require.Equal(t, 2, r.MatchedConsultations)
	require.Equal(t, 6, r.TotalMatches)
	// каждая консультация учитывается в найденной сумме один раз
	requireDecimal(t, "200", r.TotalFound)
	requireDecimal(t, "120", r.TotalPaid)

	// первая консультация: 10 ранее, 20 и 30 через приложение
	// вторая консультация: 10 и 20 ранее, 30 через приложение
	require.Equal(t, 3, r.ViaApp.Count)
	requireDecimal(t, "80", r.ViaApp.Sum)
	require.Equal(t, 3, r.Previous.Count)
	requireDecimal(t, "40", r.Previous.Sum)
	requirePartition(t, r)

	require.Equal(t, DuplicateStats{
		UniqueKeys:               2,
		KeysWithMultipleLogs:     1,
		KeysWithMultiplePayments: 1,
		Amplified:                []KeyAmplification{{Key: "K", Logs: 2, Payments: 3, Matches: 6}},
	}, r.Duplicates)
}

func TestReconcileSkipsLogsWithoutKey(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r, err := Reconcile(year2025,
		[]model.ConsultationLog{consultation(1, "", ts, "5"), consultation(2, "A", ts, "5")},
		nil)
	require.NoError(t, err)
	require.Equal(t, 1, r.TotalConsultations)
	require.Zero(t, r.TotalMatches)
	require.Equal(t, 1, r.Duplicates.UniqueKeys)
}

func TestReconcileMatchOrder(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	logs := []model.ConsultationLog{
		consultation(2, "B", ts.Add(time.Hour), ""),
		consultation(1, "A", ts, ""),
	}
	payments := []model.PaymentRecord{
		payment(2, "B", ts, "1"),
		payment(1, "A", ts, "1"),
	}
	r, err := Reconcile(year2025, logs, payments)
	require.NoError(t, err)
	require.Equal(t, "A", r.Matches[0].Key)
	require.Equal(t, "B", r.Matches[1].Key)
}

func TestParseAmount(t *testing.T) {
	s := func(v string) *string { return &v }

	d, ok := parseAmount(s(" 1,500.25 "))
	require.True(t, ok)
	requireDecimal(t, "1500.25", d)

	for _, v := range []*string{nil, s(""), s("N/A"), s("L. 20")} {
		_, ok := parseAmount(v)
		require.False(t, ok)
	}
}

type fakeLogs struct {
	logs     []model.ConsultationLog
	err      error
	from, to time.Time
}

func (f *fakeLogs) ConsultationLogGet(_ context.Context, from time.Time, to time.Time) ([]model.ConsultationLog, error) {
	f.from, f.to = from, to
	return f.logs, f.err
}

type fakeLedger struct {
	payments []model.PaymentRecord
	err      error
	keys     []string
}

func (f *fakeLedger) PaymentsByKeys(_ context.Context, keys []string) ([]model.PaymentRecord, error) {
	f.keys = keys
	return f.payments, f.err
}

func TestEngineReport(t *testing.T) {
	loc := time.FixedZone("CST", -6*3600)
	ts := time.Date(2025, 4, 10, 15, 0, 0, 0, time.UTC)
	logs := &fakeLogs{logs: []model.ConsultationLog{consultation(1, "X", ts, "")}}
	ledger := &fakeLedger{payments: []model.PaymentRecord{payment(1, "X", ts.Add(time.Hour), "15")}}

	engine := NewEngine(logs, ledger, loc)
	r, err := engine.Report(context.Background(), year2025)
	require.NoError(t, err)
	require.Equal(t, 1, r.TotalMatches)
	require.Equal(t, []string{"X"}, ledger.keys)
	require.Equal(t, time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC), logs.from)
	require.Equal(t, time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC), logs.to)
}

func TestEngineReportErrors(t *testing.T) {
	storeErr := errors.New("store down")

	_, err := NewEngine(&fakeLogs{err: storeErr}, &fakeLedger{}, time.UTC).
		Report(context.Background(), year2025)
	require.ErrorIs(t, err, storeErr)

	_, err = NewEngine(&fakeLogs{}, &fakeLedger{err: storeErr}, time.UTC).
		Report(context.Background(), year2025)
	require.ErrorIs(t, err, storeErr)
}
