// Package reconcile сопоставляет журнал консультаций с реестром платежей.
//
// Консультация и платёж совпадают по ключу поиска. Платёж в момент консультации
// или позже считается оплаченным через приложение, раньше - оплаченным ранее.
// Если ключ встречается в N консультациях и M платежах, выдаются все N×M пар,
// а ключ попадает в статистику дубликатов.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iurnickita/mercados/internal/model"
	"github.com/iurnickita/mercados/internal/period"
)

const (
	ClassificationViaApp   = "via_app"
	ClassificationPrevious = "previous"
)

var ErrInvariant = errors.New("reconciliation buckets do not partition the matches")

type LogSource interface {
	ConsultationLogGet(ctx context.Context, from time.Time, to time.Time) ([]model.ConsultationLog, error)
}

type PaymentSource interface {
	PaymentsByKeys(ctx context.Context, keys []string) ([]model.PaymentRecord, error)
}

type Match struct {
	Key                 string          `json:"key"`
	ConsultationID      int64           `json:"consultation_id"`
	ConsultationType    string          `json:"consultation_type"`
	ConsultationSubtype string          `json:"consultation_subtype"`
	ConsultedAt         time.Time       `json:"consulted_at"`
	PaymentID           int64           `json:"payment_id"`
	PaidAt              time.Time       `json:"paid_at"`
	Amount              decimal.Decimal `json:"amount"`
	Classification      string          `json:"classification"`
}

type Bucket struct {
	Count int             `json:"count"`
	Sum   decimal.Decimal `json:"sum"`
}

// Ключ, давший больше одного совпадения
type KeyAmplification struct {
	Key      string `json:"key"`
	Logs     int    `json:"logs"`
	Payments int    `json:"payments"`
	Matches  int    `json:"matches"`
}

type DuplicateStats struct {
	UniqueKeys               int                `json:"unique_keys"`
	KeysWithMultipleLogs     int                `json:"keys_with_multiple_logs"`
	KeysWithMultiplePayments int                `json:"keys_with_multiple_payments"`
	Amplified                []KeyAmplification `json:"amplified"`
}

type Report struct {
	Period               period.Period   `json:"period"`
	TotalConsultations   int             `json:"total_consultations"`
	MatchedConsultations int             `json:"matched_consultations"`
	TotalMatches         int             `json:"total_matches"`
	TotalFound           decimal.Decimal `json:"total_found"`
	TotalPaid            decimal.Decimal `json:"total_paid"`
	ViaApp               Bucket          `json:"via_app"`
	Previous             Bucket          `json:"previous"`
	Matches              []Match         `json:"matches"`
	Duplicates           DuplicateStats  `json:"duplicates"`
}

type Engine interface {
	Report(ctx context.Context, p period.Period) (Report, error)
}

type engine struct {
	logs   LogSource
	ledger PaymentSource
	loc    *time.Location
}

func NewEngine(logs LogSource, ledger PaymentSource, loc *time.Location) Engine {
	return &engine{logs: logs, ledger: ledger, loc: loc}
}

func (engine *engine) Report(ctx context.Context, p period.Period) (Report, error) {
	from, to := p.Bounds(engine.loc)

	logs, err := engine.logs.ConsultationLogGet(ctx, from, to)
	if err != nil {
		return Report{}, fmt.Errorf("consultation logs: %w", err)
	}

	keys := make([]string, 0, len(logs))
	for _, log := range logs {
		if log.Data.SearchKey != nil {
			keys = append(keys, *log.Data.SearchKey)
		}
	}

	payments, err := engine.ledger.PaymentsByKeys(ctx, keys)
	if err != nil {
		return Report{}, fmt.Errorf("payments: %w", err)
	}

	return Reconcile(p, logs, payments)
}

// Reconcile строит отчёт по уже загруженным строкам.
// Консультации без ключа не учитываются.
func Reconcile(p period.Period, logs []model.ConsultationLog, payments []model.PaymentRecord) (Report, error) {
	report := Report{
		Period:     p,
		TotalFound: decimal.Zero,
		TotalPaid:  decimal.Zero,
		ViaApp:     Bucket{Sum: decimal.Zero},
		Previous:   Bucket{Sum: decimal.Zero},
		Matches:    []Match{},
		Duplicates: DuplicateStats{Amplified: []KeyAmplification{}},
	}

	keyed := make([]model.ConsultationLog, 0, len(logs))
	logsByKey := make(map[string]int)
	for _, log := range logs {
		if log.Data.SearchKey == nil {
			continue
		}
		keyed = append(keyed, log)
		logsByKey[*log.Data.SearchKey]++
	}
	sort.SliceStable(keyed, func(i, j int) bool {
		if !keyed[i].Data.CreatedAt.Equal(keyed[j].Data.CreatedAt) {
			return keyed[i].Data.CreatedAt.Before(keyed[j].Data.CreatedAt)
		}
		return keyed[i].ID < keyed[j].ID
	})
	report.TotalConsultations = len(keyed)

	paymentsByKey := make(map[string][]model.PaymentRecord)
	for _, payment := range payments {
		key := payment.Data.ReferenceKey
		if _, ok := logsByKey[key]; !ok {
			continue
		}
		paymentsByKey[key] = append(paymentsByKey[key], payment)
	}
	for key := range paymentsByKey {
		list := paymentsByKey[key]
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].Data.PaidAt.Equal(list[j].Data.PaidAt) {
				return list[i].Data.PaidAt.Before(list[j].Data.PaidAt)
			}
			return list[i].ID < list[j].ID
		})
	}

	// Все пары (консультация, платёж) с общим ключом
	for _, log := range keyed {
		key := *log.Data.SearchKey
		matched := paymentsByKey[key]
		if len(matched) == 0 {
			continue
		}
		report.MatchedConsultations++
		if found, ok := parseAmount(log.Data.ResultTotal); ok {
			report.TotalFound = report.TotalFound.Add(found)
		}

		for _, payment := range matched {
			match := Match{
				Key:                 key,
				ConsultationID:      log.ID,
				ConsultationType:    log.Data.Type,
				ConsultationSubtype: log.Data.Subtype,
				ConsultedAt:         log.Data.CreatedAt.UTC(),
				PaymentID:           payment.ID,
				PaidAt:              payment.Data.PaidAt.UTC(),
				Amount:              payment.Data.Amount,
				Classification:      classify(log.Data.CreatedAt, payment.Data.PaidAt),
			}
			report.Matches = append(report.Matches, match)
			report.TotalPaid = report.TotalPaid.Add(match.Amount)

			switch match.Classification {
			case ClassificationViaApp:
				report.ViaApp.Count++
				report.ViaApp.Sum = report.ViaApp.Sum.Add(match.Amount)
			default:
				report.Previous.Count++
				report.Previous.Sum = report.Previous.Sum.Add(match.Amount)
			}
		}
	}
	report.TotalMatches = len(report.Matches)

	sort.SliceStable(report.Matches, func(i, j int) bool {
		a, b := report.Matches[i], report.Matches[j]
		if !a.ConsultedAt.Equal(b.ConsultedAt) {
			return a.ConsultedAt.Before(b.ConsultedAt)
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		return a.PaidAt.Before(b.PaidAt)
	})

	// Статистика дубликатов
	report.Duplicates.UniqueKeys = len(logsByKey)
	for key, logCount := range logsByKey {
		paymentCount := len(paymentsByKey[key])
		if logCount > 1 {
			report.Duplicates.KeysWithMultipleLogs++
		}
		if paymentCount > 1 {
			report.Duplicates.KeysWithMultiplePayments++
		}
		if logCount*paymentCount > 1 {
			report.Duplicates.Amplified = append(report.Duplicates.Amplified, KeyAmplification{
				Key:      key,
				Logs:     logCount,
				Payments: paymentCount,
				Matches:  logCount * paymentCount,
			})
		}
	}
	sort.Slice(report.Duplicates.Amplified, func(i, j int) bool {
		return report.Duplicates.Amplified[i].Key < report.Duplicates.Amplified[j].Key
	})

	if err := checkPartition(report); err != nil {
		return Report{}, err
	}
	return report, nil
}

func classify(consultedAt, paidAt time.Time) string {
	if paidAt.Before(consultedAt) {
		return ClassificationPrevious
	}
	return ClassificationViaApp
}

// Корзины должны точно делить совпадения
func checkPartition(report Report) error {
	if report.ViaApp.Count+report.Previous.Count != report.TotalMatches {
		return fmt.Errorf("%w: counts %d + %d != %d", ErrInvariant,
			report.ViaApp.Count, report.Previous.Count, report.TotalMatches)
	}
	if !report.ViaApp.Sum.Add(report.Previous.Sum).Equal(report.TotalPaid) {
		return fmt.Errorf("%w: sums %s + %s != %s", ErrInvariant,
			report.ViaApp.Sum, report.Previous.Sum, report.TotalPaid)
	}
	return nil
}

// parseAmount читает сумму из ответа внешней системы, если она числовая.
// Разделители тысяч допускаются.
func parseAmount(s *string) (decimal.Decimal, bool) {
	if s == nil {
		return decimal.Zero, false
	}
	clean := strings.ReplaceAll(strings.TrimSpace(*s), ",", "")
	if clean == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
