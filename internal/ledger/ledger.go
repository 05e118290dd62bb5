package ledger

import (
	"context"
	"strings"

	"github.com/iurnickita/mercados/internal/model"
)

const DefaultBatchSize = 1000

type Ledger interface {
	PaymentsByKeys(ctx context.Context, keys []string) ([]model.PaymentRecord, error)
}

// Источник платежей - сам реестр (store)
type Source interface {
	PaymentGetByKeys(ctx context.Context, keys []string) ([]model.PaymentRecord, error)
}

type ledger struct {
	source    Source
	batchSize int
}

func NewLedger(source Source, batchSize int) Ledger {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ledger{source: source, batchSize: batchSize}
}

// PaymentsByKeys убирает пустые и повторные ключи
// и запрашивает реестр пачками по batchSize.
func (ledger *ledger) PaymentsByKeys(ctx context.Context, keys []string) ([]model.PaymentRecord, error) {
	seen := make(map[string]struct{}, len(keys))
	unique := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}

	var payments []model.PaymentRecord
	for start := 0; start < len(unique); start += ledger.batchSize {
		end := min(start+ledger.batchSize, len(unique))
		batch, err := ledger.source.PaymentGetByKeys(ctx, unique[start:end])
		if err != nil {
			return nil, err
		}
		payments = append(payments, batch...)
	}
	return payments, nil
}
