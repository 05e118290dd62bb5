package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iurnickita/mercados/internal/model"
)

type fakeSource struct {
	calls    [][]string
	payments map[string][]model.PaymentRecord
	err      error
}

func (f *fakeSource) PaymentGetByKeys(_ context.Context, keys []string) ([]model.PaymentRecord, error) {
	f.calls = append(f.calls, append([]string(nil), keys...))
	if f.err != nil {
		return nil, f.err
	}
	var out []model.PaymentRecord
	for _, k := range keys {
		out = append(out, f.payments[k]...)
	}
	return out, nil
}

func payment(id int64, key string) model.PaymentRecord {
	return model.PaymentRecord{ID: id, Data: model.PaymentRecordData{ReferenceKey: key}}
}

func TestPaymentsByKeysBatches(t *testing.T) {
	source := &fakeSource{payments: map[string][]model.PaymentRecord{
		"a": {payment(1, "a")},
		"c": {payment(2, "c"), payment(3, "c")},
		"e": {payment(4, "e")},
	}}
	l := NewLedger(source, 2)

	payments, err := l.PaymentsByKeys(context.Background(), []string{"a", "b", " a ", "", "c", "d", "e", "c"})
	require.NoError(t, err)
	require.Len(t, payments, 4)
	require.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, source.calls)
}

func TestPaymentsByKeysEmpty(t *testing.T) {
	source := &fakeSource{}
	l := NewLedger(source, 0)

	payments, err := l.PaymentsByKeys(context.Background(), []string{" ", ""})
	require.NoError(t, err)
	require.Empty(t, payments)
	require.Empty(t, source.calls)
}

func TestPaymentsByKeysError(t *testing.T) {
	source := &fakeSource{err: errors.New("boom")}
	l := NewLedger(source, 10)

	_, err := l.PaymentsByKeys(context.Background(), []string{"a"})
	require.EqualError(t, err, "boom")
}
