package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/iurnickita/mercados/internal/reconcile"
	"github.com/iurnickita/mercados/internal/tz"
)

const (
	SheetSummary = "Resumen"
	SheetMatches = "Coincidencias"

	timeLayout = "2006-01-02 15:04:05"
)

// ReconciliationXLSX выгружает отчёт сверки в XLSX.
// Время в листах - в отчётном поясе loc.
func ReconciliationXLSX(report reconcile.Report, loc *time.Location) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// Лист по умолчанию переименовываем в сводку
	if err := f.SetSheetName(f.GetSheetName(0), SheetSummary); err != nil {
		return nil, err
	}

	summary := [][]any{
		{"Periodo", report.Period.String()},
		{"Consultas analizadas", report.TotalConsultations},
		{"Consultas con pago", report.MatchedConsultations},
		{"Coincidencias", report.TotalMatches},
		{"Total encontrado", report.TotalFound.StringFixed(2)},
		{"Total pagado", report.TotalPaid.StringFixed(2)},
		{"Pagado por la app (cantidad)", report.ViaApp.Count},
		{"Pagado por la app (monto)", report.ViaApp.Sum.StringFixed(2)},
		{"Pagado previamente (cantidad)", report.Previous.Count},
		{"Pagado previamente (monto)", report.Previous.Sum.StringFixed(2)},
		{"Claves únicas", report.Duplicates.UniqueKeys},
		{"Claves con varias consultas", report.Duplicates.KeysWithMultipleLogs},
		{"Claves con varios pagos", report.Duplicates.KeysWithMultiplePayments},
	}
	for i, row := range summary {
		if err := setRow(f, SheetSummary, i+1, row); err != nil {
			return nil, err
		}
	}

	// Ключи с размножением совпадений
	row := len(summary) + 2
	if err := setRow(f, SheetSummary, row, []any{"Clave", "Consultas", "Pagos", "Coincidencias"}); err != nil {
		return nil, err
	}
	for _, a := range report.Duplicates.Amplified {
		row++
		if err := setRow(f, SheetSummary, row, []any{a.Key, a.Logs, a.Payments, a.Matches}); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 32)
	_ = f.SetColWidth(SheetSummary, "B", "D", 16)

	if _, err := f.NewSheet(SheetMatches); err != nil {
		return nil, err
	}
	headers := []any{"Clave", "Tipo", "Subtipo", "Consulta", "Pago", "Monto", "Clasificación"}
	if err := setRow(f, SheetMatches, 1, headers); err != nil {
		return nil, err
	}
	for i, m := range report.Matches {
		err := setRow(f, SheetMatches, i+2, []any{
			m.Key,
			m.ConsultationType,
			m.ConsultationSubtype,
			tz.Display(m.ConsultedAt, loc).Format(timeLayout),
			tz.Display(m.PaidAt, loc).Format(timeLayout),
			m.Amount.StringFixed(2),
			classificationLabel(m.Classification),
		})
		if err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(SheetMatches, "A", "A", 22)
	_ = f.SetColWidth(SheetMatches, "D", "E", 20)
	_ = f.SetColWidth(SheetMatches, "G", "G", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func classificationLabel(c string) string {
	switch c {
	case reconcile.ClassificationViaApp:
		return "Pagado por la app"
	case reconcile.ClassificationPrevious:
		return "Pagado previamente"
	default:
		return c
	}
}
