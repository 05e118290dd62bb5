package period

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iurnickita/mercados/internal/tz"
)

const (
	MinYear = 2000
	MaxYear = 2100
)

// Отчётный период: год и необязательный диапазон месяцев.
type Period struct {
	Year      int        `json:"year"`
	MonthFrom time.Month `json:"month_from"`
	MonthTo   time.Month `json:"month_to"`
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Parse проверяет входные параметры периода.
// Только monthFrom - один месяц, только monthTo - с января по monthTo.
func Parse(year, monthFrom, monthTo string) (Period, error) {
	year = strings.TrimSpace(year)
	if year == "" {
		return Period{}, &ValidationError{Field: "year", Reason: "required"}
	}
	if len(year) != 4 {
		return Period{}, &ValidationError{Field: "year", Reason: "must have four digits"}
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return Period{}, &ValidationError{Field: "year", Reason: "not a number"}
	}
	if y < MinYear || y > MaxYear {
		return Period{}, &ValidationError{Field: "year",
			Reason: fmt.Sprintf("must be between %d and %d", MinYear, MaxYear)}
	}

	from, err := parseMonth("month_from", monthFrom)
	if err != nil {
		return Period{}, err
	}
	to, err := parseMonth("month_to", monthTo)
	if err != nil {
		return Period{}, err
	}

	switch {
	case from == 0 && to == 0:
		from, to = time.January, time.December
	case to == 0:
		to = from
	case from == 0:
		from = time.January
	}
	if from > to {
		return Period{}, &ValidationError{Field: "month_from", Reason: "must not be after month_to"}
	}

	return Period{Year: y, MonthFrom: from, MonthTo: to}, nil
}

func parseMonth(field, value string) (time.Month, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	m, err := strconv.Atoi(value)
	if err != nil {
		return 0, &ValidationError{Field: field, Reason: "not a number"}
	}
	if m < 1 || m > 12 {
		return 0, &ValidationError{Field: field, Reason: "must be between 1 and 12"}
	}
	return time.Month(m), nil
}

// Bounds - полуоткрытый интервал периода в UTC.
func (p Period) Bounds(loc *time.Location) (time.Time, time.Time) {
	return tz.MonthRangeBounds(p.Year, p.MonthFrom, p.MonthTo, loc)
}

func (p Period) String() string {
	if p.MonthFrom == time.January && p.MonthTo == time.December {
		return strconv.Itoa(p.Year)
	}
	if p.MonthFrom == p.MonthTo {
		return fmt.Sprintf("%d-%02d", p.Year, p.MonthFrom)
	}
	return fmt.Sprintf("%d-%02d..%d-%02d", p.Year, p.MonthFrom, p.Year, p.MonthTo)
}
