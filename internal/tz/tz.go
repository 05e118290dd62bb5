// Package tz держит всю работу с часовыми поясами в одном месте.
// В хранилище и при сравнении используется только UTC,
// локальное время отчётного пояса нужно для границ периодов и для отображения.
package tz

import (
	"time"
)

const DefaultLocation = "America/Tegucigalpa"

// Load загружает отчётный часовой пояс. Пустое имя - пояс по умолчанию.
func Load(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultLocation
	}
	return time.LoadLocation(name)
}

// UTC нормализует момент времени для хранения и сравнения.
func UTC(t time.Time) time.Time {
	return t.UTC()
}

// Display переводит момент времени в отчётный пояс.
func Display(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return t.UTC()
	}
	return t.In(loc)
}

// MonthRangeBounds возвращает полуоткрытый интервал [from, to) в UTC
// с первого дня monthFrom до начала месяца, следующего за monthTo,
// по календарю отчётного пояса.
func MonthRangeBounds(year int, monthFrom, monthTo time.Month, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	from := time.Date(year, monthFrom, 1, 0, 0, 0, 0, loc)
	to := time.Date(year, monthTo+1, 1, 0, 0, 0, 0, loc)
	return from.UTC(), to.UTC()
}

// YearBounds - интервал календарного года.
func YearBounds(year int, loc *time.Location) (time.Time, time.Time) {
	return MonthRangeBounds(year, time.January, time.December, loc)
}

// MonthStart - начало месяца, содержащего t, в отчётном поясе (в UTC).
func MonthStart(t time.Time, loc *time.Location) time.Time {
	local := Display(t, loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, local.Location()).UTC()
}

// YearStart - начало года, содержащего t, в отчётном поясе (в UTC).
func YearStart(t time.Time, loc *time.Location) time.Time {
	local := Display(t, loc)
	return time.Date(local.Year(), time.January, 1, 0, 0, 0, 0, local.Location()).UTC()
}
