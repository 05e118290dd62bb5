package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Журнал внешних консультаций (EC / ICS)

type ConsultationLog struct {
	ID   int64
	Data ConsultationLogData
}
type ConsultationLogData struct {
	Type         string
	Subtype      string
	SearchKey    *string
	CreatedAt    time.Time
	ResultTotal  *string
	UserCode     string
	UserLocation string
}

const (
	ConsultationTypeEC  = "EC"
	ConsultationTypeICS = "ICS"

	ConsultationSubtypeNormal  = "normal"
	ConsultationSubtypeAmnesty = "amnesty"
)

// SearchKey возвращает ключ поиска консультации:
// кадастровый ключ > национальный ID > номер ICS. Пустые значения пропускаются.
func SearchKey(cadastralKey, nationalID, icsNumber string) *string {
	for _, v := range []string{cadastralKey, nationalID, icsNumber} {
		v = strings.TrimSpace(v)
		if v != "" {
			return &v
		}
	}
	return nil
}

// Платежи (внешний реестр)

type PaymentRecord struct {
	ID   int64
	Data PaymentRecordData
}
type PaymentRecordData struct {
	ReferenceKey string
	Amount       decimal.Decimal
	PaidAt       time.Time
}

// Рынки, места, счета

type Market struct {
	ID   int64
	Name string
}

type Stall struct {
	ID   int64
	Data StallData
}
type StallData struct {
	MarketID   int64
	Number     string
	Status     string
	MonthlyFee decimal.Decimal
}

const (
	StallStatusAvailable   = "AVAILABLE"
	StallStatusOccupied    = "OCCUPIED"
	StallStatusMaintenance = "MAINTENANCE"
)

type Invoice struct {
	ID   int64
	Data InvoiceData
}
type InvoiceData struct {
	StallID  int64
	Number   string
	Amount   decimal.Decimal
	Status   string
	IssuedAt time.Time
	DueAt    time.Time
	PaidAt   *time.Time
}

const (
	InvoiceStatusPaid      = "PAID"
	InvoiceStatusPending   = "PENDING"
	InvoiceStatusOverdue   = "OVERDUE"
	InvoiceStatusCancelled = "CANCELLED"
)

// Заполненность рынка
type MarketOccupancy struct {
	MarketID int64
	Name     string
	Stalls   int
	Occupied int
}
