package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Store struct {
	ID        uuid.UUID
	Name      string
	Address   pgtype.Text
	Phone     pgtype.Text
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Table struct {
	ID        uuid.UUID
	StoreID   uuid.UUID
	Number    string
	QRCode    string
	Location  pgtype.Text
	IsActive  bool
	CreatedAt time.Time
}

type Product struct {
	ID          uuid.UUID
	StoreID     uuid.UUID
	Name        string
	Description pgtype.Text
	Category    pgtype.Text
	Price       pgtype.Numeric
	PrepTime    pgtype.Int4
	ImageURL    pgtype.Text
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type User struct {
	ID             uuid.UUID
	StoreID        uuid.UUID
	Email          string
	HashedPassword string
	FullName       string
	Role           string
	IsActive       bool
	CreatedAt      time.Time
}

type Order struct {
	ID                 uuid.UUID
	StoreID            uuid.UUID
	TransactionCode    string
	QueueNumber        int32
	QueueDate          pgtype.Date
	CustomerName       string
	OrderType          string
	TableID            pgtype.UUID
	Note               pgtype.Text
	DeliveryAddress    pgtype.Text
	TotalAmount        pgtype.Numeric
	Status             string
	PaymentMethod      pgtype.Text
	PaymentStatus      string
	EstimatedTime      string
	TargetTime         pgtype.Timestamptz
	CancellationStatus pgtype.Text
	CancellationReason pgtype.Text
	RefundStatus       pgtype.Text
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type OrderItem struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	ProductID     uuid.UUID
	Quantity      int32
	PriceSnapshot pgtype.Numeric
	CreatedAt     time.Time
}
