package postgresadapter

import (
	"time"

	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	"tiof/contexts/token-trading/marketplace-service/ports"
)

const (
	stateRowID          = 1
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
)

// stateModel is the singleton row holding the administrator and sale counter.
// Every mutating transaction locks it first.
type stateModel struct {
	ID            int       `gorm:"column:id;primaryKey"`
	Administrator string    `gorm:"column:administrator"`
	SaleCounter   uint64    `gorm:"column:sale_counter"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (stateModel) TableName() string {
	return "marketplace_state"
}

type marketModel struct {
	Contract  string    `gorm:"column:contract;primaryKey"`
	TokenKind int16     `gorm:"column:token_kind"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (marketModel) TableName() string {
	return "marketplace_markets"
}

func (m marketModel) toEntity(saleIDs []uint64) entities.Market {
	ids := make(map[uint64]struct{}, len(saleIDs))
	for _, id := range saleIDs {
		ids[id] = struct{}{}
	}
	return entities.Market{
		Contract:  entities.Address(m.Contract),
		TokenKind: entities.TokenKind(m.TokenKind),
		SaleIDs:   ids,
	}
}

type marketSaleModel struct {
	Contract string `gorm:"column:contract;primaryKey"`
	SaleID   uint64 `gorm:"column:sale_id;primaryKey;autoIncrement:false"`
}

func (marketSaleModel) TableName() string {
	return "marketplace_market_sales"
}

type saleModel struct {
	SaleID     uint64    `gorm:"column:sale_id;primaryKey;autoIncrement:false"`
	Contract   string    `gorm:"column:contract;index"`
	TokenID    uint64    `gorm:"column:token_id"`
	Amount     uint64    `gorm:"column:amount"`
	PriceMutez uint64    `gorm:"column:price_mutez"`
	Seller     string    `gorm:"column:seller;index"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (saleModel) TableName() string {
	return "marketplace_sales"
}

func saleModelFromEntity(sale entities.Sale, createdAt time.Time) saleModel {
	return saleModel{
		SaleID:     sale.SaleID,
		Contract:   string(sale.Contract),
		TokenID:    sale.TokenID,
		Amount:     sale.Amount,
		PriceMutez: uint64(sale.Price),
		Seller:     string(sale.Seller),
		CreatedAt:  createdAt.UTC(),
	}
}

func (m saleModel) toEntity() entities.Sale {
	return entities.Sale{
		SaleID:   m.SaleID,
		Contract: entities.Address(m.Contract),
		TokenID:  m.TokenID,
		Amount:   m.Amount,
		Price:    entities.Mutez(m.PriceMutez),
		Seller:   entities.Address(m.Seller),
	}
}

// outboxModel keys on a serial id so relay order matches append order even
// when several events share a timestamp.
type outboxModel struct {
	ID           uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	OutboxID     string     `gorm:"column:outbox_id;uniqueIndex"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	SentAt       *time.Time `gorm:"column:sent_at"`
}

func (outboxModel) TableName() string {
	return "marketplace_outbox"
}

func (m outboxModel) toPort() ports.OutboxMessage {
	return ports.OutboxMessage{
		OutboxID:     m.OutboxID,
		EventType:    m.EventType,
		PartitionKey: m.PartitionKey,
		Payload:      append([]byte(nil), m.Payload...),
		CreatedAt:    m.CreatedAt.UTC(),
	}
}
