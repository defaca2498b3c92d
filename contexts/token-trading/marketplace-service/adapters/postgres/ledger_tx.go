package postgresadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
	"tiof/contexts/token-trading/marketplace-service/ports"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ledgerTx writes straight into the open gorm transaction. State row changes
// are written when made so a failed write surfaces before custody commits.
type ledgerTx struct {
	db     *gorm.DB
	state  stateModel
	logger *slog.Logger
}

func (t *ledgerTx) Administrator(context.Context) (entities.Address, error) {
	return entities.Address(t.state.Administrator), nil
}

func (t *ledgerTx) SetAdministrator(ctx context.Context, administrator entities.Address) error {
	next := t.state
	next.Administrator = string(administrator)
	if err := t.writeState(ctx, next); err != nil {
		return err
	}
	t.state = next
	return nil
}

func (t *ledgerTx) NextSaleID(ctx context.Context) (uint64, error) {
	next := t.state
	next.SaleCounter++
	if err := t.writeState(ctx, next); err != nil {
		return 0, err
	}
	t.state = next
	return next.SaleCounter, nil
}

func (t *ledgerTx) writeState(ctx context.Context, next stateModel) error {
	next.UpdatedAt = time.Now().UTC()
	result := t.db.WithContext(ctx).
		Model(&stateModel{}).
		Where("id = ?", stateRowID).
		Updates(map[string]any{
			"administrator": next.Administrator,
			"sale_counter":  next.SaleCounter,
			"updated_at":    next.UpdatedAt,
		})
	if result.Error != nil {
		t.logger.Error("marketplace state update failed",
			"event", "marketplace_state_update_failed",
			"module", "token-trading/marketplace-service",
			"layer", "adapter",
			"error", result.Error.Error(),
		)
		return fmt.Errorf("write marketplace state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: marketplace state row missing", domainerrors.ErrRepositoryInvariantBroke)
	}
	return nil
}

func (t *ledgerTx) FindMarket(ctx context.Context, contract entities.Address) (entities.Market, bool, error) {
	return findMarket(t.db.WithContext(ctx), contract)
}

// PutMarket upserts the market row and reconciles its sale links.
func (t *ledgerTx) PutMarket(ctx context.Context, market entities.Market) error {
	db := t.db.WithContext(ctx)
	row := marketModel{
		Contract:  string(market.Contract),
		TokenKind: int16(market.TokenKind),
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contract"}},
		DoUpdates: clause.AssignmentColumns([]string{"token_kind"}),
	}).Create(&row).Error; err != nil {
		return err
	}

	current, err := marketSaleIDs(db, row.Contract)
	if err != nil {
		return err
	}
	stale := make([]uint64, 0)
	for _, id := range current {
		if !market.HasSale(id) {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := db.Where("contract = ? AND sale_id IN ?", row.Contract, stale).
			Delete(&marketSaleModel{}).Error; err != nil {
			return err
		}
	}

	known := make(map[uint64]struct{}, len(current))
	for _, id := range current {
		known[id] = struct{}{}
	}
	links := make([]marketSaleModel, 0)
	for _, id := range market.SortedSaleIDs() {
		if _, ok := known[id]; !ok {
			links = append(links, marketSaleModel{Contract: row.Contract, SaleID: id})
		}
	}
	if len(links) == 0 {
		return nil
	}
	if err := db.Create(&links).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrRepositoryInvariantBroke
		}
		return err
	}
	return nil
}

func (t *ledgerTx) DeleteMarket(ctx context.Context, contract entities.Address) error {
	db := t.db.WithContext(ctx)
	if err := db.Where("contract = ?", string(contract)).Delete(&marketSaleModel{}).Error; err != nil {
		return err
	}
	return db.Where("contract = ?", string(contract)).Delete(&marketModel{}).Error
}

func (t *ledgerTx) FindSale(ctx context.Context, saleID uint64) (entities.Sale, bool, error) {
	return findSale(t.db.WithContext(ctx), saleID)
}

func (t *ledgerTx) PutSale(ctx context.Context, sale entities.Sale) error {
	row := saleModelFromEntity(sale, time.Now())
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrRepositoryInvariantBroke
		}
		return err
	}
	return nil
}

func (t *ledgerTx) DeleteSale(ctx context.Context, saleID uint64) error {
	db := t.db.WithContext(ctx)
	if err := db.Where("sale_id = ?", saleID).Delete(&marketSaleModel{}).Error; err != nil {
		return err
	}
	return db.Where("sale_id = ?", saleID).Delete(&saleModel{}).Error
}

func (t *ledgerTx) AppendOutbox(ctx context.Context, event ports.MarketplaceEvent) error {
	envelope, err := event.Envelope()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := outboxModel{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    event.OccurredAt.UTC(),
	}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrRepositoryInvariantBroke
		}
		return err
	}
	return nil
}
