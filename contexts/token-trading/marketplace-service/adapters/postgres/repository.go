package postgresadapter

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
	"tiof/contexts/token-trading/marketplace-service/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the ledger tables and seeds the state row with
// administrator if it does not exist yet.
func (r *Repository) Migrate(ctx context.Context, administrator entities.Address) error {
	db := r.db.WithContext(ctx)
	if err := db.AutoMigrate(
		&stateModel{},
		&marketModel{},
		&marketSaleModel{},
		&saleModel{},
		&outboxModel{},
	); err != nil {
		return fmt.Errorf("migrate marketplace ledger: %w", err)
	}
	seed := stateModel{
		ID:            stateRowID,
		Administrator: string(administrator),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return fmt.Errorf("seed marketplace state: %w", err)
	}
	return nil
}

func (r *Repository) Transact(ctx context.Context, fn func(tx ports.LedgerTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		state, err := lockState(gtx)
		if err != nil {
			return err
		}
		return fn(&ledgerTx{db: gtx, state: state, logger: r.logger})
	})
}

// lockState serializes writers on the state row. Only postgres gets the
// FOR UPDATE clause; embedded engines lock the whole database per write.
func lockState(db *gorm.DB) (stateModel, error) {
	query := db
	if db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var state stateModel
	if err := query.Where("id = ?", stateRowID).First(&state).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return stateModel{}, fmt.Errorf("%w: marketplace state not seeded", domainerrors.ErrRepositoryInvariantBroke)
		}
		return stateModel{}, err
	}
	return state, nil
}

func (r *Repository) GetAdministrator(ctx context.Context) (entities.Address, error) {
	var state stateModel
	if err := r.db.WithContext(ctx).Where("id = ?", stateRowID).First(&state).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domainerrors.ErrRepositoryInvariantBroke
		}
		return "", err
	}
	return entities.Address(state.Administrator), nil
}

func (r *Repository) GetMarket(ctx context.Context, contract entities.Address) (entities.Market, error) {
	market, found, err := findMarket(r.db.WithContext(ctx), contract)
	if err != nil {
		return entities.Market{}, err
	}
	if !found {
		return entities.Market{}, domainerrors.ErrMarketDoesNotExist
	}
	return market, nil
}

func (r *Repository) ListMarkets(ctx context.Context) ([]entities.Market, error) {
	return listMarkets(r.db.WithContext(ctx))
}

func (r *Repository) GetSale(ctx context.Context, saleID uint64) (entities.Sale, error) {
	sale, found, err := findSale(r.db.WithContext(ctx), saleID)
	if err != nil {
		return entities.Sale{}, err
	}
	if !found {
		return entities.Sale{}, domainerrors.ErrSaleDoesNotExist
	}
	return sale, nil
}

func (r *Repository) ListSales(ctx context.Context, filter ports.SaleListFilter) ([]entities.Sale, string, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	tx := r.db.WithContext(ctx).Model(&saleModel{})
	if filter.Contract != "" {
		tx = tx.Where("contract = ?", string(filter.Contract))
	}
	if filter.Seller != "" {
		tx = tx.Where("seller = ?", string(filter.Seller))
	}
	offset := decodeCursor(filter.Cursor)

	var rows []saleModel
	if err := tx.Order("sale_id ASC").Offset(offset).Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(rows) > limit {
		nextCursor = encodeCursor(offset + limit)
		rows = rows[:limit]
	}
	items := make([]entities.Sale, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nextCursor, nil
}

// Snapshot reads the whole ledger inside one transaction.
func (r *Repository) Snapshot(ctx context.Context) (ports.LedgerSnapshot, error) {
	var snapshot ports.LedgerSnapshot
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var state stateModel
		if err := tx.Where("id = ?", stateRowID).First(&state).Error; err != nil {
			return err
		}
		markets, err := listMarkets(tx)
		if err != nil {
			return err
		}
		var rows []saleModel
		if err := tx.Order("sale_id ASC").Find(&rows).Error; err != nil {
			return err
		}
		sales := make([]entities.Sale, 0, len(rows))
		for _, row := range rows {
			sales = append(sales, row.toEntity())
		}
		snapshot = ports.LedgerSnapshot{
			Administrator: entities.Address(state.Administrator),
			SaleCounter:   state.SaleCounter,
			Markets:       markets,
			Sales:         sales,
		}
		return nil
	})
	return snapshot, err
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toPort())
	}
	return items, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	sent := sentAt.UTC()
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"status":  outboxStatusSent,
			"sent_at": &sent,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	return nil
}

func findMarket(db *gorm.DB, contract entities.Address) (entities.Market, bool, error) {
	var row marketModel
	if err := db.Where("contract = ?", string(contract)).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Market{}, false, nil
		}
		return entities.Market{}, false, err
	}
	ids, err := marketSaleIDs(db, string(contract))
	if err != nil {
		return entities.Market{}, false, err
	}
	return row.toEntity(ids), true, nil
}

func listMarkets(db *gorm.DB) ([]entities.Market, error) {
	var rows []marketModel
	if err := db.Order("contract ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	var links []marketSaleModel
	if err := db.Order("sale_id ASC").Find(&links).Error; err != nil {
		return nil, err
	}
	byContract := make(map[string][]uint64, len(rows))
	for _, link := range links {
		byContract[link.Contract] = append(byContract[link.Contract], link.SaleID)
	}
	items := make([]entities.Market, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity(byContract[row.Contract]))
	}
	return items, nil
}

func marketSaleIDs(db *gorm.DB, contract string) ([]uint64, error) {
	var ids []uint64
	if err := db.Model(&marketSaleModel{}).
		Where("contract = ?", contract).
		Order("sale_id ASC").
		Pluck("sale_id", &ids).
		Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func findSale(db *gorm.DB, saleID uint64) (entities.Sale, bool, error) {
	var row saleModel
	if err := db.Where("sale_id = ?", saleID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Sale{}, false, nil
		}
		return entities.Sale{}, false, err
	}
	return row.toEntity(), true, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func decodeCursor(cursor string) int {
	if strings.TrimSpace(cursor) == "" {
		return 0
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0
	}
	index, err := strconv.Atoi(string(raw))
	if err != nil || index < 0 {
		return 0
	}
	return index
}

func encodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}
