package workers

import (
	"context"
	"fmt"
	"log/slog"

	application "tiof/contexts/token-trading/marketplace-service/application"
	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
	"tiof/contexts/token-trading/marketplace-service/domain/services"
	"tiof/contexts/token-trading/marketplace-service/ports"
)

// InvariantAuditor cross-checks the registry against the sale ledger and,
// when Balances is set, the escrow's custody of every open sale.
type InvariantAuditor struct {
	Ledger   ports.LedgerReader
	Balances ports.EscrowBalances
	Escrow   entities.Address
	Logger   *slog.Logger
}

type assetKey struct {
	contract entities.Address
	tokenID  uint64
}

func (a InvariantAuditor) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(a.Logger)
	snapshot, err := a.Ledger.Snapshot(ctx)
	if err != nil {
		logger.Error("ledger snapshot failed",
			"event", "marketplace_audit_snapshot_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	if err := a.check(ctx, snapshot); err != nil {
		logger.Error("marketplace invariant violated",
			"event", "marketplace_audit_violation",
			"module", application.ModuleName,
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	logger.Debug("marketplace audit passed",
		"event", "marketplace_audit_passed",
		"module", application.ModuleName,
		"layer", "worker",
		"markets", len(snapshot.Markets),
		"sales", len(snapshot.Sales),
	)
	return nil
}

func (a InvariantAuditor) check(ctx context.Context, snapshot ports.LedgerSnapshot) error {
	if err := services.CheckConsistency(snapshot.Markets, snapshot.Sales); err != nil {
		return err
	}
	for _, sale := range snapshot.Sales {
		if sale.SaleID > snapshot.SaleCounter {
			return fmt.Errorf("%w: sale %d beyond counter %d",
				domainerrors.ErrRepositoryInvariantBroke, sale.SaleID, snapshot.SaleCounter)
		}
	}
	if a.Balances == nil || a.Escrow == "" {
		return nil
	}

	// Several sales of one asset share the escrow balance, so compare sums.
	owed := make(map[assetKey]uint64)
	order := make([]assetKey, 0)
	for _, sale := range snapshot.Sales {
		key := assetKey{contract: sale.Contract, tokenID: sale.TokenID}
		if _, seen := owed[key]; !seen {
			order = append(order, key)
		}
		owed[key] += sale.Amount
	}
	for _, key := range order {
		held, err := a.Balances.AssetBalance(ctx, a.Escrow, key.contract, key.tokenID)
		if err != nil {
			return err
		}
		if held < owed[key] {
			return fmt.Errorf("%w: escrow holds %d of %s/%d, open sales need %d",
				domainerrors.ErrRepositoryInvariantBroke, held, key.contract, key.tokenID, owed[key])
		}
	}
	return nil
}
