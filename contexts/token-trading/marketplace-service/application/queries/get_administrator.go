package queries

import (
	"context"
	"log/slog"

	application "tiof/contexts/token-trading/marketplace-service/application"
	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	"tiof/contexts/token-trading/marketplace-service/ports"
)

type GetAdministratorResult struct {
	Administrator entities.Address
}

type GetAdministratorUseCase struct {
	Ledger ports.LedgerReader
	Logger *slog.Logger
}

func (u GetAdministratorUseCase) Execute(ctx context.Context) (GetAdministratorResult, error) {
	administrator, err := u.Ledger.GetAdministrator(ctx)
	if err != nil {
		application.ResolveLogger(u.Logger).Error("get administrator failed",
			"event", "marketplace_get_administrator_failed",
			"module", application.ModuleName,
			"layer", "application",
			"error", err.Error(),
		)
		return GetAdministratorResult{}, err
	}
	return GetAdministratorResult{Administrator: administrator}, nil
}
