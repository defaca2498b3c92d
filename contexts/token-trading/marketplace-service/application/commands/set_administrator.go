package commands

import (
	"context"
	"log/slog"
	"time"

	application "tiof/contexts/token-trading/marketplace-service/application"
	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
	"tiof/contexts/token-trading/marketplace-service/domain/services"
	"tiof/contexts/token-trading/marketplace-service/ports"
)

type SetAdministratorCommand struct {
	Caller        string
	Administrator string
}

type SetAdministratorResult struct {
	Previous      entities.Address
	Administrator entities.Address
}

type SetAdministratorUseCase struct {
	Ledger      ports.LedgerRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Observer    ports.OperationObserver
	Logger      *slog.Logger
}

func (u SetAdministratorUseCase) Execute(ctx context.Context, cmd SetAdministratorCommand) (SetAdministratorResult, error) {
	started := time.Now()
	result, err := u.execute(ctx, cmd)
	application.ObserveOperation(u.Observer, "set_administrator", started, err)
	return result, err
}

func (u SetAdministratorUseCase) execute(ctx context.Context, cmd SetAdministratorCommand) (SetAdministratorResult, error) {
	logger := application.ResolveLogger(u.Logger)
	caller, err := parseCaller(cmd.Caller)
	if err != nil {
		return SetAdministratorResult{}, err
	}
	next, ok := entities.ParseAddress(cmd.Administrator)
	if !ok {
		return SetAdministratorResult{}, domainerrors.ErrInvalidRequest
	}

	events := eventFactory{clock: u.Clock, idGenerator: u.IDGenerator}
	var result SetAdministratorResult
	err = u.Ledger.Transact(ctx, func(tx ports.LedgerTx) error {
		current, err := tx.Administrator(ctx)
		if err != nil {
			return err
		}
		access, err := services.AccessControl{Administrator: current}.Replace(caller, next)
		if err != nil {
			return err
		}
		if err := tx.SetAdministrator(ctx, access.Administrator); err != nil {
			return err
		}
		event, err := events.build(ctx, eventAdministratorChanged, access.Administrator, map[string]any{
			"previous":      string(current),
			"administrator": string(access.Administrator),
		})
		if err != nil {
			return err
		}
		if err := tx.AppendOutbox(ctx, event); err != nil {
			return err
		}
		result = SetAdministratorResult{Previous: current, Administrator: access.Administrator}
		return nil
	})
	if err != nil {
		logRejection(logger, "set_administrator", cmd.Caller, err)
		return SetAdministratorResult{}, err
	}

	logger.Info("administrator replaced",
		"event", "marketplace_administrator_changed",
		"module", application.ModuleName,
		"layer", "application",
		"previous", result.Previous,
		"administrator", result.Administrator,
	)
	return result, nil
}
