package tokens

import (
	"context"
	"fmt"
	"log/slog"

	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
	"tiof/contexts/token-trading/marketplace-service/ports"
)

// Adapter dispatches custody moves to the token contract of each market.
type Adapter struct {
	Logger *slog.Logger
}

func (a Adapter) Transfer(ctx context.Context, session ports.SettlementSession, transfer entities.AssetTransfer) error {
	call, err := EncodeTransfer(transfer)
	if err != nil {
		return err
	}
	if err := session.Invoke(ctx, call); err != nil {
		a.logger().Warn("token transfer rejected",
			"event", "marketplace_token_transfer_rejected",
			"module", "token-trading/marketplace-service",
			"layer", "adapter",
			"contract", transfer.Contract,
			"token_kind", transfer.Kind.String(),
			"token_id", transfer.TokenID,
			"from", transfer.From,
			"to", transfer.To,
			"error", err.Error(),
		)
		return fmt.Errorf("%w: %w", domainerrors.ErrTransferRejected, err)
	}
	return nil
}

func (a Adapter) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
