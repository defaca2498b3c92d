package tokens

import (
	"context"
	"errors"
	"fmt"

	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
	"tiof/contexts/token-trading/marketplace-service/ports"
	"tiof/internal/platform/chain"
)

// SandboxSettlement serves settlement sessions and escrow balances from the
// in-process token chain.
type SandboxSettlement struct {
	Chain *chain.Sandbox
}

func (s SandboxSettlement) Begin(ctx context.Context, operator entities.Address) (ports.SettlementSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return sandboxSession{session: s.Chain.Begin(string(operator))}, nil
}

func (s SandboxSettlement) AssetBalance(
	_ context.Context,
	owner entities.Address,
	contract entities.Address,
	tokenID uint64,
) (uint64, error) {
	return s.Chain.Balance(string(contract), string(owner), tokenID)
}

type sandboxSession struct {
	session *chain.Session
}

func (s sandboxSession) Invoke(ctx context.Context, call entities.ContractCall) error {
	return s.session.Invoke(ctx, string(call.Contract), call.Entrypoint, call.Parameters)
}

func (s sandboxSession) CollectPayment(ctx context.Context, payer entities.Address, amount entities.Mutez) error {
	if err := s.session.CollectPayment(ctx, string(payer), uint64(amount)); err != nil {
		return fmt.Errorf("%w: %w", domainerrors.ErrTransferRejected, err)
	}
	return nil
}

func (s sandboxSession) SendFunds(ctx context.Context, recipient entities.Address, amount entities.Mutez) error {
	if err := s.session.SendFunds(ctx, string(recipient), uint64(amount)); err != nil {
		return fmt.Errorf("%w: %w", domainerrors.ErrTransferRejected, err)
	}
	return nil
}

// Commit reports a chain that moved since Begin, or a reused session, as a
// settlement conflict. Nothing staged was applied in either case.
func (s sandboxSession) Commit(context.Context) error {
	if err := s.session.Commit(); err != nil {
		if errors.Is(err, chain.ErrStaleSession) || errors.Is(err, chain.ErrSessionClosed) {
			return fmt.Errorf("%w: %w", domainerrors.ErrSettlementConflict, err)
		}
		return err
	}
	return nil
}

func (s sandboxSession) Abort(context.Context) error {
	return s.session.Abort()
}
