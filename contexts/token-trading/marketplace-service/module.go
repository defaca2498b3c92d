package marketplaceservice

import (
	"log/slog"

	httpadapter "tiof/contexts/token-trading/marketplace-service/adapters/http"
	"tiof/contexts/token-trading/marketplace-service/adapters/memory"
	"tiof/contexts/token-trading/marketplace-service/adapters/tokens"
	"tiof/contexts/token-trading/marketplace-service/application/commands"
	"tiof/contexts/token-trading/marketplace-service/application/queries"
	"tiof/contexts/token-trading/marketplace-service/application/workers"
	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	"tiof/contexts/token-trading/marketplace-service/ports"
	"tiof/internal/platform/chain"
)

// Module is the composition surface of the marketplace ledger.
// Runtime wiring consumes Handler and the workers; Store and Chain are set by
// NewInMemoryModule for tests and local runs.
type Module struct {
	Handler httpadapter.Handler
	Relay   workers.OutboxRelay
	Auditor workers.InvariantAuditor
	Escrow  entities.Address
	Store   *memory.Store
	Chain   *chain.Sandbox
}

type Dependencies struct {
	Ledger      ports.LedgerRepository
	Outbox      ports.OutboxRepository
	Settlement  ports.Settlement
	Transfers   ports.AssetTransferAdapter
	Balances    ports.EscrowBalances
	Publisher   ports.EventPublisher
	Escrow      entities.Address
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Observer    ports.OperationObserver
	Logger      *slog.Logger
}

// NewModule wires the marketplace use cases against explicit ports.
func NewModule(deps Dependencies) Module {
	transfers := deps.Transfers
	if transfers == nil {
		transfers = tokens.Adapter{Logger: deps.Logger}
	}

	handler := httpadapter.Handler{
		GetAdministrator: queries.GetAdministratorUseCase{Ledger: deps.Ledger, Logger: deps.Logger},
		GetMarket:        queries.GetMarketUseCase{Ledger: deps.Ledger, Logger: deps.Logger},
		ListMarkets:      queries.ListMarketsUseCase{Ledger: deps.Ledger, Logger: deps.Logger},
		GetSale:          queries.GetSaleUseCase{Ledger: deps.Ledger, Logger: deps.Logger},
		ListSales:        queries.ListSalesUseCase{Ledger: deps.Ledger, Logger: deps.Logger},
		SetAdministrator: commands.SetAdministratorUseCase{
			Ledger:      deps.Ledger,
			Clock:       deps.Clock,
			IDGenerator: deps.IDGenerator,
			Observer:    deps.Observer,
			Logger:      deps.Logger,
		},
		RegisterMarket: commands.RegisterMarketUseCase{
			Ledger:      deps.Ledger,
			Clock:       deps.Clock,
			IDGenerator: deps.IDGenerator,
			Observer:    deps.Observer,
			Logger:      deps.Logger,
		},
		RemoveMarket: commands.RemoveMarketUseCase{
			Ledger:      deps.Ledger,
			Settlement:  deps.Settlement,
			Transfers:   transfers,
			Escrow:      deps.Escrow,
			Clock:       deps.Clock,
			IDGenerator: deps.IDGenerator,
			Observer:    deps.Observer,
			Logger:      deps.Logger,
		},
		SellAsset: commands.SellAssetUseCase{
			Ledger:      deps.Ledger,
			Settlement:  deps.Settlement,
			Transfers:   transfers,
			Escrow:      deps.Escrow,
			Clock:       deps.Clock,
			IDGenerator: deps.IDGenerator,
			Observer:    deps.Observer,
			Logger:      deps.Logger,
		},
		BuyAsset: commands.BuyAssetUseCase{
			Ledger:      deps.Ledger,
			Settlement:  deps.Settlement,
			Transfers:   transfers,
			Escrow:      deps.Escrow,
			Clock:       deps.Clock,
			IDGenerator: deps.IDGenerator,
			Observer:    deps.Observer,
			Logger:      deps.Logger,
		},
		CancelSale: commands.CancelSaleUseCase{
			Ledger:      deps.Ledger,
			Settlement:  deps.Settlement,
			Transfers:   transfers,
			Escrow:      deps.Escrow,
			Clock:       deps.Clock,
			IDGenerator: deps.IDGenerator,
			Observer:    deps.Observer,
			Logger:      deps.Logger,
		},
		Logger: deps.Logger,
	}

	return Module{
		Handler: handler,
		Relay: workers.OutboxRelay{
			Outbox:    deps.Outbox,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			Logger:    deps.Logger,
		},
		Auditor: workers.InvariantAuditor{
			Ledger:   deps.Ledger,
			Balances: deps.Balances,
			Escrow:   deps.Escrow,
			Logger:   deps.Logger,
		},
		Escrow: deps.Escrow,
	}
}

// NewInMemoryModule wires the use cases against the memory ledger and an
// in-process token chain. A nil sandbox gets a fresh one.
func NewInMemoryModule(
	administrator entities.Address,
	escrow entities.Address,
	sandbox *chain.Sandbox,
	logger *slog.Logger,
) Module {
	if sandbox == nil {
		sandbox = chain.NewSandbox(logger)
	}
	store := memory.NewStore(administrator, logger)
	settlement := tokens.SandboxSettlement{Chain: sandbox}
	module := NewModule(Dependencies{
		Ledger:      store,
		Outbox:      store,
		Settlement:  settlement,
		Balances:    settlement,
		Escrow:      escrow,
		Clock:       store,
		IDGenerator: store,
		Logger:      logger,
	})
	module.Store = store
	module.Chain = sandbox
	return module
}
