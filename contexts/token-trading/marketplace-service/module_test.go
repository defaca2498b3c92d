package marketplaceservice_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"

	marketplaceservice "tiof/contexts/token-trading/marketplace-service"
	"tiof/contexts/token-trading/marketplace-service/adapters/memory"
	"tiof/contexts/token-trading/marketplace-service/adapters/tokens"
	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
	"tiof/contexts/token-trading/marketplace-service/ports"
	httptransport "tiof/contexts/token-trading/marketplace-service/transport/http"
	"tiof/internal/platform/chain"
)

const (
	admin    = "tz1Admin"
	escrow   = "KT1Marketplace"
	seller   = "tz1Seller"
	buyer    = "tz1Buyer"
	stranger = "tz1Stranger"
	fungible = "KT1Fungible"
	multi    = "KT1Multi"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestModule(t *testing.T) (marketplaceservice.Module, *chain.Sandbox) {
	t.Helper()
	sandbox := chain.NewSandbox(quietLogger())
	if err := sandbox.DeployFA12(fungible); err != nil {
		t.Fatalf("deploy fa1.2: %v", err)
	}
	if err := sandbox.DeployFA2(multi, 1, 2, 7); err != nil {
		t.Fatalf("deploy fa2: %v", err)
	}
	module := marketplaceservice.NewInMemoryModule(admin, escrow, sandbox, quietLogger())
	return module, sandbox
}

func registerMarket(t *testing.T, module marketplaceservice.Module, contract string, kind string) {
	t.Helper()
	_, err := module.Handler.RegisterMarketHandler(context.Background(), admin, httptransport.RegisterMarketRequest{
		Contract:  contract,
		TokenKind: kind,
	})
	if err != nil {
		t.Fatalf("register market %s: %v", contract, err)
	}
}

func sell(
	module marketplaceservice.Module,
	caller string,
	contract string,
	tokenID uint64,
	amount uint64,
	price uint64,
) (httptransport.SaleDTO, error) {
	resp, err := module.Handler.SellAssetHandler(context.Background(), caller, httptransport.SellAssetRequest{
		Contract:   contract,
		TokenID:    tokenID,
		Amount:     amount,
		PriceMutez: price,
	})
	return resp.Item, err
}

func mustSell(
	t *testing.T,
	module marketplaceservice.Module,
	caller string,
	contract string,
	tokenID uint64,
	amount uint64,
	price uint64,
) httptransport.SaleDTO {
	t.Helper()
	sale, err := sell(module, caller, contract, tokenID, amount, price)
	if err != nil {
		t.Fatalf("sell %d of %s: %v", amount, contract, err)
	}
	return sale
}

func balanceOf(t *testing.T, sandbox *chain.Sandbox, contract string, owner string, tokenID uint64) uint64 {
	t.Helper()
	balance, err := sandbox.Balance(contract, owner, tokenID)
	if err != nil {
		t.Fatalf("balance of %s at %s: %v", owner, contract, err)
	}
	return balance
}

func marketSaleIDs(t *testing.T, module marketplaceservice.Module, contract string) []uint64 {
	t.Helper()
	resp, err := module.Handler.GetMarketHandler(context.Background(), contract)
	if err != nil {
		t.Fatalf("get market %s: %v", contract, err)
	}
	return resp.Item.SaleIDs
}

func outboxTypes(store *memory.Store) []string {
	var types []string
	for _, message := range store.OutboxEvents() {
		types = append(types, message.EventType)
	}
	return types
}

func seedFungibleSeller(t *testing.T, sandbox *chain.Sandbox, amount uint64, allowance uint64) {
	t.Helper()
	if err := sandbox.Mint(fungible, seller, 0, amount); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := sandbox.Approve(fungible, seller, escrow, allowance); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func seedMultiSeller(t *testing.T, sandbox *chain.Sandbox, owner string, tokenID uint64, amount uint64) {
	t.Helper()
	if err := sandbox.Mint(multi, owner, tokenID, amount); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := sandbox.AddOperator(multi, owner, escrow, tokenID); err != nil {
		t.Fatalf("add operator: %v", err)
	}
}

func TestSellAssetEscrowsFungibleQuantity(t *testing.T) {
	module, sandbox := newTestModule(t)
	registerMarket(t, module, fungible, "fa1.2")
	seedFungibleSeller(t, sandbox, 50, 50)

	sale := mustSell(t, module, seller, fungible, 0, 10, 20000)
	want := httptransport.SaleDTO{
		SaleID:     1,
		Contract:   fungible,
		TokenID:    0,
		Amount:     10,
		PriceMutez: 20000,
		PriceTez:   "0.020000",
		Seller:     seller,
	}
	if sale != want {
		t.Fatalf("unexpected sale: %+v", sale)
	}
	if got := balanceOf(t, sandbox, fungible, seller, 0); got != 40 {
		t.Fatalf("expected seller balance 40, got %d", got)
	}
	if got := balanceOf(t, sandbox, fungible, escrow, 0); got != 10 {
		t.Fatalf("expected escrow balance 10, got %d", got)
	}
	if ids := marketSaleIDs(t, module, fungible); !slices.Equal(ids, []uint64{1}) {
		t.Fatalf("expected market sale ids [1], got %v", ids)
	}

	if err := sandbox.Approve(fungible, seller, escrow, 0); err != nil {
		t.Fatalf("reset allowance: %v", err)
	}
	eventsBefore := len(module.Store.OutboxEvents())
	_, err := sell(module, seller, fungible, 0, 10, 20000)
	if !errors.Is(err, domainerrors.ErrTransferRejected) || !errors.Is(err, chain.ErrNotEnoughAllowance) {
		t.Fatalf("expected allowance rejection, got %v", err)
	}
	if got := balanceOf(t, sandbox, fungible, seller, 0); got != 40 {
		t.Fatalf("rejected sale moved funds: seller balance %d", got)
	}
	if ids := marketSaleIDs(t, module, fungible); !slices.Equal(ids, []uint64{1}) {
		t.Fatalf("rejected sale changed market: %v", ids)
	}
	if got := len(module.Store.OutboxEvents()); got != eventsBefore {
		t.Fatalf("rejected sale appended %d events", got-eventsBefore)
	}

	// The counter did not advance on the rejected listing.
	if err := sandbox.Approve(fungible, seller, escrow, 5); err != nil {
		t.Fatalf("approve again: %v", err)
	}
	next := mustSell(t, module, seller, fungible, 0, 5, 100)
	if next.SaleID != 2 {
		t.Fatalf("expected sale id 2, got %d", next.SaleID)
	}
}

func TestCancelSaleRestoresEscrowedQuantity(t *testing.T) {
	module, sandbox := newTestModule(t)
	registerMarket(t, module, fungible, "fa1.2")
	seedFungibleSeller(t, sandbox, 50, 50)
	sale := mustSell(t, module, seller, fungible, 0, 10, 20000)

	resp, err := module.Handler.CancelSaleHandler(context.Background(), seller, sale.SaleID)
	if err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	if resp.Sale.SaleID != sale.SaleID {
		t.Fatalf("unexpected cancelled sale %d", resp.Sale.SaleID)
	}
	if got := balanceOf(t, sandbox, fungible, seller, 0); got != 50 {
		t.Fatalf("expected seller balance 50, got %d", got)
	}
	if got := balanceOf(t, sandbox, fungible, escrow, 0); got != 0 {
		t.Fatalf("expected empty escrow, got %d", got)
	}
	if ids := marketSaleIDs(t, module, fungible); len(ids) != 0 {
		t.Fatalf("expected empty market, got %v", ids)
	}
	if _, err := module.Handler.GetSaleHandler(context.Background(), sale.SaleID); !errors.Is(err, domainerrors.ErrSaleDoesNotExist) {
		t.Fatalf("expected sale to be gone, got %v", err)
	}

	_, err = module.Handler.CancelSaleHandler(context.Background(), seller, sale.SaleID)
	if !errors.Is(err, domainerrors.ErrSaleDoesNotExist) {
		t.Fatalf("expected second cancel to fail with sale does not exist, got %v", err)
	}
}

func TestBuyAssetSettlesMultiAssetSale(t *testing.T) {
	module, sandbox := newTestModule(t)
	registerMarket(t, module, multi, "fa2")
	seedMultiSeller(t, sandbox, seller, 7, 1)
	sandbox.Credit(buyer, 2_000_000)

	sale := mustSell(t, module, seller, multi, 7, 1, 1_500_000)
	if sale.PriceTez != "1.500000" {
		t.Fatalf("unexpected tez rendering %q", sale.PriceTez)
	}

	resp, err := module.Handler.BuyAssetHandler(context.Background(), buyer, sale.SaleID, httptransport.BuyAssetRequest{
		AmountMutez: 1_500_000,
	})
	if err != nil {
		t.Fatalf("buy asset: %v", err)
	}
	if resp.Buyer != buyer || resp.Sale.SaleID != sale.SaleID {
		t.Fatalf("unexpected buy response: %+v", resp)
	}
	if got := balanceOf(t, sandbox, multi, buyer, 7); got != 1 {
		t.Fatalf("expected buyer to hold token, got %d", got)
	}
	if got := balanceOf(t, sandbox, multi, escrow, 7); got != 0 {
		t.Fatalf("expected empty escrow, got %d", got)
	}
	if got := sandbox.TezBalance(seller); got != 1_500_000 {
		t.Fatalf("expected seller paid 1500000, got %d", got)
	}
	if got := sandbox.TezBalance(buyer); got != 500_000 {
		t.Fatalf("expected buyer left with 500000, got %d", got)
	}
	if got := sandbox.TezBalance(escrow); got != 0 {
		t.Fatalf("escrow kept %d mutez", got)
	}
	if ids := marketSaleIDs(t, module, multi); len(ids) != 0 {
		t.Fatalf("expected empty market, got %v", ids)
	}

	_, err = module.Handler.BuyAssetHandler(context.Background(), buyer, sale.SaleID, httptransport.BuyAssetRequest{
		AmountMutez: 1_500_000,
	})
	if !errors.Is(err, domainerrors.ErrSaleDoesNotExist) {
		t.Fatalf("expected repeated buy to fail with sale does not exist, got %v", err)
	}
}

func TestBuyAssetRequiresExactPrice(t *testing.T) {
	module, sandbox := newTestModule(t)
	registerMarket(t, module, multi, "fa2")
	seedMultiSeller(t, sandbox, seller, 7, 1)
	sandbox.Credit(buyer, 5_000)
	sale := mustSell(t, module, seller, multi, 7, 1, 1_000)

	for _, attached := range []uint64{999, 1_001, 0} {
		_, err := module.Handler.BuyAssetHandler(context.Background(), buyer, sale.SaleID, httptransport.BuyAssetRequest{
			AmountMutez: attached,
		})
		if !errors.Is(err, domainerrors.ErrPriceMismatch) {
			t.Fatalf("attached %d: expected price mismatch, got %v", attached, err)
		}
	}

	current, err := module.Handler.GetSaleHandler(context.Background(), sale.SaleID)
	if err != nil {
		t.Fatalf("sale should remain open: %v", err)
	}
	if current.Item != sale {
		t.Fatalf("sale changed after mismatches: %+v", current.Item)
	}
	if got := sandbox.TezBalance(buyer); got != 5_000 {
		t.Fatalf("mismatch moved buyer funds: %d", got)
	}

	if _, err := module.Handler.BuyAssetHandler(context.Background(), buyer, sale.SaleID, httptransport.BuyAssetRequest{
		AmountMutez: 1_000,
	}); err != nil {
		t.Fatalf("exact payment should succeed: %v", err)
	}
}

func TestBuyAssetIsAtomicWhenAssetTransferFails(t *testing.T) {
	module, sandbox := newTestModule(t)
	registerMarket(t, module, multi, "fa2")
	seedMultiSeller(t, sandbox, seller, 7, 1)
	sandbox.Credit(buyer, 1_000)
	sale := mustSell(t, module, seller, multi, 7, 1, 1_000)

	if err := sandbox.SetPaused(multi, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	_, err := module.Handler.BuyAssetHandler(context.Background(), buyer, sale.SaleID, httptransport.BuyAssetRequest{
		AmountMutez: 1_000,
	})
	if !errors.Is(err, domainerrors.ErrTransferRejected) || !errors.Is(err, chain.ErrContractPaused) {
		t.Fatalf("expected paused contract rejection, got %v", err)
	}
	if got := sandbox.TezBalance(buyer); got != 1_000 {
		t.Fatalf("payment collected despite failure: buyer has %d", got)
	}
	if got := sandbox.TezBalance(seller); got != 0 {
		t.Fatalf("seller paid despite failure: %d", got)
	}
	if ids := marketSaleIDs(t, module, multi); !slices.Equal(ids, []uint64{sale.SaleID}) {
		t.Fatalf("market changed after failed buy: %v", ids)
	}
	if _, err := module.Handler.GetSaleHandler(context.Background(), sale.SaleID); err != nil {
		t.Fatalf("sale removed after failed buy: %v", err)
	}
}

func TestBuyAssetRejectsBuyerWithoutFunds(t *testing.T) {
	module, sandbox := newTestModule(t)
	registerMarket(t, module, multi, "fa2")
	seedMultiSeller(t, sandbox, seller, 7, 1)
	sale := mustSell(t, module, seller, multi, 7, 1, 1_000)

	_, err := module.Handler.BuyAssetHandler(context.Background(), buyer, sale.SaleID, httptransport.BuyAssetRequest{
		AmountMutez: 1_000,
	})
	if !errors.Is(err, domainerrors.ErrTransferRejected) || !errors.Is(err, chain.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if got := balanceOf(t, sandbox, multi, escrow, 7); got != 1 {
		t.Fatalf("escrow released token without payment: %d", got)
	}
}

func TestCancelSaleIsAtomicWhenTransferFails(t *testing.T) {
	module, sandbox := newTestModule(t)
	registerMarket(t, module, fungible, "fa1.2")
	seedFungibleSeller(t, sandbox, 50, 50)
	sale := mustSell(t, module, seller, fungible, 0, 10, 20000)

	if err := sandbox.SetPaused(fungible, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	_, err := module.Handler.CancelSaleHandler(context.Background(), seller, sale.SaleID)
	if !errors.Is(err, domainerrors.ErrTransferRejected) {
		t.Fatalf("expected transfer rejection, got %v", err)
	}
	if ids := marketSaleIDs(t, module, fungible); !slices.Equal(ids, []uint64{sale.SaleID}) {
		t.Fatalf("market changed after failed cancel: %v", ids)
	}
	if _, err := module.Handler.GetSaleHandler(context.Background(), sale.SaleID); err != nil {
		t.Fatalf("sale removed after failed cancel: %v", err)
	}
	if got := balanceOf(t, sandbox, fungible, escrow, 0); got != 10 {
		t.Fatalf("escrow changed after failed cancel: %d", got)
	}
}

func TestSellAssetRequiresMultiAssetOperator(t *testing.T) {
	module, sandbox := newTestModule(t)
	registerMarket(t, module, multi, "fa2")
	if err := sandbox.Mint(multi, seller, 7, 3); err != nil {
		t.Fatalf("mint: %v", err)
	}

	_, err := sell(module, seller, multi, 7, 3, 10)
	if !errors.Is(err, domainerrors.ErrTransferRejected) || !errors.Is(err, chain.ErrFA2NotOperator) {
		t.Fatalf("expected operator rejection, got %v", err)
	}
	if got := balanceOf(t, sandbox, multi, seller, 7); got != 3 {
		t.Fatalf("rejected sale moved tokens: %d", got)
	}
	list, err := module.Handler.ListSalesHandler(context.Background(), httptransport.ListSalesRequest{})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(list.Items) != 0 {
		t.Fatalf("expected no sales, got %d", len(list.Items))
	}
}

func TestSellAssetValidatesRequest(t *testing.T) {
	module, sandbox := newTestModule(t)
	seedFungibleSeller(t, sandbox, 50, 50)

	if _, err := sell(module, seller, fungible, 0, 10, 1); !errors.Is(err, domainerrors.ErrMarketDoesNotExist) {
		t.Fatalf("expected market does not exist, got %v", err)
	}

	registerMarket(t, module, fungible, "fa1.2")
	if _, err := sell(module, seller, fungible, 0, 0, 1); !errors.Is(err, domainerrors.ErrInvalidRequest) {
		t.Fatalf("expected invalid request for zero amount, got %v", err)
	}
	if _, err := sell(module, " ", fungible, 0, 1, 1); !errors.Is(err, domainerrors.ErrInvalidRequest) {
		t.Fatalf("expected invalid request for blank caller, got %v", err)
	}
}

func TestEscrowCannotTradeAgainstItself(t *testing.T) {
	module, sandbox := newTestModule(t)
	registerMarket(t, module, fungible, "fa1.2")
	registerMarket(t, module, multi, "fa2")
	seedFungibleSeller(t, sandbox, 10, 10)
	seedMultiSeller(t, sandbox, seller, 7, 5)
	fungibleSale := mustSell(t, module, seller, fungible, 0, 10, 100)
	multiSale := mustSell(t, module, seller, multi, 7, 5, 100)

	if _, err := sell(module, escrow, fungible, 0, 10, 1); !errors.Is(err, domainerrors.ErrInvalidRequest) {
		t.Fatalf("expected escrow listing of fa1.2 units to be rejected, got %v", err)
	}
	if _, err := sell(module, escrow, multi, 7, 5, 1); !errors.Is(err, domainerrors.ErrInvalidRequest) {
		t.Fatalf("expected escrow listing of fa2 units to be rejected, got %v", err)
	}
	for _, sale := range []httptransport.SaleDTO{fungibleSale, multiSale} {
		_, err := module.Handler.BuyAssetHandler(context.Background(), escrow, sale.SaleID, httptransport.BuyAssetRequest{
			AmountMutez: sale.PriceMutez,
		})
		if !errors.Is(err, domainerrors.ErrInvalidRequest) {
			t.Fatalf("expected escrow purchase of sale %d to be rejected, got %v", sale.SaleID, err)
		}
	}

	if got := balanceOf(t, sandbox, fungible, escrow, 0); got != 10 {
		t.Fatalf("expected escrow to keep 10 fa1.2 units, got %d", got)
	}
	if got := balanceOf(t, sandbox, multi, escrow, 7); got != 5 {
		t.Fatalf("expected escrow to keep 5 fa2 units, got %d", got)
	}
	if ids := marketSaleIDs(t, module, multi); !slices.Equal(ids, []uint64{multiSale.SaleID}) {
		t.Fatalf("expected only the seller's fa2 sale, got %v", ids)
	}
	if err := module.Auditor.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected custody to stay consistent, got %v", err)
	}
}

// racingSettlement lets the chain move between Begin and Commit.
type racingSettlement struct {
	tokens.SandboxSettlement
}

func (r racingSettlement) Begin(ctx context.Context, operator entities.Address) (ports.SettlementSession, error) {
	session, err := r.SandboxSettlement.Begin(ctx, operator)
	if err != nil {
		return nil, err
	}
	r.Chain.Credit("tz1Bystander", 1)
	return session, nil
}

func TestBuyAssetRollsBackOnSettlementConflict(t *testing.T) {
	base, sandbox := newTestModule(t)
	registerMarket(t, base, multi, "fa2")
	seedMultiSeller(t, sandbox, seller, 7, 3)
	sale := mustSell(t, base, seller, multi, 7, 3, 900)
	sandbox.Credit(buyer, 900)

	module := marketplaceservice.NewModule(marketplaceservice.Dependencies{
		Ledger:      base.Store,
		Outbox:      base.Store,
		Settlement:  racingSettlement{SandboxSettlement: tokens.SandboxSettlement{Chain: sandbox}},
		Escrow:      escrow,
		Clock:       base.Store,
		IDGenerator: base.Store,
		Logger:      quietLogger(),
	})
	_, err := module.Handler.BuyAssetHandler(context.Background(), buyer, sale.SaleID, httptransport.BuyAssetRequest{
		AmountMutez: 900,
	})
	if !errors.Is(err, domainerrors.ErrSettlementConflict) {
		t.Fatalf("expected settlement conflict, got %v", err)
	}
	if code := domainerrors.Code(err); code != "TIOF_SETTLEMENT_CONFLICT" {
		t.Fatalf("expected conflict code, got %s", code)
	}

	if got := balanceOf(t, sandbox, multi, escrow, 7); got != 3 {
		t.Fatalf("expected escrow to keep 3 units, got %d", got)
	}
	if got := sandbox.TezBalance(buyer); got != 900 {
		t.Fatalf("expected buyer to keep 900 mutez, got %d", got)
	}
	if ids := marketSaleIDs(t, base, multi); !slices.Equal(ids, []uint64{sale.SaleID}) {
		t.Fatalf("expected sale %d to stay open, got %v", sale.SaleID, ids)
	}
}

func TestRemoveMarketReturnsEveryEscrowedSale(t *testing.T) {
	module, sandbox := newTestModule(t)
	registerMarket(t, module, multi, "fa2")
	seedMultiSeller(t, sandbox, seller, 1, 5)
	seedMultiSeller(t, sandbox, stranger, 2, 3)

	first := mustSell(t, module, seller, multi, 1, 3, 100)
	second := mustSell(t, module, stranger, multi, 2, 3, 200)
	third := mustSell(t, module, seller, multi, 1, 2, 300)

	resp, err := module.Handler.RemoveMarketHandler(context.Background(), admin, multi)
	if err != nil {
		t.Fatalf("remove market: %v", err)
	}
	var returned []uint64
	for _, sale := range resp.ReturnedSales {
		returned = append(returned, sale.SaleID)
	}
	if !slices.Equal(returned, []uint64{first.SaleID, second.SaleID, third.SaleID}) {
		t.Fatalf("unexpected returned sales %v", returned)
	}

	if got := balanceOf(t, sandbox, multi, seller, 1); got != 5 {
		t.Fatalf("expected seller restored to 5, got %d", got)
	}
	if got := balanceOf(t, sandbox, multi, stranger, 2); got != 3 {
		t.Fatalf("expected second seller restored to 3, got %d", got)
	}
	for _, tokenID := range []uint64{1, 2} {
		if got := balanceOf(t, sandbox, multi, escrow, tokenID); got != 0 {
			t.Fatalf("escrow still holds %d of token %d", got, tokenID)
		}
	}
	if _, err := module.Handler.GetMarketHandler(context.Background(), multi); !errors.Is(err, domainerrors.ErrMarketDoesNotExist) {
		t.Fatalf("expected market gone, got %v", err)
	}
	for _, id := range returned {
		if _, err := module.Handler.GetSaleHandler(context.Background(), id); !errors.Is(err, domainerrors.ErrSaleDoesNotExist) {
			t.Fatalf("sale %d survived market removal: %v", id, err)
		}
	}

	types := outboxTypes(module.Store)
	tail := types[len(types)-4:]
	want := []string{
		"marketplace.sale_unwound",
		"marketplace.sale_unwound",
		"marketplace.sale_unwound",
		"marketplace.market_removed",
	}
	if !slices.Equal(tail, want) {
		t.Fatalf("unexpected removal events %v", tail)
	}
}

// failingTransfers rejects transfers to one recipient and delegates the rest.
type failingTransfers struct {
	next      ports.AssetTransferAdapter
	recipient entities.Address
}

func (f failingTransfers) Transfer(ctx context.Context, session ports.SettlementSession, transfer entities.AssetTransfer) error {
	if transfer.To == f.recipient {
		return domainerrors.ErrTransferRejected
	}
	return f.next.Transfer(ctx, session, transfer)
}

func TestRemoveMarketIsAllOrNothing(t *testing.T) {
	sandbox := chain.NewSandbox(quietLogger())
	if err := sandbox.DeployFA2(multi, 1, 2); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	store := memory.NewStore(admin, quietLogger())
	settlement := tokens.SandboxSettlement{Chain: sandbox}
	module := marketplaceservice.NewModule(marketplaceservice.Dependencies{
		Ledger:      store,
		Outbox:      store,
		Settlement:  settlement,
		Transfers:   failingTransfers{next: tokens.Adapter{}, recipient: stranger},
		Balances:    settlement,
		Escrow:      escrow,
		Clock:       store,
		IDGenerator: store,
		Logger:      quietLogger(),
	})
	module.Store = store

	registerMarket(t, module, multi, "fa2")
	seedMultiSeller(t, sandbox, seller, 1, 4)
	seedMultiSeller(t, sandbox, stranger, 2, 4)
	mustSell(t, module, seller, multi, 1, 4, 100)
	mustSell(t, module, stranger, multi, 2, 4, 100)
	eventsBefore := len(store.OutboxEvents())

	// The first return succeeds in the session; the second is rejected.
	_, err := module.Handler.RemoveMarketHandler(context.Background(), admin, multi)
	if !errors.Is(err, domainerrors.ErrTransferRejected) {
		t.Fatalf("expected transfer rejection, got %v", err)
	}
	if ids := marketSaleIDs(t, module, multi); !slices.Equal(ids, []uint64{1, 2}) {
		t.Fatalf("market changed after failed removal: %v", ids)
	}
	if got := balanceOf(t, sandbox, multi, seller, 1); got != 0 {
		t.Fatalf("partial unwind committed: seller holds %d", got)
	}
	if got := balanceOf(t, sandbox, multi, escrow, 1); got != 4 {
		t.Fatalf("partial unwind committed: escrow holds %d of token 1", got)
	}
	if got := len(store.OutboxEvents()); got != eventsBefore {
		t.Fatalf("failed removal appended %d events", got-eventsBefore)
	}
	if err := module.Auditor.RunOnce(context.Background()); err != nil {
		t.Fatalf("ledger inconsistent after failed removal: %v", err)
	}
}

func TestAdministratorOnlyOperations(t *testing.T) {
	module, _ := newTestModule(t)
	ctx := context.Background()

	if _, err := module.Handler.RegisterMarketHandler(ctx, stranger, httptransport.RegisterMarketRequest{
		Contract:  fungible,
		TokenKind: "fa1.2",
	}); !errors.Is(err, domainerrors.ErrNotAdmin) {
		t.Fatalf("expected not admin on register, got %v", err)
	}

	registerMarket(t, module, fungible, "fa1.2")
	if _, err := module.Handler.RegisterMarketHandler(ctx, admin, httptransport.RegisterMarketRequest{
		Contract:  fungible,
		TokenKind: "fa2",
	}); !errors.Is(err, domainerrors.ErrMarketAlreadyExists) {
		t.Fatalf("expected already registered, got %v", err)
	}
	if _, err := module.Handler.RegisterMarketHandler(ctx, admin, httptransport.RegisterMarketRequest{
		Contract:  multi,
		TokenKind: "erc20",
	}); !errors.Is(err, domainerrors.ErrInvalidRequest) {
		t.Fatalf("expected invalid token kind, got %v", err)
	}

	if _, err := module.Handler.RemoveMarketHandler(ctx, stranger, fungible); !errors.Is(err, domainerrors.ErrNotAdmin) {
		t.Fatalf("expected not admin on remove, got %v", err)
	}
	if _, err := module.Handler.RemoveMarketHandler(ctx, admin, multi); !errors.Is(err, domainerrors.ErrMarketDoesNotExist) {
		t.Fatalf("expected market does not exist, got %v", err)
	}

	if _, err := module.Handler.SetAdministratorHandler(ctx, stranger, httptransport.SetAdministratorRequest{
		Administrator: stranger,
	}); !errors.Is(err, domainerrors.ErrNotAdmin) {
		t.Fatalf("expected not admin on set administrator, got %v", err)
	}

	resp, err := module.Handler.SetAdministratorHandler(ctx, admin, httptransport.SetAdministratorRequest{
		Administrator: "tz1Successor",
	})
	if err != nil {
		t.Fatalf("hand over administrator: %v", err)
	}
	if resp.Previous != admin || resp.Administrator != "tz1Successor" {
		t.Fatalf("unexpected handover response: %+v", resp)
	}
	current, err := module.Handler.GetAdministratorHandler(ctx)
	if err != nil || current.Administrator != "tz1Successor" {
		t.Fatalf("expected successor as administrator, got %+v err=%v", current, err)
	}

	if _, err := module.Handler.RemoveMarketHandler(ctx, admin, fungible); !errors.Is(err, domainerrors.ErrNotAdmin) {
		t.Fatalf("former administrator kept rights: %v", err)
	}
	if _, err := module.Handler.RemoveMarketHandler(ctx, "tz1Successor", fungible); err != nil {
		t.Fatalf("successor remove market: %v", err)
	}
}

func TestCancelSaleAllowsOnlySellerOrAdministrator(t *testing.T) {
	module, sandbox := newTestModule(t)
	registerMarket(t, module, fungible, "fa1.2")
	seedFungibleSeller(t, sandbox, 50, 50)
	first := mustSell(t, module, seller, fungible, 0, 10, 1)
	second := mustSell(t, module, seller, fungible, 0, 10, 1)

	if _, err := module.Handler.CancelSaleHandler(context.Background(), stranger, first.SaleID); !errors.Is(err, domainerrors.ErrNotAdminOrSeller) {
		t.Fatalf("expected not admin or seller, got %v", err)
	}
	if _, err := module.Handler.CancelSaleHandler(context.Background(), admin, first.SaleID); err != nil {
		t.Fatalf("administrator cancel: %v", err)
	}
	if _, err := module.Handler.CancelSaleHandler(context.Background(), seller, second.SaleID); err != nil {
		t.Fatalf("seller cancel: %v", err)
	}
	if got := balanceOf(t, sandbox, fungible, seller, 0); got != 50 {
		t.Fatalf("expected seller restored to 50, got %d", got)
	}
}

func TestSaleIDsAreNeverReused(t *testing.T) {
	module, sandbox := newTestModule(t)
	registerMarket(t, module, fungible, "fa1.2")
	seedFungibleSeller(t, sandbox, 50, 50)

	first := mustSell(t, module, seller, fungible, 0, 10, 1)
	if _, err := module.Handler.CancelSaleHandler(context.Background(), seller, first.SaleID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	second := mustSell(t, module, seller, fungible, 0, 10, 1)
	if second.SaleID <= first.SaleID {
		t.Fatalf("sale id %d reused or decreased after %d", second.SaleID, first.SaleID)
	}
}

func TestListSalesFiltersAndPages(t *testing.T) {
	module, sandbox := newTestModule(t)
	registerMarket(t, module, fungible, "fa1.2")
	registerMarket(t, module, multi, "fa2")
	seedFungibleSeller(t, sandbox, 50, 50)
	seedMultiSeller(t, sandbox, stranger, 2, 2)

	mustSell(t, module, seller, fungible, 0, 5, 1)
	mustSell(t, module, seller, fungible, 0, 5, 2)
	mustSell(t, module, stranger, multi, 2, 2, 3)
	ctx := context.Background()

	bySeller, err := module.Handler.ListSalesHandler(ctx, httptransport.ListSalesRequest{Seller: stranger})
	if err != nil {
		t.Fatalf("list by seller: %v", err)
	}
	if len(bySeller.Items) != 1 || bySeller.Items[0].Contract != multi {
		t.Fatalf("unexpected seller filter result %+v", bySeller.Items)
	}

	page, err := module.Handler.ListSalesHandler(ctx, httptransport.ListSalesRequest{Contract: fungible, Limit: 1})
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].SaleID != 1 || page.NextCursor == "" {
		t.Fatalf("unexpected first page %+v", page)
	}
	rest, err := module.Handler.ListSalesHandler(ctx, httptransport.ListSalesRequest{
		Contract: fungible,
		Limit:    1,
		Cursor:   page.NextCursor,
	})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(rest.Items) != 1 || rest.Items[0].SaleID != 2 || rest.NextCursor != "" {
		t.Fatalf("unexpected second page %+v", rest)
	}

	markets, err := module.Handler.ListMarketsHandler(ctx)
	if err != nil {
		t.Fatalf("list markets: %v", err)
	}
	if len(markets.Items) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(markets.Items))
	}
}

type capturingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []ports.EventEnvelope
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func TestCommittedOperationsRelayEventsInOrder(t *testing.T) {
	module, sandbox := newTestModule(t)
	registerMarket(t, module, multi, "fa2")
	seedMultiSeller(t, sandbox, seller, 7, 1)
	sandbox.Credit(buyer, 10)
	sale := mustSell(t, module, seller, multi, 7, 1, 10)

	if _, err := module.Handler.BuyAssetHandler(context.Background(), buyer, sale.SaleID, httptransport.BuyAssetRequest{
		AmountMutez: 9,
	}); !errors.Is(err, domainerrors.ErrPriceMismatch) {
		t.Fatalf("expected price mismatch, got %v", err)
	}
	if _, err := module.Handler.BuyAssetHandler(context.Background(), buyer, sale.SaleID, httptransport.BuyAssetRequest{
		AmountMutez: 10,
	}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	publisher := &capturingPublisher{}
	relay := module.Relay
	relay.Publisher = publisher
	sent, err := relay.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if sent != 3 {
		t.Fatalf("expected 3 relayed events, got %d", sent)
	}

	var types []string
	for _, event := range publisher.events {
		types = append(types, event.EventType)
		if event.PartitionKey != multi {
			t.Fatalf("event %s partitioned by %q", event.EventType, event.PartitionKey)
		}
	}
	want := []string{
		"marketplace.market_registered",
		"marketplace.sale_listed",
		"marketplace.sale_purchased",
	}
	if !slices.Equal(types, want) {
		t.Fatalf("unexpected relayed events %v", types)
	}
	if publisher.topics[0] != "marketplace.events" {
		t.Fatalf("unexpected topic %q", publisher.topics[0])
	}

	again, err := relay.RunOnce(context.Background())
	if err != nil || again != 0 {
		t.Fatalf("expected nothing left to relay, got %d err=%v", again, err)
	}
}

func TestInvariantAuditorChecksEscrowCustody(t *testing.T) {
	module, sandbox := newTestModule(t)
	registerMarket(t, module, fungible, "fa1.2")
	seedFungibleSeller(t, sandbox, 50, 50)
	mustSell(t, module, seller, fungible, 0, 10, 1)

	if err := module.Auditor.RunOnce(context.Background()); err != nil {
		t.Fatalf("audit after sale: %v", err)
	}

	// Moving custody behind the ledger's back is caught by the audit.
	session := sandbox.Begin(escrow)
	params := []byte(`{"from":"` + escrow + `","to":"` + stranger + `","value":10}`)
	if err := session.Invoke(context.Background(), fungible, "transfer", params); err != nil {
		t.Fatalf("drain escrow: %v", err)
	}
	if err := session.Commit(); err != nil {
		t.Fatalf("commit drain: %v", err)
	}
	if err := module.Auditor.RunOnce(context.Background()); !errors.Is(err, domainerrors.ErrRepositoryInvariantBroke) {
		t.Fatalf("expected custody violation, got %v", err)
	}
}
