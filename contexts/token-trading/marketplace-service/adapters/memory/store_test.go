package memory

import (
	"context"
	"errors"
	"testing"

	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	"tiof/contexts/token-trading/marketplace-service/ports"
)

func TestTransactDiscardsWritesOnError(t *testing.T) {
	store := NewStore("tz1-admin", nil)
	abort := errors.New("abort")

	err := store.Transact(context.Background(), func(tx ports.LedgerTx) error {
		market, _ := entities.NewMarket("KT1-items", entities.TokenKindFA2)
		if err := tx.PutMarket(context.Background(), market); err != nil {
			return err
		}
		if _, err := tx.NextSaleID(context.Background()); err != nil {
			return err
		}
		if err := tx.SetAdministrator(context.Background(), "tz1-other"); err != nil {
			return err
		}
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("expected abort, got %v", err)
	}

	snapshot, _ := store.Snapshot(context.Background())
	if snapshot.Administrator != "tz1-admin" || snapshot.SaleCounter != 0 || len(snapshot.Markets) != 0 {
		t.Fatalf("rolled back state leaked: %+v", snapshot)
	}
}

func TestTransactReadsItsOwnWrites(t *testing.T) {
	store := NewStore("tz1-admin", nil)
	err := store.Transact(context.Background(), func(tx ports.LedgerTx) error {
		market, _ := entities.NewMarket("KT1-items", entities.TokenKindFA2)
		_ = tx.PutMarket(context.Background(), market.AddSale(1))
		_ = tx.PutSale(context.Background(), entities.Sale{SaleID: 1, Contract: "KT1-items", Amount: 1, Seller: "tz1-alice"})
		if _, found, _ := tx.FindSale(context.Background(), 1); !found {
			t.Fatalf("staged sale not visible inside transaction")
		}
		_ = tx.DeleteSale(context.Background(), 1)
		if _, found, _ := tx.FindSale(context.Background(), 1); found {
			t.Fatalf("deleted sale still visible inside transaction")
		}
		_ = tx.PutMarket(context.Background(), market)
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	market, err := store.GetMarket(context.Background(), "KT1-items")
	if err != nil {
		t.Fatalf("get market: %v", err)
	}
	if len(market.SaleIDs) != 0 {
		t.Fatalf("expected empty sale set, got %v", market.SaleIDs)
	}
}

func TestListSalesPagesWithCursor(t *testing.T) {
	store := NewStore("tz1-admin", nil)
	_ = store.Transact(context.Background(), func(tx ports.LedgerTx) error {
		market, _ := entities.NewMarket("KT1-items", entities.TokenKindFA2)
		for i := 0; i < 5; i++ {
			id, _ := tx.NextSaleID(context.Background())
			seller := entities.Address("tz1-alice")
			if id%2 == 0 {
				seller = "tz1-bob"
			}
			_ = tx.PutSale(context.Background(), entities.Sale{SaleID: id, Contract: market.Contract, Amount: 1, Seller: seller})
			market = market.AddSale(id)
		}
		return tx.PutMarket(context.Background(), market)
	})

	first, cursor, err := store.ListSales(context.Background(), ports.SaleListFilter{Limit: 2})
	if err != nil || len(first) != 2 || cursor == "" || first[0].SaleID != 1 {
		t.Fatalf("unexpected first page: %v %q %v", first, cursor, err)
	}
	second, _, _ := store.ListSales(context.Background(), ports.SaleListFilter{Limit: 2, Cursor: cursor})
	if len(second) != 2 || second[0].SaleID != 3 {
		t.Fatalf("unexpected second page: %v", second)
	}
	bobs, next, _ := store.ListSales(context.Background(), ports.SaleListFilter{Seller: "tz1-bob"})
	if len(bobs) != 2 || next != "" {
		t.Fatalf("expected two sales for bob, got %v", bobs)
	}
}

func TestOutboxOnlyHoldsCommittedEvents(t *testing.T) {
	store := NewStore("tz1-admin", nil)
	event := ports.MarketplaceEvent{EventID: "e-1", EventType: "marketplace.market_registered", PartitionKey: "KT1"}
	_ = store.Transact(context.Background(), func(tx ports.LedgerTx) error {
		_ = tx.AppendOutbox(context.Background(), event)
		return errors.New("fail")
	})
	if got := len(store.OutboxEvents()); got != 0 {
		t.Fatalf("expected empty outbox, got %d", got)
	}
	_ = store.Transact(context.Background(), func(tx ports.LedgerTx) error {
		return tx.AppendOutbox(context.Background(), event)
	})
	pending, _ := store.ListPendingOutbox(context.Background(), 10)
	if len(pending) != 1 {
		t.Fatalf("expected one pending message, got %d", len(pending))
	}
	if err := store.MarkOutboxSent(context.Background(), "e-1", store.Now()); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	pending, _ = store.ListPendingOutbox(context.Background(), 10)
	if len(pending) != 0 {
		t.Fatalf("expected no pending messages, got %d", len(pending))
	}
}
