package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/punchamoorthee/fundops/internal/domain"
	"github.com/punchamoorthee/fundops/internal/ledger"
	"github.com/punchamoorthee/fundops/internal/txlog"
)

func TestRunInTxDiscardsWritesOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rfp := &domain.Request{FromProfileID: 1, Title: "rfp", Type: domain.TypeRFP, Status: domain.StatusOpen, Cost: 10}
	if err := s.CreateRequest(ctx, rfp); err != nil {
		t.Fatalf("create request failed: %v", err)
	}

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(tx Tx) error {
		if err := tx.UpdateRequestStatus(ctx, rfp.ID, domain.StatusClosed); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, err := s.GetRequest(ctx, rfp.ID)
	if err != nil {
		t.Fatalf("get request failed: %v", err)
	}
	if got.Status != domain.StatusOpen {
		t.Fatalf("rolled back write is visible: %s", got.Status)
	}
}

func TestCreateRequestRequiresExistingParent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	parent := int64(99)
	err := s.CreateRequest(ctx, &domain.Request{Type: domain.TypeProposal, Status: domain.StatusOpen, RequestID: &parent, Cost: 1})
	if !errors.Is(err, domain.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}

func TestContractFundingsAreRederived(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rff := &domain.Request{Type: domain.TypeRFF, Status: domain.StatusOpen, Cost: 100}
	if err := s.CreateRequest(ctx, rff); err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	c, err := domain.NewContract(rff.ID, "w", 100, 120, time.Now())
	if err != nil {
		t.Fatalf("new contract failed: %v", err)
	}
	if err := s.CreateContract(ctx, c); err != nil {
		t.Fatalf("create contract failed: %v", err)
	}
	dup, _ := domain.NewContract(rff.ID, "w2", 100, 120, time.Now())
	if err := s.CreateContract(ctx, dup); !errors.Is(err, domain.ErrContractAlreadyCreated) {
		t.Fatalf("expected ErrContractAlreadyCreated, got %v", err)
	}

	f, err := c.Fund(5, 30, time.Now())
	if err != nil {
		t.Fatalf("fund failed: %v", err)
	}
	if err := s.CreateFunding(ctx, f); err != nil {
		t.Fatalf("create funding failed: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	c.Fundings[0].FundingAmount = 1000

	loaded, err := s.GetContract(ctx, c.ID)
	if err != nil {
		t.Fatalf("get contract failed: %v", err)
	}
	if len(loaded.Fundings) != 1 || loaded.RaisedAmount() != 30 {
		t.Fatalf("unexpected fundings: %+v", loaded.Fundings)
	}
	byReq, err := s.GetContractByRequest(ctx, rff.ID)
	if err != nil || byReq.ID != c.ID {
		t.Fatalf("get by request failed: %v", err)
	}
	mine, _ := s.ListFundingsByProfile(ctx, 5)
	if len(mine) != 1 || mine[0].ID != f.ID {
		t.Fatalf("unexpected fundings for profile: %+v", mine)
	}
}

func TestWalletForProfile(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	profile := int64(3)
	if err := s.CreateWallet(ctx, Wallet{ID: "w-3", ProfileID: &profile, Balance: 50}); err != nil {
		t.Fatalf("create wallet failed: %v", err)
	}
	if err := s.CreateWallet(ctx, Wallet{ID: "contract-1"}); err != nil {
		t.Fatalf("create wallet failed: %v", err)
	}
	id, err := s.WalletForProfile(ctx, 3)
	if err != nil || id != "w-3" {
		t.Fatalf("expected w-3, got %q (%v)", id, err)
	}
	if _, err := s.WalletForProfile(ctx, 4); !errors.Is(err, domain.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
	wallets, _ := s.ListWallets(ctx)
	if len(wallets) != 2 || wallets[0].ID != "contract-1" {
		t.Fatalf("unexpected wallets: %+v", wallets)
	}
}

func TestCreateWalletRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	profile := int64(7)
	if err := s.CreateWallet(ctx, Wallet{ID: "w-7", ProfileID: &profile}); err != nil {
		t.Fatalf("create wallet failed: %v", err)
	}
	if err := s.CreateWallet(ctx, Wallet{ID: "w-7"}); !errors.Is(err, ledger.ErrWalletExists) {
		t.Fatalf("duplicate id: expected ErrWalletExists, got %v", err)
	}
	if err := s.CreateWallet(ctx, Wallet{ID: "other", ProfileID: &profile}); !errors.Is(err, ledger.ErrWalletExists) {
		t.Fatalf("second wallet for profile: expected ErrWalletExists, got %v", err)
	}
}

func TestRunInTxUndoesEveryWriteKind(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	profile := int64(5)
	if err := s.CreateWallet(ctx, Wallet{ID: "w-5", ProfileID: &profile, Balance: 100}); err != nil {
		t.Fatalf("create wallet failed: %v", err)
	}
	rff := &domain.Request{Type: domain.TypeRFF, Status: domain.StatusOpen, Cost: 100}
	if err := s.CreateRequest(ctx, rff); err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	c, _ := domain.NewContract(rff.ID, "cw", 100, 120, time.Now())
	if err := s.CreateContract(ctx, c); err != nil {
		t.Fatalf("create contract failed: %v", err)
	}
	kept, _ := c.Fund(profile, 10, time.Now())
	if err := s.CreateFunding(ctx, kept); err != nil {
		t.Fatalf("create funding failed: %v", err)
	}

	boom := errors.New("boom")
	var childID, fundingID int64
	err := s.RunInTx(ctx, func(tx Tx) error {
		child := &domain.Request{Type: domain.TypeProposal, Status: domain.StatusOpen, RequestID: &rff.ID, Cost: 5}
		if err := tx.CreateRequest(ctx, child); err != nil {
			return err
		}
		childID = child.ID
		if err := tx.UpdateRequestStatus(ctx, rff.ID, domain.StatusRepaid); err != nil {
			return err
		}
		if err := tx.CreateWallet(ctx, Wallet{ID: "cw"}); err != nil {
			return err
		}
		f, err := c.Fund(profile, 20, time.Now())
		if err != nil {
			return err
		}
		if err := tx.CreateFunding(ctx, f); err != nil {
			return err
		}
		fundingID = f.ID
		changed := *kept
		changed.Disburse()
		if err := tx.UpdateFunding(ctx, &changed); err != nil {
			return err
		}
		if err := tx.UpdateContractStatus(ctx, c.ID, domain.ContractFundsDisbursed); err != nil {
			return err
		}
		if err := tx.CreateContract(ctx, &domain.Contract{RequestID: childID, TargetAmount: 1, RepaymentAmount: 2}); err != nil {
			return err
		}
		entry := txlog.New().Build(txlog.TypeFunding, "w-5", -30, 70, "cw", 30, 30)
		if err := tx.RecordTransaction(ctx, entry); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := s.GetRequest(ctx, childID); !errors.Is(err, domain.ErrEntityNotFound) {
		t.Fatalf("rolled back request still present: %v", err)
	}
	if got, _ := s.GetRequest(ctx, rff.ID); got.Status != domain.StatusOpen {
		t.Fatalf("rff status not restored: %s", got.Status)
	}
	loaded, _ := s.GetContract(ctx, c.ID)
	if loaded.Status != domain.ContractNotFunded {
		t.Fatalf("contract status not restored: %s", loaded.Status)
	}
	if len(loaded.Fundings) != 1 || loaded.Fundings[0].Status != domain.FundingInContract {
		t.Fatalf("fundings not restored: %+v", loaded.Fundings)
	}
	if _, err := s.GetContractByRequest(ctx, childID); !errors.Is(err, domain.ErrEntityNotFound) {
		t.Fatalf("rolled back contract still present: %v", err)
	}
	wallets, _ := s.ListWallets(ctx)
	if len(wallets) != 1 || wallets[0].Balance != 100 {
		t.Fatalf("wallets not restored: %+v", wallets)
	}
	if txs, _ := s.ListTransactions(ctx); len(txs) != 0 {
		t.Fatalf("rolled back transaction still listed: %+v", txs)
	}

	// Counters are restored, so the next ids reuse the rolled back ones.
	next := &domain.Request{Type: domain.TypeRFP, Status: domain.StatusOpen, Cost: 1}
	if err := s.CreateRequest(ctx, next); err != nil || next.ID != childID {
		t.Fatalf("expected request id %d, got %d (%v)", childID, next.ID, err)
	}
	f, _ := loaded.Fund(profile, 1, time.Now())
	if err := s.CreateFunding(ctx, f); err != nil || f.ID != fundingID {
		t.Fatalf("expected funding id %d, got %d (%v)", fundingID, f.ID, err)
	}
}

func TestRecordTransactionSetsBalances(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []string{"a", "b"} {
		if err := s.CreateWallet(ctx, Wallet{ID: id, Balance: 50}); err != nil {
			t.Fatalf("create wallet failed: %v", err)
		}
	}
	entry := txlog.New().Build(txlog.TypeTransfer, "a", -80, -30, "b", 80, 130)
	if err := s.RecordTransaction(ctx, entry); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	wallets, _ := s.ListWallets(ctx)
	if wallets[0].Balance != -30 || wallets[1].Balance != 130 {
		t.Fatalf("unexpected balances: %+v", wallets)
	}
	missing := txlog.New().Build(txlog.TypeTransfer, "a", -1, -31, "nope", 1, 1)
	if err := s.RecordTransaction(ctx, missing); !errors.Is(err, domain.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
	txs, _ := s.ListTransactions(ctx)
	if len(txs) != 1 || txs[0].ID != entry.ID || !txlog.Verify(txs[0]) {
		t.Fatalf("unexpected stored transactions: %+v", txs)
	}
}
