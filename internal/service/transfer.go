package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/punchamoorthee/fundops/internal/ledger"
	"github.com/punchamoorthee/fundops/internal/store"
	"github.com/punchamoorthee/fundops/internal/txlog"
)

// TransferService settles ledger movements. Each settlement is written to the
// store as one log entry per leg inside the caller's transaction; the ledger and
// the in-memory log only change once that transaction commits.
type TransferService struct {
	ledger *ledger.Ledger
	log    *txlog.Log
	store  store.Store
	logger *zap.Logger
}

func NewTransferService(l *ledger.Ledger, log *txlog.Log, s store.Store, logger *zap.Logger) *TransferService {
	return &TransferService{ledger: l, log: log, store: s, logger: logger}
}

// LoadLedger seeds a ledger from every wallet persisted in s.
func LoadLedger(ctx context.Context, s store.Store) (*ledger.Ledger, error) {
	wallets, err := s.ListWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("load wallets: %w", err)
	}
	seed := make(map[string]int64, len(wallets))
	for _, w := range wallets {
		seed[w.ID] = w.Balance
	}
	return ledger.New(seed), nil
}

// LoadLog restores the transaction log persisted in s.
func LoadLog(ctx context.Context, s store.Store) (*txlog.Log, error) {
	entries, err := s.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	return txlog.Restore(entries), nil
}

var errSettlementPending = errors.New("a settlement is already pending in this transaction")

// settler carries wallet openings and at most one settlement through a store
// transaction.
type settler struct {
	ctx     context.Context
	tx      store.Tx
	svc     *TransferService
	typ     txlog.Type
	pending *ledger.Pending
	entries []txlog.Transaction
	opened  []store.Wallet
}

// settle locks the wallets of legs and persists the log entries through tx.
// Nothing is applied to the ledger until the surrounding transaction commits.
func (st *settler) settle(typ txlog.Type, legs []ledger.Leg, rejectOverdraft bool) ([]txlog.Transaction, error) {
	if st.typ != "" {
		return nil, errSettlementPending
	}
	st.typ = typ
	p, err := st.svc.ledger.Prepare(legs, rejectOverdraft)
	if err != nil {
		return nil, err
	}
	st.pending = p
	for _, m := range p.Movements() {
		entry := st.svc.log.Build(typ, m.From, -m.Amount, m.FromBalance, m.To, m.Amount, m.ToBalance)
		if err := st.tx.RecordTransaction(st.ctx, entry); err != nil {
			return nil, err
		}
		st.entries = append(st.entries, entry)
	}
	return st.entries, nil
}

// openWallet persists w; the ledger learns about it after commit.
func (st *settler) openWallet(w store.Wallet) error {
	if w.Balance < 0 {
		return fmt.Errorf("%w: opening balance %d for wallet %q", ledger.ErrInvalidAmount, w.Balance, w.ID)
	}
	if err := st.tx.CreateWallet(st.ctx, w); err != nil {
		return err
	}
	st.opened = append(st.opened, w)
	return nil
}

// finish applies or discards what the transaction prepared.
func (st *settler) finish(err error) {
	if st.pending != nil {
		if err != nil {
			st.pending.Abort()
		} else {
			st.svc.log.Append(st.entries...)
			st.pending.Commit()
		}
	}
	if st.typ != "" {
		transfersTotal.WithLabelValues(string(st.typ), result(err)).Inc()
	}
	if err != nil {
		return
	}
	for _, w := range st.opened {
		if err := st.svc.ledger.Open(w.ID, w.Balance); err != nil {
			st.svc.logger.Error("ledger out of step with store", zap.String("wallet_id", w.ID), zap.Error(err))
		}
	}
}

// runInTx runs fn in a store transaction and settles the ledger after commit.
func (s *TransferService) runInTx(ctx context.Context, fn func(tx store.Tx, st *settler) error) error {
	st := &settler{ctx: ctx, svc: s}
	defer func() {
		if r := recover(); r != nil {
			st.finish(fmt.Errorf("panic in transaction: %v", r))
			panic(r)
		}
	}()
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		st.tx = tx
		return fn(tx, st)
	})
	st.finish(err)
	return err
}

// Transfer is the plain two-party movement; it does not guard against overdraft.
func (s *TransferService) Transfer(ctx context.Context, from, to string, amount int64) (txlog.Transaction, error) {
	var txs []txlog.Transaction
	err := s.runInTx(ctx, func(_ store.Tx, st *settler) (err error) {
		txs, err = st.settle(txlog.TypeTransfer, []ledger.Leg{{From: from, To: to, Amount: amount}}, false)
		return err
	})
	if err != nil {
		logFailure(s.logger, "transfer rejected", err,
			zap.String("from", from), zap.String("to", to), zap.Int64("amount", amount))
		return txlog.Transaction{}, err
	}
	s.logger.Info("transfer settled",
		zap.String("from", from), zap.String("to", to), zap.Int64("amount", amount),
		zap.String("transaction_id", txs[0].ID.String()))
	return txs[0], nil
}

// CreateWallet opens a standalone wallet. An empty id gets a fresh uuid.
func (s *TransferService) CreateWallet(ctx context.Context, w store.Wallet) (store.Wallet, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	err := s.runInTx(ctx, func(_ store.Tx, st *settler) error {
		return st.openWallet(w)
	})
	if err != nil {
		return store.Wallet{}, err
	}
	s.logger.Info("wallet opened", zap.String("wallet_id", w.ID), zap.Int64("balance", w.Balance))
	return w, nil
}

// Balance returns false for an unknown wallet.
func (s *TransferService) Balance(wallet string) (int64, bool) {
	return s.ledger.Balance(wallet)
}

func (s *TransferService) Entries() map[string]int64 {
	return s.ledger.Entries()
}

func (s *TransferService) Transactions() []txlog.Transaction {
	return s.log.Entries()
}

func (s *TransferService) TransactionsFor(wallet string) []txlog.Transaction {
	return s.log.ForWallet(wallet)
}
