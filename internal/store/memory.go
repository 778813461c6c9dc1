package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/punchamoorthee/fundops/internal/domain"
	"github.com/punchamoorthee/fundops/internal/ledger"
	"github.com/punchamoorthee/fundops/internal/txlog"
)

// MemoryStore keeps every record in maps. Transactions run one at a time
// against the live state; each write pushes its inverse onto an undo log that
// is replayed backwards when fn fails.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	st := s.state
	st.undo = st.undo[:0]
	defer func() { st.undo = st.undo[:0] }()
	if err := fn(st); err != nil {
		st.rollback()
		return err
	}
	return nil
}

func (s *MemoryStore) read(fn func(st *memState) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

func (s *MemoryStore) write(ctx context.Context, fn func(tx Tx) error) error {
	return s.RunInTx(ctx, fn)
}

func (s *MemoryStore) GetRequest(ctx context.Context, id int64) (out domain.Request, err error) {
	err = s.read(func(st *memState) error {
		out, err = st.GetRequest(ctx, id)
		return err
	})
	return out, err
}

func (s *MemoryStore) LockRequest(ctx context.Context, id int64) (domain.Request, error) {
	return s.GetRequest(ctx, id)
}

func (s *MemoryStore) LockRequestsByParent(ctx context.Context, parentID int64) ([]domain.Request, error) {
	return s.ListRequestsByParent(ctx, parentID)
}

func (s *MemoryStore) ListRequestsByParent(ctx context.Context, parentID int64) (out []domain.Request, err error) {
	err = s.read(func(st *memState) error {
		out, err = st.ListRequestsByParent(ctx, parentID)
		return err
	})
	return out, err
}

func (s *MemoryStore) ListRequestsFrom(ctx context.Context, profileID int64, typ domain.RequestType) (out []domain.Request, err error) {
	err = s.read(func(st *memState) error {
		out, err = st.ListRequestsFrom(ctx, profileID, typ)
		return err
	})
	return out, err
}

func (s *MemoryStore) CreateRequest(ctx context.Context, r *domain.Request) error {
	return s.write(ctx, func(tx Tx) error { return tx.CreateRequest(ctx, r) })
}

func (s *MemoryStore) UpdateRequestStatus(ctx context.Context, id int64, status domain.RequestStatus) error {
	return s.write(ctx, func(tx Tx) error { return tx.UpdateRequestStatus(ctx, id, status) })
}

func (s *MemoryStore) GetContract(ctx context.Context, id int64) (out *domain.Contract, err error) {
	err = s.read(func(st *memState) error {
		out, err = st.GetContract(ctx, id)
		return err
	})
	return out, err
}

func (s *MemoryStore) LockContract(ctx context.Context, id int64) (*domain.Contract, error) {
	return s.GetContract(ctx, id)
}

func (s *MemoryStore) GetContractByRequest(ctx context.Context, requestID int64) (out *domain.Contract, err error) {
	err = s.read(func(st *memState) error {
		out, err = st.GetContractByRequest(ctx, requestID)
		return err
	})
	return out, err
}

func (s *MemoryStore) CreateContract(ctx context.Context, c *domain.Contract) error {
	return s.write(ctx, func(tx Tx) error { return tx.CreateContract(ctx, c) })
}

func (s *MemoryStore) UpdateContractStatus(ctx context.Context, id int64, status domain.ContractStatus) error {
	return s.write(ctx, func(tx Tx) error { return tx.UpdateContractStatus(ctx, id, status) })
}

func (s *MemoryStore) CreateFunding(ctx context.Context, f *domain.Funding) error {
	return s.write(ctx, func(tx Tx) error { return tx.CreateFunding(ctx, f) })
}

func (s *MemoryStore) UpdateFunding(ctx context.Context, f *domain.Funding) error {
	return s.write(ctx, func(tx Tx) error { return tx.UpdateFunding(ctx, f) })
}

func (s *MemoryStore) ListFundingsByProfile(ctx context.Context, profileID int64) (out []domain.Funding, err error) {
	err = s.read(func(st *memState) error {
		out, err = st.ListFundingsByProfile(ctx, profileID)
		return err
	})
	return out, err
}

func (s *MemoryStore) WalletForProfile(ctx context.Context, profileID int64) (out string, err error) {
	err = s.read(func(st *memState) error {
		out, err = st.WalletForProfile(ctx, profileID)
		return err
	})
	return out, err
}

func (s *MemoryStore) CreateWallet(ctx context.Context, w Wallet) error {
	return s.write(ctx, func(tx Tx) error { return tx.CreateWallet(ctx, w) })
}

func (s *MemoryStore) RecordTransaction(ctx context.Context, t txlog.Transaction) error {
	return s.write(ctx, func(tx Tx) error { return tx.RecordTransaction(ctx, t) })
}

func (s *MemoryStore) ListTransactions(_ context.Context) ([]txlog.Transaction, error) {
	var out []txlog.Transaction
	err := s.read(func(st *memState) error {
		out = make([]txlog.Transaction, len(st.transactions))
		copy(out, st.transactions)
		return nil
	})
	return out, err
}

func (s *MemoryStore) ListWallets(ctx context.Context) ([]Wallet, error) {
	var out []Wallet
	err := s.read(func(st *memState) error {
		for _, w := range st.wallets {
			out = append(out, w)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// memState holds the live records and implements Tx.
type memState struct {
	requests     map[int64]domain.Request
	contracts    map[int64]domain.Contract
	fundings     map[int64]domain.Funding
	wallets      map[string]Wallet
	transactions []txlog.Transaction

	lastRequestID  int64
	lastContractID int64
	lastFundingID  int64

	undo []func()
}

func newMemState() *memState {
	return &memState{
		requests:  make(map[int64]domain.Request),
		contracts: make(map[int64]domain.Contract),
		fundings:  make(map[int64]domain.Funding),
		wallets:   make(map[string]Wallet),
	}
}

func (st *memState) onRollback(fn func()) {
	st.undo = append(st.undo, fn)
}

func (st *memState) rollback() {
	for i := len(st.undo) - 1; i >= 0; i-- {
		st.undo[i]()
	}
}

func (st *memState) GetRequest(_ context.Context, id int64) (domain.Request, error) {
	r, ok := st.requests[id]
	if !ok {
		return domain.Request{}, domain.NotFound("request", id)
	}
	return r.Clone(), nil
}

func (st *memState) LockRequest(ctx context.Context, id int64) (domain.Request, error) {
	return st.GetRequest(ctx, id)
}

func (st *memState) LockRequestsByParent(ctx context.Context, parentID int64) ([]domain.Request, error) {
	return st.ListRequestsByParent(ctx, parentID)
}

func (st *memState) ListRequestsByParent(_ context.Context, parentID int64) ([]domain.Request, error) {
	return st.filterRequests(func(r domain.Request) bool {
		return r.RequestID != nil && *r.RequestID == parentID
	}), nil
}

func (st *memState) ListRequestsFrom(_ context.Context, profileID int64, typ domain.RequestType) ([]domain.Request, error) {
	return st.filterRequests(func(r domain.Request) bool {
		return r.FromProfileID == profileID && r.Type == typ
	}), nil
}

func (st *memState) filterRequests(keep func(domain.Request) bool) []domain.Request {
	var out []domain.Request
	for _, r := range st.requests {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (st *memState) CreateRequest(_ context.Context, r *domain.Request) error {
	if r.RequestID != nil {
		if _, ok := st.requests[*r.RequestID]; !ok {
			return domain.NotFound("request", *r.RequestID)
		}
	}
	prev := st.lastRequestID
	st.lastRequestID++
	r.ID = st.lastRequestID
	st.requests[r.ID] = r.Clone()
	id := r.ID
	st.onRollback(func() {
		delete(st.requests, id)
		st.lastRequestID = prev
	})
	return nil
}

func (st *memState) UpdateRequestStatus(_ context.Context, id int64, status domain.RequestStatus) error {
	r, ok := st.requests[id]
	if !ok {
		return domain.NotFound("request", id)
	}
	old := r
	r.Status = status
	st.requests[id] = r
	st.onRollback(func() { st.requests[id] = old })
	return nil
}

func (st *memState) GetContract(_ context.Context, id int64) (*domain.Contract, error) {
	c, ok := st.contracts[id]
	if !ok {
		return nil, domain.NotFound("contract", id)
	}
	return st.assemble(c), nil
}

func (st *memState) LockContract(ctx context.Context, id int64) (*domain.Contract, error) {
	return st.GetContract(ctx, id)
}

func (st *memState) GetContractByRequest(_ context.Context, requestID int64) (*domain.Contract, error) {
	for _, c := range st.contracts {
		if c.RequestID == requestID {
			return st.assemble(c), nil
		}
	}
	return nil, domain.NotFound("contract", requestID)
}

// assemble re-derives the fundings of c from the funding table.
func (st *memState) assemble(c domain.Contract) *domain.Contract {
	out := c
	out.Fundings = nil
	for _, f := range st.fundings {
		if f.ContractID == c.ID {
			cp := f
			out.Fundings = append(out.Fundings, &cp)
		}
	}
	sort.Slice(out.Fundings, func(i, j int) bool { return out.Fundings[i].ID < out.Fundings[j].ID })
	return &out
}

func (st *memState) CreateContract(_ context.Context, c *domain.Contract) error {
	if _, ok := st.requests[c.RequestID]; !ok {
		return domain.NotFound("request", c.RequestID)
	}
	for _, existing := range st.contracts {
		if existing.RequestID == c.RequestID {
			return domain.NewError(domain.ErrContractAlreadyCreated, "request", c.RequestID, existing.ID)
		}
	}
	prev := st.lastContractID
	st.lastContractID++
	c.ID = st.lastContractID
	row := *c
	row.Fundings = nil
	st.contracts[c.ID] = row
	st.onRollback(func() {
		delete(st.contracts, row.ID)
		st.lastContractID = prev
	})
	return nil
}

func (st *memState) UpdateContractStatus(_ context.Context, id int64, status domain.ContractStatus) error {
	c, ok := st.contracts[id]
	if !ok {
		return domain.NotFound("contract", id)
	}
	old := c
	c.Status = status
	st.contracts[id] = c
	st.onRollback(func() { st.contracts[id] = old })
	return nil
}

func (st *memState) CreateFunding(_ context.Context, f *domain.Funding) error {
	if _, ok := st.contracts[f.ContractID]; !ok {
		return domain.NotFound("contract", f.ContractID)
	}
	prev := st.lastFundingID
	st.lastFundingID++
	f.ID = st.lastFundingID
	st.fundings[f.ID] = *f
	id := f.ID
	st.onRollback(func() {
		delete(st.fundings, id)
		st.lastFundingID = prev
	})
	return nil
}

func (st *memState) UpdateFunding(_ context.Context, f *domain.Funding) error {
	old, ok := st.fundings[f.ID]
	if !ok {
		return domain.NotFound("funding", f.ID)
	}
	st.fundings[f.ID] = *f
	st.onRollback(func() { st.fundings[old.ID] = old })
	return nil
}

func (st *memState) ListFundingsByProfile(_ context.Context, profileID int64) ([]domain.Funding, error) {
	var out []domain.Funding
	for _, f := range st.fundings {
		if f.ProfileID == profileID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (st *memState) WalletForProfile(_ context.Context, profileID int64) (string, error) {
	for _, w := range st.wallets {
		if w.ProfileID != nil && *w.ProfileID == profileID {
			return w.ID, nil
		}
	}
	return "", domain.NotFound("profile wallet", profileID)
}

func (st *memState) CreateWallet(ctx context.Context, w Wallet) error {
	if _, ok := st.wallets[w.ID]; ok {
		return fmt.Errorf("%w: %q", ledger.ErrWalletExists, w.ID)
	}
	if w.ProfileID != nil {
		if existing, err := st.WalletForProfile(ctx, *w.ProfileID); err == nil {
			return fmt.Errorf("%w: profile %d already owns %q", ledger.ErrWalletExists, *w.ProfileID, existing)
		}
		id := *w.ProfileID
		w.ProfileID = &id
	}
	st.wallets[w.ID] = w
	st.onRollback(func() { delete(st.wallets, w.ID) })
	return nil
}

// RecordTransaction stores t and sets both wallets to the balances it carries.
func (st *memState) RecordTransaction(_ context.Context, t txlog.Transaction) error {
	sender, ok := st.wallets[t.SenderWalletID]
	if !ok {
		return walletNotFound(t.SenderWalletID)
	}
	receiver, ok := st.wallets[t.ReceiverWalletID]
	if !ok {
		return walletNotFound(t.ReceiverWalletID)
	}
	n := len(st.transactions)
	st.onRollback(func() {
		st.wallets[sender.ID] = sender
		st.wallets[receiver.ID] = receiver
		st.transactions = st.transactions[:n]
	})
	sender.Balance, receiver.Balance = t.SenderBalance, t.ReceiverBalance
	st.wallets[t.SenderWalletID] = sender
	st.wallets[t.ReceiverWalletID] = receiver
	st.transactions = append(st.transactions, t)
	return nil
}
