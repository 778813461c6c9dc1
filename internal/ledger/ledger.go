package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidBalance = errors.New("invalid balance")
	ErrWalletExists   = errors.New("wallet already exists")
	ErrOverdraft      = fmt.Errorf("%w: overdraft", ErrInvalidBalance)
)

// Leg is one debit/credit pair of a settlement.
type Leg struct {
	From   string
	To     string
	Amount int64
}

// Movement is an applied leg with both post-transfer balances.
type Movement struct {
	From        string
	To          string
	Amount      int64
	FromBalance int64
	ToBalance   int64
}

// SettleOptions tune a multi-leg settlement.
// RejectOverdraft turns a debit below zero into ErrOverdraft.
// Record is invoked for every applied movement while the wallets are still locked.
type SettleOptions struct {
	RejectOverdraft bool
	Record          func(Movement)
}

type wallet struct {
	mu      sync.Mutex
	balance int64
}

// Ledger is a keyed balance table. Transfers lock the wallets they touch in
// ascending id order; Entries and Open take the table lock exclusively.
type Ledger struct {
	mu      sync.RWMutex
	wallets map[string]*wallet
}

func New(seed map[string]int64) *Ledger {
	l := &Ledger{wallets: make(map[string]*wallet, len(seed))}
	for id, balance := range seed {
		l.wallets[id] = &wallet{balance: balance}
	}
	return l
}

// Open registers a wallet with an opening balance.
func (l *Ledger) Open(id string, balance int64) error {
	if balance < 0 {
		return fmt.Errorf("%w: opening balance %d for wallet %q", ErrInvalidAmount, balance, id)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.wallets[id]; ok {
		return fmt.Errorf("%w: %q", ErrWalletExists, id)
	}
	l.wallets[id] = &wallet{balance: balance}
	return nil
}

// Transfer moves amount from one wallet to another. It does not reject an
// overdraft; callers that need that guarantee use Settle with RejectOverdraft.
func (l *Ledger) Transfer(from, to string, amount int64) (Movement, error) {
	moves, err := l.Settle([]Leg{{From: from, To: to, Amount: amount}}, SettleOptions{})
	if err != nil {
		return Movement{}, err
	}
	return moves[0], nil
}

// Settle applies every leg or none of them.
func (l *Ledger) Settle(legs []Leg, opts SettleOptions) ([]Movement, error) {
	p, err := l.Prepare(legs, opts.RejectOverdraft)
	if err != nil {
		return nil, err
	}
	if opts.Record != nil {
		for _, m := range p.Movements() {
			opts.Record(m)
		}
	}
	return p.Commit(), nil
}

// Pending is a validated settlement whose wallets stay locked until Commit or
// Abort. The caller must end it with exactly one of them; later calls are no-ops.
type Pending struct {
	l      *Ledger
	locked []*wallet
	next   map[string]int64
	moves  []Movement
	done   bool
}

// Prepare locks every wallet of legs and computes the movements without
// applying them. Nothing else can move those wallets until the Pending ends.
func (l *Ledger) Prepare(legs []Leg, rejectOverdraft bool) (*Pending, error) {
	for _, leg := range legs {
		if leg.Amount <= 0 {
			return nil, fmt.Errorf("%w: %d from %q to %q", ErrInvalidAmount, leg.Amount, leg.From, leg.To)
		}
	}

	l.mu.RLock()
	locked, err := l.lockAll(legs)
	if err != nil {
		l.mu.RUnlock()
		return nil, err
	}
	p := &Pending{l: l, locked: locked, next: make(map[string]int64, len(locked))}

	for _, leg := range legs {
		if _, ok := p.next[leg.From]; !ok {
			p.next[leg.From] = l.wallets[leg.From].balance
		}
		if _, ok := p.next[leg.To]; !ok {
			p.next[leg.To] = l.wallets[leg.To].balance
		}
		p.next[leg.From] -= leg.Amount
		p.next[leg.To] += leg.Amount
		if rejectOverdraft && p.next[leg.From] < 0 {
			p.Abort()
			return nil, fmt.Errorf("%w: wallet %q cannot cover %d", ErrOverdraft, leg.From, leg.Amount)
		}
		p.moves = append(p.moves, Movement{
			From:        leg.From,
			To:          leg.To,
			Amount:      leg.Amount,
			FromBalance: p.next[leg.From],
			ToBalance:   p.next[leg.To],
		})
	}
	return p, nil
}

// Movements lists the legs in order with the balances each one leaves behind.
func (p *Pending) Movements() []Movement {
	out := make([]Movement, len(p.moves))
	copy(out, p.moves)
	return out
}

// Commit applies the movements and releases the wallets.
func (p *Pending) Commit() []Movement {
	if p.done {
		return nil
	}
	for id, balance := range p.next {
		p.l.wallets[id].balance = balance
	}
	p.release()
	return p.moves
}

// Abort releases the wallets without applying anything.
func (p *Pending) Abort() {
	if p.done {
		return
	}
	p.release()
}

func (p *Pending) release() {
	p.done = true
	for _, w := range p.locked {
		w.mu.Unlock()
	}
	p.l.mu.RUnlock()
}

// lockAll locks each distinct wallet of legs in ascending id order.
// Must be called with l.mu held for reading.
func (l *Ledger) lockAll(legs []Leg) ([]*wallet, error) {
	ids := make([]string, 0, len(legs)*2)
	seen := make(map[string]struct{}, len(legs)*2)
	for _, leg := range legs {
		for _, id := range [2]string{leg.From, leg.To} {
			if _, ok := seen[id]; ok {
				continue
			}
			if _, ok := l.wallets[id]; !ok {
				return nil, fmt.Errorf("%w: unknown wallet %q", ErrInvalidBalance, id)
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	locked := make([]*wallet, 0, len(ids))
	for _, id := range ids {
		w := l.wallets[id]
		w.mu.Lock()
		locked = append(locked, w)
	}
	return locked, nil
}

// Balance returns the balance of id and false when the wallet is unknown.
func (l *Ledger) Balance(id string) (int64, bool) {
	l.mu.RLock()
	w, ok := l.wallets[id]
	l.mu.RUnlock()
	if !ok {
		return 0, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance, true
}

// Entries returns a consistent snapshot of every balance.
func (l *Ledger) Entries() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int64, len(l.wallets))
	for id, w := range l.wallets {
		out[id] = w.balance
	}
	return out
}
