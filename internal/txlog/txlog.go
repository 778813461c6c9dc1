package txlog

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeTransfer     Type = "TRANSFER"
	TypeFunding      Type = "FUNDING"
	TypePayout       Type = "PAYOUT"
	TypeRepayment    Type = "REPAYMENT"
	TypeDisbursement Type = "DISBURSEMENT"
)

// Transaction is one immutable ledger movement. Hash covers every field except
// ID; it is not linked to the previous entry.
type Transaction struct {
	ID               uuid.UUID `json:"id"`
	Type             Type      `json:"type"`
	SenderWalletID   string    `json:"sender_wallet_id"`
	SenderAmount     int64     `json:"sender_amount"`
	SenderBalance    int64     `json:"sender_balance"`
	ReceiverWalletID string    `json:"receiver_wallet_id"`
	ReceiverAmount   int64     `json:"receiver_amount"`
	ReceiverBalance  int64     `json:"receiver_balance"`
	CreatedAt        time.Time `json:"created_timestamp"`
	Hash             string    `json:"hash"`
}

// Digest is the SHA-256 hex of the transaction fields concatenated in fixed order.
func Digest(tx Transaction) string {
	var b strings.Builder
	b.WriteString(string(tx.Type))
	b.WriteString(tx.SenderWalletID)
	b.WriteString(strconv.FormatInt(tx.SenderAmount, 10))
	b.WriteString(strconv.FormatInt(tx.SenderBalance, 10))
	b.WriteString(tx.ReceiverWalletID)
	b.WriteString(strconv.FormatInt(tx.ReceiverAmount, 10))
	b.WriteString(strconv.FormatInt(tx.ReceiverBalance, 10))
	b.WriteString(tx.CreatedAt.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether tx still matches its stored hash.
func Verify(tx Transaction) bool {
	return tx.Hash == Digest(tx)
}

// Log is append-only; entries are never mutated or removed.
type Log struct {
	mu      sync.RWMutex
	entries []Transaction
	now     func() time.Time
}

func New() *Log {
	return &Log{now: time.Now}
}

// NewWithClock is used by tests that need deterministic timestamps.
func NewWithClock(now func() time.Time) *Log {
	return &Log{now: now}
}

// Restore rebuilds a log from persisted entries, oldest first.
func Restore(entries []Transaction) *Log {
	l := New()
	l.entries = append(l.entries, entries...)
	return l
}

// Record builds an entry and appends it in one step.
func (l *Log) Record(typ Type, senderWallet string, senderAmount, senderBalance int64, receiverWallet string, receiverAmount, receiverBalance int64) Transaction {
	tx := l.Build(typ, senderWallet, senderAmount, senderBalance, receiverWallet, receiverAmount, receiverBalance)
	l.Append(tx)
	return tx
}

// Build stamps and hashes an entry without appending it. CreatedAt is cut to
// microseconds so the hash survives a round trip through a timestamptz column.
func (l *Log) Build(typ Type, senderWallet string, senderAmount, senderBalance int64, receiverWallet string, receiverAmount, receiverBalance int64) Transaction {
	tx := Transaction{
		ID:               uuid.New(),
		Type:             typ,
		SenderWalletID:   senderWallet,
		SenderAmount:     senderAmount,
		SenderBalance:    senderBalance,
		ReceiverWalletID: receiverWallet,
		ReceiverAmount:   receiverAmount,
		ReceiverBalance:  receiverBalance,
		CreatedAt:        l.now().UTC().Truncate(time.Microsecond),
	}
	tx.Hash = Digest(tx)
	return tx
}

func (l *Log) Append(txs ...Transaction) {
	l.mu.Lock()
	l.entries = append(l.entries, txs...)
	l.mu.Unlock()
}

func (l *Log) Entries() []Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Transaction, len(l.entries))
	copy(out, l.entries)
	return out
}

// ForWallet returns entries where wallet is sender or receiver, oldest first.
func (l *Log) ForWallet(wallet string) []Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Transaction
	for _, tx := range l.entries {
		if tx.SenderWalletID == wallet || tx.ReceiverWalletID == wallet {
			out = append(out, tx)
		}
	}
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
