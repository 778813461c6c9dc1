package store

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/fundops/internal/domain"
	"github.com/punchamoorthee/fundops/internal/txlog"
)

// Wallet is a persisted ledger seed. ProfileID is nil for contract wallets.
type Wallet struct {
	ID        string `json:"id"`
	ProfileID *int64 `json:"profile_id,omitempty"`
	Balance   int64  `json:"balance"`
}

// Tx is the set of record operations available inside and outside a transaction.
// Lock* variants take row locks when run inside RunInTx.
type Tx interface {
	GetRequest(ctx context.Context, id int64) (domain.Request, error)
	LockRequest(ctx context.Context, id int64) (domain.Request, error)
	LockRequestsByParent(ctx context.Context, parentID int64) ([]domain.Request, error)
	ListRequestsByParent(ctx context.Context, parentID int64) ([]domain.Request, error)
	ListRequestsFrom(ctx context.Context, profileID int64, typ domain.RequestType) ([]domain.Request, error)
	CreateRequest(ctx context.Context, r *domain.Request) error
	UpdateRequestStatus(ctx context.Context, id int64, status domain.RequestStatus) error

	GetContract(ctx context.Context, id int64) (*domain.Contract, error)
	LockContract(ctx context.Context, id int64) (*domain.Contract, error)
	GetContractByRequest(ctx context.Context, requestID int64) (*domain.Contract, error)
	CreateContract(ctx context.Context, c *domain.Contract) error
	UpdateContractStatus(ctx context.Context, id int64, status domain.ContractStatus) error
	CreateFunding(ctx context.Context, f *domain.Funding) error
	UpdateFunding(ctx context.Context, f *domain.Funding) error
	ListFundingsByProfile(ctx context.Context, profileID int64) ([]domain.Funding, error)

	WalletForProfile(ctx context.Context, profileID int64) (string, error)
	CreateWallet(ctx context.Context, w Wallet) error
	// RecordTransaction appends t and sets both of its wallets to the
	// post-movement balances it carries.
	RecordTransaction(ctx context.Context, t txlog.Transaction) error
}

// Store is the durable keyed-record store the core runs against.
// RunInTx commits only when fn returns nil; nothing fn wrote is visible otherwise.
type Store interface {
	Tx
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	ListWallets(ctx context.Context) ([]Wallet, error)
	ListTransactions(ctx context.Context) ([]txlog.Transaction, error)
}

func walletNotFound(id string) error {
	return fmt.Errorf("%w: wallet %q", domain.ErrEntityNotFound, id)
}
