package store

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/punchamoorthee/fundops/internal/domain"
	"github.com/punchamoorthee/fundops/internal/ledger"
	"github.com/punchamoorthee/fundops/internal/txlog"
)

//go:embed migrations/*.sql
var migrations embed.FS

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	pgTx
	Db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{pgTx: pgTx{q: pool}, Db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.Db.Close()
}

// Migrate applies the embedded goose migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.Db)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// RunInTx runs fn in a READ COMMITTED transaction. Row locks taken through the
// Lock* methods are held until commit.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListWallets(ctx context.Context) ([]Wallet, error) {
	rows, err := s.Db.Query(ctx, "SELECT id, profile_id, balance FROM wallets ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []Wallet
	for rows.Next() {
		var w Wallet
		if err := rows.Scan(&w.ID, &w.ProfileID, &w.Balance); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// ListTransactions returns the persisted log in insertion order.
func (s *PostgresStore) ListTransactions(ctx context.Context) ([]txlog.Transaction, error) {
	rows, err := s.Db.Query(ctx, `
		SELECT id, type, sender_wallet_id, sender_amount, sender_balance,
			receiver_wallet_id, receiver_amount, receiver_balance, created_at, hash
		FROM transactions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []txlog.Transaction
	for rows.Next() {
		var tx txlog.Transaction
		if err := rows.Scan(&tx.ID, &tx.Type, &tx.SenderWalletID, &tx.SenderAmount, &tx.SenderBalance,
			&tx.ReceiverWalletID, &tx.ReceiverAmount, &tx.ReceiverBalance, &tx.CreatedAt, &tx.Hash); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.CreatedAt = tx.CreatedAt.UTC()
		out = append(out, tx)
	}
	return out, rows.Err()
}

// pgTx implements Tx over a pool or a transaction.
type pgTx struct {
	q querier
}

const requestColumns = `id, from_profile_id, to_profile_id, request_id, title, type, status,
	description, cost, repayment, specifications, created_at`

func scanRequest(row pgx.Row) (domain.Request, error) {
	var r domain.Request
	err := row.Scan(&r.ID, &r.FromProfileID, &r.ToProfileID, &r.RequestID, &r.Title, &r.Type, &r.Status,
		&r.Description, &r.Cost, &r.Repayment, &r.Specifications, &r.CreatedAt)
	return r, err
}

func (t pgTx) getRequest(ctx context.Context, id int64, lock bool) (domain.Request, error) {
	query := "SELECT " + requestColumns + " FROM requests WHERE id = $1"
	if lock {
		query += " FOR UPDATE"
	}
	r, err := scanRequest(t.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Request{}, domain.NotFound("request", id)
	}
	if err != nil {
		return domain.Request{}, fmt.Errorf("get request %d: %w", id, err)
	}
	return r, nil
}

func (t pgTx) GetRequest(ctx context.Context, id int64) (domain.Request, error) {
	return t.getRequest(ctx, id, false)
}

func (t pgTx) LockRequest(ctx context.Context, id int64) (domain.Request, error) {
	return t.getRequest(ctx, id, true)
}

func (t pgTx) listRequests(ctx context.Context, query string, args ...any) ([]domain.Request, error) {
	rows, err := t.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []domain.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LockRequestsByParent locks children in id order so concurrent cascades on the
// same parent cannot deadlock.
func (t pgTx) LockRequestsByParent(ctx context.Context, parentID int64) ([]domain.Request, error) {
	return t.listRequests(ctx,
		"SELECT "+requestColumns+" FROM requests WHERE request_id = $1 ORDER BY id FOR UPDATE", parentID)
}

func (t pgTx) ListRequestsByParent(ctx context.Context, parentID int64) ([]domain.Request, error) {
	return t.listRequests(ctx,
		"SELECT "+requestColumns+" FROM requests WHERE request_id = $1 ORDER BY id", parentID)
}

func (t pgTx) ListRequestsFrom(ctx context.Context, profileID int64, typ domain.RequestType) ([]domain.Request, error) {
	return t.listRequests(ctx,
		"SELECT "+requestColumns+" FROM requests WHERE from_profile_id = $1 AND type = $2 ORDER BY id", profileID, typ)
}

func (t pgTx) CreateRequest(ctx context.Context, r *domain.Request) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO requests (from_profile_id, to_profile_id, request_id, title, type, status,
			description, cost, repayment, specifications, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		r.FromProfileID, r.ToProfileID, r.RequestID, r.Title, r.Type, r.Status,
		r.Description, r.Cost, r.Repayment, r.Specifications, r.CreatedAt,
	).Scan(&r.ID)
	if isForeignKeyViolation(err) && r.RequestID != nil {
		return domain.NotFound("request", *r.RequestID)
	}
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (t pgTx) UpdateRequestStatus(ctx context.Context, id int64, status domain.RequestStatus) error {
	tag, err := t.q.Exec(ctx, "UPDATE requests SET status = $1 WHERE id = $2", status, id)
	if err != nil {
		return fmt.Errorf("update request %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("request", id)
	}
	return nil
}

const contractColumns = "id, request_id, wallet_id, target_amount, repayment_amount, status, created_at"

func (t pgTx) loadContract(ctx context.Context, query string, key int64) (*domain.Contract, error) {
	var c domain.Contract
	err := t.q.QueryRow(ctx, query, key).Scan(
		&c.ID, &c.RequestID, &c.WalletID, &c.TargetAmount, &c.RepaymentAmount, &c.Status, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("contract", key)
	}
	if err != nil {
		return nil, fmt.Errorf("get contract: %w", err)
	}

	rows, err := t.q.Query(ctx, `
		SELECT id, contract_id, profile_id, status, funding_amount, repayment_amount, disbursed_amount, created_at
		FROM fundings WHERE contract_id = $1 ORDER BY id`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("list fundings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		f, err := scanFunding(rows)
		if err != nil {
			return nil, err
		}
		c.Fundings = append(c.Fundings, &f)
	}
	return &c, rows.Err()
}

func scanFunding(row pgx.Row) (domain.Funding, error) {
	var f domain.Funding
	err := row.Scan(&f.ID, &f.ContractID, &f.ProfileID, &f.Status,
		&f.FundingAmount, &f.RepaymentAmount, &f.DisbursedAmount, &f.CreatedAt)
	if err != nil {
		return f, fmt.Errorf("scan funding: %w", err)
	}
	return f, nil
}

func (t pgTx) GetContract(ctx context.Context, id int64) (*domain.Contract, error) {
	return t.loadContract(ctx, "SELECT "+contractColumns+" FROM contracts WHERE id = $1", id)
}

// LockContract locks the contract row; fundings are only inserted under this lock.
func (t pgTx) LockContract(ctx context.Context, id int64) (*domain.Contract, error) {
	return t.loadContract(ctx, "SELECT "+contractColumns+" FROM contracts WHERE id = $1 FOR UPDATE", id)
}

func (t pgTx) GetContractByRequest(ctx context.Context, requestID int64) (*domain.Contract, error) {
	return t.loadContract(ctx, "SELECT "+contractColumns+" FROM contracts WHERE request_id = $1", requestID)
}

func (t pgTx) CreateContract(ctx context.Context, c *domain.Contract) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO contracts (request_id, wallet_id, target_amount, repayment_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		c.RequestID, c.WalletID, c.TargetAmount, c.RepaymentAmount, c.Status, c.CreatedAt,
	).Scan(&c.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.NewError(domain.ErrContractAlreadyCreated, "request", c.RequestID, nil)
	}
	if isForeignKeyViolation(err) {
		return domain.NotFound("request", c.RequestID)
	}
	if err != nil {
		return fmt.Errorf("insert contract: %w", err)
	}
	return nil
}

func (t pgTx) UpdateContractStatus(ctx context.Context, id int64, status domain.ContractStatus) error {
	tag, err := t.q.Exec(ctx, "UPDATE contracts SET status = $1 WHERE id = $2", status, id)
	if err != nil {
		return fmt.Errorf("update contract %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("contract", id)
	}
	return nil
}

func (t pgTx) CreateFunding(ctx context.Context, f *domain.Funding) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO fundings (contract_id, profile_id, status, funding_amount, repayment_amount, disbursed_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		f.ContractID, f.ProfileID, f.Status, f.FundingAmount, f.RepaymentAmount, f.DisbursedAmount, f.CreatedAt,
	).Scan(&f.ID)
	if isForeignKeyViolation(err) {
		return domain.NotFound("contract", f.ContractID)
	}
	if err != nil {
		return fmt.Errorf("insert funding: %w", err)
	}
	return nil
}

// UpdateFunding only touches the fields disbursement may change.
func (t pgTx) UpdateFunding(ctx context.Context, f *domain.Funding) error {
	tag, err := t.q.Exec(ctx,
		"UPDATE fundings SET status = $1, disbursed_amount = $2 WHERE id = $3",
		f.Status, f.DisbursedAmount, f.ID)
	if err != nil {
		return fmt.Errorf("update funding %d: %w", f.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("funding", f.ID)
	}
	return nil
}

func (t pgTx) ListFundingsByProfile(ctx context.Context, profileID int64) ([]domain.Funding, error) {
	rows, err := t.q.Query(ctx, `
		SELECT id, contract_id, profile_id, status, funding_amount, repayment_amount, disbursed_amount, created_at
		FROM fundings WHERE profile_id = $1 ORDER BY id`, profileID)
	if err != nil {
		return nil, fmt.Errorf("list fundings: %w", err)
	}
	defer rows.Close()

	var out []domain.Funding
	for rows.Next() {
		f, err := scanFunding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (t pgTx) WalletForProfile(ctx context.Context, profileID int64) (string, error) {
	var id string
	err := t.q.QueryRow(ctx, "SELECT id FROM wallets WHERE profile_id = $1", profileID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.NotFound("profile wallet", profileID)
	}
	if err != nil {
		return "", fmt.Errorf("wallet for profile %d: %w", profileID, err)
	}
	return id, nil
}

func (t pgTx) CreateWallet(ctx context.Context, w Wallet) error {
	_, err := t.q.Exec(ctx,
		"INSERT INTO wallets (id, profile_id, balance) VALUES ($1, $2, $3)",
		w.ID, w.ProfileID, w.Balance)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %q", ledger.ErrWalletExists, w.ID)
	}
	if err != nil {
		return fmt.Errorf("insert wallet %q: %w", w.ID, err)
	}
	return nil
}

func (t pgTx) setBalance(ctx context.Context, wallet string, balance int64) error {
	tag, err := t.q.Exec(ctx, "UPDATE wallets SET balance = $1 WHERE id = $2", balance, wallet)
	if err != nil {
		return fmt.Errorf("update wallet %q: %w", wallet, err)
	}
	if tag.RowsAffected() == 0 {
		return walletNotFound(wallet)
	}
	return nil
}

func (t pgTx) RecordTransaction(ctx context.Context, tx txlog.Transaction) error {
	if err := t.setBalance(ctx, tx.SenderWalletID, tx.SenderBalance); err != nil {
		return err
	}
	if err := t.setBalance(ctx, tx.ReceiverWalletID, tx.ReceiverBalance); err != nil {
		return err
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO transactions (id, type, sender_wallet_id, sender_amount, sender_balance,
			receiver_wallet_id, receiver_amount, receiver_balance, created_at, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tx.ID, tx.Type, tx.SenderWalletID, tx.SenderAmount, tx.SenderBalance,
		tx.ReceiverWalletID, tx.ReceiverAmount, tx.ReceiverBalance, tx.CreatedAt, tx.Hash)
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", tx.ID, err)
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
