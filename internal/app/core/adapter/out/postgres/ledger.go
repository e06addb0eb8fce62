package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/JoeShih716/go-ledger-engine/internal/app/core/domain"
	"github.com/JoeShih716/go-ledger-engine/internal/app/core/usecase"
	"github.com/JoeShih716/go-ledger-engine/pkg/postgres"
)

const (
	uniqueViolation           = "23505"
	accountNumberUniqueConstr = "accounts_account_number_key"
)

// querier 由 *sql.DB 與 *sql.Tx 共同實作
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresLedger 以 database/sql + lib/pq 實作 usecase.Ledger
type PostgresLedger struct {
	db   *sql.DB
	q    querier
	inTx bool
}

func NewPostgresLedger(client *postgres.Client) *PostgresLedger {
	return &PostgresLedger{
		db: client.DB(),
		q:  client.DB(),
	}
}

func (l *PostgresLedger) Accounts() usecase.AccountStore {
	return &accountStore{q: l.q, lock: l.inTx}
}

func (l *PostgresLedger) Journal() usecase.TransactionJournal {
	return &journal{q: l.q}
}

// Transaction 開啟 READ COMMITTED 交易；帳戶列以 SELECT ... FOR UPDATE 鎖定
func (l *PostgresLedger) Transaction(ctx context.Context, fn func(tx usecase.Ledger) error) (err error) {
	if l.inTx {
		return fn(l)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&PostgresLedger{db: l.db, q: tx, inTx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const accountColumns = `id, owner_id, account_number, display_name, balance, created_at`

type accountStore struct {
	q    querier
	lock bool
}

func (s *accountStore) Create(ctx context.Context, ownerID, accountNumber, displayName string) (*domain.Account, error) {
	row := s.q.QueryRowContext(ctx,
		`INSERT INTO accounts (owner_id, account_number, display_name, balance)
		 VALUES ($1, $2, $3, 0)
		 RETURNING `+accountColumns,
		ownerID, accountNumber, displayName,
	)
	account, err := scanAccount(row)
	if err != nil {
		if isAccountNumberConflict(err) {
			return nil, domain.ErrDuplicateAccountNumber
		}
		return nil, err
	}
	return account, nil
}

func (s *accountStore) selectOne(ctx context.Context, where string, arg any) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where
	if s.lock {
		query += ` FOR UPDATE`
	}
	account, err := scanAccount(s.q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	return account, err
}

func (s *accountStore) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	return s.selectOne(ctx, `id = $1`, id)
}

func (s *accountStore) FindByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return s.selectOne(ctx, `account_number = $1`, accountNumber)
}

func (s *accountStore) ExistsByNumber(ctx context.Context, accountNumber string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE account_number = $1)`, accountNumber,
	).Scan(&exists)
	return exists, err
}

func (s *accountStore) FindAllByOwner(ctx context.Context, ownerID string) ([]*domain.Account, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// AdjustBalance 以相對增量更新並回傳更新後的列
func (s *accountStore) AdjustBalance(ctx context.Context, id int64, delta int64) (*domain.Account, error) {
	row := s.q.QueryRowContext(ctx,
		`UPDATE accounts SET balance = balance + $1 WHERE id = $2 RETURNING `+accountColumns,
		delta, id,
	)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	return account, err
}

const recordColumns = `id, account_number, kind, amount, balance_before, balance_after,
	description, reference_number, related_account_number, created_at`

type journal struct {
	q querier
}

func (j *journal) Append(ctx context.Context, r *domain.TransactionRecord) (*domain.TransactionRecord, error) {
	row := j.q.QueryRowContext(ctx,
		`INSERT INTO transaction_records
		 (account_number, kind, amount, balance_before, balance_after, description, reference_number, related_account_number, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+recordColumns,
		r.AccountNumber, int16(r.Kind), r.Amount, r.BalanceBefore, r.BalanceAfter,
		r.Description, r.ReferenceNumber, r.RelatedAccountNumber, r.CreatedAt.UTC(),
	)
	return scanRecord(row)
}

// FindByAccount 以帳戶目前的帳號 join 紀錄
func (j *journal) FindByAccount(ctx context.Context, accountID int64) ([]*domain.TransactionRecord, error) {
	var accountNumber string
	err := j.q.QueryRowContext(ctx, `SELECT account_number FROM accounts WHERE id = $1`, accountID).Scan(&accountNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := j.q.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM transaction_records
		 WHERE account_number = $1
		 ORDER BY created_at DESC, id DESC`, accountNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*domain.TransactionRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	if err := s.Scan(&a.ID, &a.OwnerID, &a.AccountNumber, &a.DisplayName, &a.Balance, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanRecord(s scanner) (*domain.TransactionRecord, error) {
	var (
		r       domain.TransactionRecord
		kind    int16
		related sql.NullString
	)
	err := s.Scan(&r.ID, &r.AccountNumber, &kind, &r.Amount, &r.BalanceBefore, &r.BalanceAfter,
		&r.Description, &r.ReferenceNumber, &related, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Kind = domain.TransactionKind(kind)
	if related.Valid {
		r.RelatedAccountNumber = &related.String
	}
	return &r, nil
}

// isAccountNumberConflict 只有帳號唯一索引衝突才視為撞號
func isAccountNumberConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return false
	}
	return pqErr.Constraint == "" || pqErr.Constraint == accountNumberUniqueConstr
}

var _ usecase.Ledger = (*PostgresLedger)(nil)
