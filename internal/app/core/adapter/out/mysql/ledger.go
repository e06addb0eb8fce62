package mysql

import (
	"context"
	"errors"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-ledger-engine/internal/app/core/domain"
	"github.com/JoeShih716/go-ledger-engine/internal/app/core/usecase"
	"github.com/JoeShih716/go-ledger-engine/pkg/mysql"
)

// errDupEntry MySQL ER_DUP_ENTRY
const errDupEntry = 1062

// MySQLLedger 以 GORM 實作 usecase.Ledger
// inTx 為 true 代表 db 是交易中的連線，讀取帳戶會加上 SELECT ... FOR UPDATE
type MySQLLedger struct {
	db   *gorm.DB
	inTx bool
}

func NewMySQLLedger(client *mysql.Client) *MySQLLedger {
	return &MySQLLedger{
		db: client.DB(),
	}
}

// AutoMigrate 建立或更新資料表
func (ledger *MySQLLedger) AutoMigrate(ctx context.Context) error {
	return ledger.db.WithContext(ctx).AutoMigrate(&sqlAccount{}, &sqlRecord{})
}

func (ledger *MySQLLedger) Accounts() usecase.AccountStore {
	return &accountStore{db: ledger.db, lock: ledger.inTx}
}

func (ledger *MySQLLedger) Journal() usecase.TransactionJournal {
	return &journal{db: ledger.db}
}

// Transaction 以 gorm 的 Transaction 包住 fn，fn 回傳錯誤或 panic 即 rollback
func (ledger *MySQLLedger) Transaction(ctx context.Context, fn func(tx usecase.Ledger) error) error {
	if ledger.inTx {
		return fn(ledger)
	}
	return ledger.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&MySQLLedger{db: tx, inTx: true})
	})
}

type accountStore struct {
	db   *gorm.DB
	lock bool
}

func (s *accountStore) Create(ctx context.Context, ownerID, accountNumber, displayName string) (*domain.Account, error) {
	row := sqlAccount{
		OwnerID:       ownerID,
		AccountNumber: accountNumber,
		DisplayName:   displayName,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, domain.ErrDuplicateAccountNumber
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// query 交易中的讀取一律鎖定該列，直到 commit/rollback
func (s *accountStore) query(ctx context.Context) *gorm.DB {
	q := s.db.WithContext(ctx)
	if s.lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func (s *accountStore) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	var row sqlAccount
	if err := s.query(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toDomain(), nil
}

func (s *accountStore) FindByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	var row sqlAccount
	if err := s.query(ctx).Where("account_number = ?", accountNumber).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toDomain(), nil
}

func (s *accountStore) ExistsByNumber(ctx context.Context, accountNumber string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&sqlAccount{}).Where("account_number = ?", accountNumber).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *accountStore) FindAllByOwner(ctx context.Context, ownerID string) ([]*domain.Account, error) {
	var rows []sqlAccount
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	accounts := make([]*domain.Account, 0, len(rows))
	for i := range rows {
		accounts = append(accounts, rows[i].toDomain())
	}
	return accounts, nil
}

// AdjustBalance 以 UPDATE ... SET balance = balance + ? 原子性更新，不做 read-modify-write
func (s *accountStore) AdjustBalance(ctx context.Context, id int64, delta int64) (*domain.Account, error) {
	res := s.db.WithContext(ctx).Model(&sqlAccount{}).
		Where("id = ?", id).
		Update("balance", gorm.Expr("balance + ?", delta))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrAccountNotFound
	}
	var row sqlAccount
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toDomain(), nil
}

type journal struct {
	db *gorm.DB
}

func (j *journal) Append(ctx context.Context, record *domain.TransactionRecord) (*domain.TransactionRecord, error) {
	row := newSQLRecord(record)
	if err := j.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// FindByAccount 以帳戶目前的帳號關聯紀錄
func (j *journal) FindByAccount(ctx context.Context, accountID int64) ([]*domain.TransactionRecord, error) {
	var account sqlAccount
	if err := j.db.WithContext(ctx).Select("account_number").Where("id = ?", accountID).Take(&account).Error; err != nil {
		return nil, notFound(err)
	}
	var rows []sqlRecord
	err := j.db.WithContext(ctx).
		Where("account_number = ?", account.AccountNumber).
		Order("created_at DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	records := make([]*domain.TransactionRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toDomain())
	}
	return records, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrAccountNotFound
	}
	return err
}

// isDuplicateKey 同時支援 TranslateError 轉換後與原始的驅動錯誤
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqldriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == errDupEntry
}

var _ usecase.Ledger = (*MySQLLedger)(nil)
