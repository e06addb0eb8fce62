package mysql

import (
	"time"

	"github.com/JoeShih716/go-ledger-engine/internal/app/core/domain"
)

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	OwnerID       string    `gorm:"size:64;not null;index"`
	AccountNumber string    `gorm:"size:10;not null;uniqueIndex"` // 唯一索引是帳號不重複的最終保證
	DisplayName   string    `gorm:"size:100"`
	Balance       int64     `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

func (a *sqlAccount) toDomain() *domain.Account {
	return &domain.Account{
		ID:            a.ID,
		OwnerID:       a.OwnerID,
		AccountNumber: a.AccountNumber,
		DisplayName:   a.DisplayName,
		Balance:       a.Balance,
		CreatedAt:     a.CreatedAt,
	}
}

// sqlRecord 對應資料庫的 transaction_records 表，只新增不修改
type sqlRecord struct {
	ID                   int64     `gorm:"primaryKey;autoIncrement"`
	AccountNumber        string    `gorm:"size:10;not null;index:idx_records_account_created,priority:1"`
	Kind                 uint8     `gorm:"not null"`
	Amount               int64     `gorm:"not null"`
	BalanceBefore        int64     `gorm:"not null"`
	BalanceAfter         int64     `gorm:"not null"`
	Description          string    `gorm:"size:255"`
	ReferenceNumber      string    `gorm:"size:64;not null;uniqueIndex"`
	RelatedAccountNumber *string   `gorm:"size:10"`
	CreatedAt            time.Time `gorm:"not null;precision:6;index:idx_records_account_created,priority:2"`
}

func (*sqlRecord) TableName() string {
	return "transaction_records"
}

func newSQLRecord(r *domain.TransactionRecord) sqlRecord {
	return sqlRecord{
		AccountNumber:        r.AccountNumber,
		Kind:                 uint8(r.Kind),
		Amount:               r.Amount,
		BalanceBefore:        r.BalanceBefore,
		BalanceAfter:         r.BalanceAfter,
		Description:          r.Description,
		ReferenceNumber:      r.ReferenceNumber,
		RelatedAccountNumber: r.RelatedAccountNumber,
		CreatedAt:            r.CreatedAt.UTC(),
	}
}

func (r *sqlRecord) toDomain() *domain.TransactionRecord {
	return &domain.TransactionRecord{
		ID:                   r.ID,
		AccountNumber:        r.AccountNumber,
		Kind:                 domain.TransactionKind(r.Kind),
		Amount:               r.Amount,
		BalanceBefore:        r.BalanceBefore,
		BalanceAfter:         r.BalanceAfter,
		Description:          r.Description,
		ReferenceNumber:      r.ReferenceNumber,
		RelatedAccountNumber: r.RelatedAccountNumber,
		CreatedAt:            r.CreatedAt,
	}
}
