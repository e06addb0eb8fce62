package usecase

import (
	"context"

	"github.com/JoeShih716/go-ledger-engine/internal/app/core/domain"
)

// AccountStore 帳戶儲存介面
//
// 在 Ledger.Transaction 內取得的 AccountStore，讀取會鎖定該列直到工作單元結束
type AccountStore interface {
	// Create 建立帳戶，餘額為 0；帳號重複回傳 domain.ErrDuplicateAccountNumber
	Create(ctx context.Context, ownerID, accountNumber, displayName string) (*domain.Account, error)
	// FindByID 找不到回傳 domain.ErrAccountNotFound
	FindByID(ctx context.Context, id int64) (*domain.Account, error)
	// FindByNumber 找不到回傳 domain.ErrAccountNotFound
	FindByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	// ExistsByNumber 帳號是否已被使用
	ExistsByNumber(ctx context.Context, accountNumber string) (bool, error)
	// FindAllByOwner 依建立順序回傳使用者的所有帳戶
	FindAllByOwner(ctx context.Context, ownerID string) ([]*domain.Account, error)
	// AdjustBalance 原子性執行 balance = balance + delta 並回傳更新後的帳戶
	// 不檢查非負，呼叫端負責
	AdjustBalance(ctx context.Context, id int64, delta int64) (*domain.Account, error)
}

// TransactionJournal 交易紀錄，只能新增
type TransactionJournal interface {
	// Append 寫入一筆紀錄，回傳含儲存層 ID 的紀錄
	Append(ctx context.Context, record *domain.TransactionRecord) (*domain.TransactionRecord, error)
	// FindByAccount 透過帳戶目前的帳號查詢紀錄，新到舊排序
	FindByAccount(ctx context.Context, accountID int64) ([]*domain.TransactionRecord, error)
}

// Ledger 是帳務系統的儲存介面
type Ledger interface {
	Accounts() AccountStore
	Journal() TransactionJournal
	// Transaction 在同一個原子工作單元內執行 fn
	// fn 回傳錯誤或 panic 時，所有帳戶異動與交易紀錄一併回滾
	Transaction(ctx context.Context, fn func(tx Ledger) error) error
}
