package domain

import (
	"math"
	"time"
)

// AccountNumberLength 帳號固定長度 (10 位數字)
const AccountNumberLength = 10

// Account 帳戶
// Balance 以最小貨幣單位 (minor units) 儲存，永遠不使用浮點數
type Account struct {
	ID            int64
	OwnerID       string
	AccountNumber string
	DisplayName   string
	Balance       int64
	CreatedAt     time.Time
}

// OwnedBy 檢查帳戶是否屬於指定使用者
func (a *Account) OwnedBy(userID string) bool {
	return a.OwnerID == userID
}

// CanDebit 檢查餘額是否足以扣款
func (a *Account) CanDebit(amount int64) bool {
	return a.Balance >= amount
}

// CanCredit 檢查入帳後是否會溢位
func (a *Account) CanCredit(amount int64) bool {
	return a.Balance <= math.MaxInt64-amount
}

// Clone 回傳副本，避免呼叫端改到儲存層持有的資料
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
