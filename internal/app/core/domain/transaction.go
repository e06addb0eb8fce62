package domain

import (
	"fmt"
	"strings"
	"time"
)

// MinorUnitExponent 金額精度：小數點後 2 位 (1 元 = 100 minor units)
const MinorUnitExponent = 2

// TransactionKind 交易紀錄類型
// 使用 uint8 節省空間
type TransactionKind uint8

const (
	// 存款
	KindDeposit TransactionKind = 1
	// 提款
	KindWithdraw TransactionKind = 2
	// 轉出
	KindTransferOut TransactionKind = 3
	// 轉入
	KindTransferIn TransactionKind = 4
)

var kindNames = map[TransactionKind]string{
	KindDeposit:     "DEPOSIT",
	KindWithdraw:    "WITHDRAW",
	KindTransferOut: "TRANSFER_OUT",
	KindTransferIn:  "TRANSFER_IN",
}

func (k TransactionKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TransactionKind(%d)", uint8(k))
}

// ParseTransactionKind 由名稱轉回 TransactionKind
func ParseTransactionKind(s string) (TransactionKind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown transaction kind %q", s)
}

// 預設交易描述
const (
	DefaultDepositDescription     = "Deposit money"
	DefaultWithdrawDescription    = "Withdraw money"
	DefaultTransferOutDescription = "Transfer Out"
	DefaultTransferInDescription  = "Transfer In"
)

// 轉帳兩筆紀錄共用同一個 base reference，以後綴區分
const (
	TransferOutSuffix = "-OUT"
	TransferInSuffix  = "-IN"
)

// TransactionRecord 交易紀錄，寫入後不可變更
// 每個受影響的帳戶各寫一筆，所以轉帳會產生兩筆
type TransactionRecord struct {
	ID              int64
	AccountNumber   string
	Kind            TransactionKind
	Amount          int64
	BalanceBefore   int64
	BalanceAfter    int64
	Description     string
	ReferenceNumber string
	// RelatedAccountNumber 轉帳對手帳號，非轉帳為 nil
	RelatedAccountNumber *string
	CreatedAt            time.Time
}

// Clone 回傳副本
func (r *TransactionRecord) Clone() *TransactionRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.RelatedAccountNumber != nil {
		related := *r.RelatedAccountNumber
		c.RelatedAccountNumber = &related
	}
	return &c
}

// TransferReceipt 轉帳結果，依序為轉出與轉入紀錄
type TransferReceipt struct {
	Out *TransactionRecord
	In  *TransactionRecord
}

// Records 以 [out, in] 順序回傳
func (t *TransferReceipt) Records() []*TransactionRecord {
	return []*TransactionRecord{t.Out, t.In}
}

// LockOrder 回傳兩個帳號的鎖定順序，確保順序一致以避免死鎖
func LockOrder(a, b string) []string {
	if a < b {
		return []string{a, b}
	}
	return []string{b, a}
}
