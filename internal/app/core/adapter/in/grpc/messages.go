package grpc

import (
	"time"

	"github.com/JoeShih716/go-ledger-engine/internal/app/core/domain"
	"github.com/JoeShih716/go-ledger-engine/pkg/money"
)

// 以下為 LedgerService 的 JSON 訊息
// 金額一律為最小單位整數，*_display 欄位只供顯示

type CreateAccountRequest struct {
	DisplayName string `json:"display_name"`
}

type ListAccountsRequest struct{}

type ListAccountsResponse struct {
	Accounts []*Account `json:"accounts"`
}

type DepositRequest struct {
	AccountNumber string `json:"account_number"`
	Amount        int64  `json:"amount"`
}

type WithdrawRequest struct {
	AccountNumber string `json:"account_number"`
	Amount        int64  `json:"amount"`
}

type TransferRequest struct {
	FromAccountNumber string `json:"from_account_number"`
	ToAccountNumber   string `json:"to_account_number"`
	Amount            int64  `json:"amount"`
	Description       string `json:"description,omitempty"`
}

type TransferResponse struct {
	Out *Record `json:"out"`
	In  *Record `json:"in"`
}

type GetHistoryRequest struct {
	AccountNumber string `json:"account_number"`
}

type GetHistoryResponse struct {
	Records []*Record `json:"records"`
}

type Account struct {
	AccountNumber  string    `json:"account_number"`
	DisplayName    string    `json:"display_name,omitempty"`
	Balance        int64     `json:"balance"`
	BalanceDisplay string    `json:"balance_display"`
	CreatedAt      time.Time `json:"created_at"`
}

type Record struct {
	ID                   int64     `json:"id"`
	AccountNumber        string    `json:"account_number"`
	Kind                 string    `json:"kind"`
	Amount               int64     `json:"amount"`
	AmountDisplay        string    `json:"amount_display"`
	BalanceBefore        int64     `json:"balance_before"`
	BalanceAfter         int64     `json:"balance_after"`
	Description          string    `json:"description,omitempty"`
	ReferenceNumber      string    `json:"reference_number"`
	RelatedAccountNumber *string   `json:"related_account_number,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

func toAccount(a *domain.Account) *Account {
	return &Account{
		AccountNumber:  a.AccountNumber,
		DisplayName:    a.DisplayName,
		Balance:        a.Balance,
		BalanceDisplay: money.Format(a.Balance),
		CreatedAt:      a.CreatedAt,
	}
}

func toRecord(r *domain.TransactionRecord) *Record {
	return &Record{
		ID:                   r.ID,
		AccountNumber:        r.AccountNumber,
		Kind:                 r.Kind.String(),
		Amount:               r.Amount,
		AmountDisplay:        money.Format(r.Amount),
		BalanceBefore:        r.BalanceBefore,
		BalanceAfter:         r.BalanceAfter,
		Description:          r.Description,
		ReferenceNumber:      r.ReferenceNumber,
		RelatedAccountNumber: r.RelatedAccountNumber,
		CreatedAt:            r.CreatedAt,
	}
}

func toRecords(records []*domain.TransactionRecord) []*Record {
	out := make([]*Record, 0, len(records))
	for _, r := range records {
		out = append(out, toRecord(r))
	}
	return out
}
