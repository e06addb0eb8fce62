package usecase

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/JoeShih716/go-ledger-engine/internal/app/core/domain"
)

// TransferRequest 轉帳請求
type TransferRequest struct {
	UserID            string
	FromAccountNumber string
	ToAccountNumber   string
	Amount            int64
	// Description 選填，空白時使用預設描述
	Description string
}

// validate 輸入檢查，不需要讀取任何帳戶
// 自我轉帳在此攔下，早於任何查詢
func (r *TransferRequest) validate() error {
	if isBlank(r.UserID) {
		return domain.ErrUnauthorized
	}
	if r.FromAccountNumber == "" || r.ToAccountNumber == "" {
		return invalid("source and destination account numbers are required")
	}
	if r.Amount <= 0 {
		return invalid("amount must be positive")
	}
	if utf8.RuneCountInString(r.Description) > MaxDescriptionLength {
		return invalid("description must be at most %d characters", MaxDescriptionLength)
	}
	if r.FromAccountNumber == r.ToAccountNumber {
		return domain.ErrSelfTransfer
	}
	return nil
}

// transferParties 驗證階段通過後的雙方帳戶
type transferParties struct {
	sender   *domain.Account
	receiver *domain.Account
}

// Transfer 轉帳
//
// 驗證階段與執行階段在同一個工作單元內，任一步失敗兩邊餘額與兩筆紀錄都會回滾。
// 回傳的 TransferReceipt 依序為 TRANSFER_OUT 與 TRANSFER_IN。
func (c *CoreUseCase) Transfer(ctx context.Context, req TransferRequest) (*domain.TransferReceipt, error) {
	req.FromAccountNumber = strings.TrimSpace(req.FromAccountNumber)
	req.ToAccountNumber = strings.TrimSpace(req.ToAccountNumber)
	req.Description = strings.TrimSpace(req.Description)
	if err := req.validate(); err != nil {
		return nil, err
	}

	var receipt *domain.TransferReceipt
	err := c.ledger.Transaction(ctx, func(tx Ledger) error {
		parties, err := c.validateTransfer(ctx, tx, req)
		if err != nil {
			return err
		}
		receipt, err = c.executeTransfer(ctx, tx, parties, req)
		return err
	})
	if err != nil {
		return nil, classify("transfer", err)
	}
	return receipt, nil
}

// validateTransfer 驗證階段
//
// 兩個帳戶依 domain.LockOrder 讀取 (在工作單元內即鎖定)，
// 判斷順序仍是: 轉出帳戶 -> 擁有者 -> 餘額 -> 轉入帳戶
func (c *CoreUseCase) validateTransfer(ctx context.Context, tx Ledger, req TransferRequest) (*transferParties, error) {
	found, err := lockAccounts(ctx, tx.Accounts(), req.FromAccountNumber, req.ToAccountNumber)
	if err != nil {
		return nil, err
	}

	sender, ok := found[req.FromAccountNumber]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if !sender.OwnedBy(req.UserID) {
		return nil, domain.ErrForbidden
	}
	if !sender.CanDebit(req.Amount) {
		return nil, domain.ErrInsufficientBalance
	}
	receiver, ok := found[req.ToAccountNumber]
	if !ok {
		return nil, domain.ErrDestinationNotFound
	}
	if !receiver.CanCredit(req.Amount) {
		return nil, invalid("amount exceeds the destination balance limit")
	}
	return &transferParties{sender: sender, receiver: receiver}, nil
}

// executeTransfer 執行階段: 先扣轉出帳戶再加轉入帳戶，兩筆紀錄共用 base reference
func (c *CoreUseCase) executeTransfer(ctx context.Context, tx Ledger, parties *transferParties, req TransferRequest) (*domain.TransferReceipt, error) {
	base := c.references.NextReference()
	senderNumber := parties.sender.AccountNumber
	receiverNumber := parties.receiver.AccountNumber

	out, err := c.post(ctx, tx, parties.sender, posting{
		kind:        domain.KindTransferOut,
		delta:       -req.Amount,
		description: orDefault(req.Description, domain.DefaultTransferOutDescription),
		reference:   base + domain.TransferOutSuffix,
		related:     &receiverNumber,
	})
	if err != nil {
		return nil, err
	}
	in, err := c.post(ctx, tx, parties.receiver, posting{
		kind:        domain.KindTransferIn,
		delta:       req.Amount,
		description: orDefault(req.Description, domain.DefaultTransferInDescription),
		reference:   base + domain.TransferInSuffix,
		related:     &senderNumber,
	})
	if err != nil {
		return nil, err
	}
	return &domain.TransferReceipt{Out: out, In: in}, nil
}

// lockAccounts 依固定順序讀取帳戶，不存在的帳號不會出現在結果中
func lockAccounts(ctx context.Context, accounts AccountStore, a, b string) (map[string]*domain.Account, error) {
	found := make(map[string]*domain.Account, 2)
	for _, number := range domain.LockOrder(a, b) {
		account, err := accounts.FindByNumber(ctx, number)
		if errors.Is(err, domain.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		found[number] = account
	}
	return found, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
