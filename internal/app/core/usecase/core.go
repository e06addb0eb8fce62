package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JoeShih716/go-ledger-engine/internal/app/core/domain"
)

const (
	// MaxDisplayNameLength 帳戶名稱長度上限 (字元)
	MaxDisplayNameLength = 100
	// MaxDescriptionLength 交易描述長度上限 (字元)
	MaxDescriptionLength = 255

	defaultAccountNumberAttempts = 20
	defaultAccountNumberBackoff  = 5 * time.Millisecond
	maxAccountNumberBackoff      = time.Second
)

// Service 帳務核心對外提供的操作
// CoreUseCase 與各個 decorator 都實作這個介面
type Service interface {
	CreateAccount(ctx context.Context, userID, displayName string) (*domain.Account, error)
	ListAccounts(ctx context.Context, userID string) ([]*domain.Account, error)
	Deposit(ctx context.Context, userID, accountNumber string, amount int64) (*domain.TransactionRecord, error)
	Withdraw(ctx context.Context, userID, accountNumber string, amount int64) (*domain.TransactionRecord, error)
	Transfer(ctx context.Context, req TransferRequest) (*domain.TransferReceipt, error)
	GetHistory(ctx context.Context, userID, accountNumber string) ([]*domain.TransactionRecord, error)
}

// CoreUseCase 是核心業務邏輯層
// 本身不持有任何鎖，同一帳戶的並發異動由 Ledger 的工作單元負責序列化
type CoreUseCase struct {
	ledger         Ledger
	accountNumbers AccountNumberGenerator
	references     ReferenceGenerator
	now            func() time.Time

	accountNumberAttempts int
	accountNumberBackoff  time.Duration
}

// Option 定義了 CoreUseCase 的配置選項函數
type Option func(*CoreUseCase)

// WithAccountNumbers 指定帳號產生器
func WithAccountNumbers(g AccountNumberGenerator) Option {
	return func(c *CoreUseCase) {
		c.accountNumbers = g
	}
}

// WithReferences 指定參考編號產生器
func WithReferences(g ReferenceGenerator) Option {
	return func(c *CoreUseCase) {
		c.references = g
	}
}

// WithClock 指定交易紀錄的時間來源
func WithClock(now func() time.Time) Option {
	return func(c *CoreUseCase) {
		c.now = now
	}
}

// WithAccountNumberRetry 設定建立帳戶時取號的嘗試次數，以及帳號撞號後的初始退避時間
func WithAccountNumberRetry(attempts int, backoff time.Duration) Option {
	return func(c *CoreUseCase) {
		if attempts > 0 {
			c.accountNumberAttempts = attempts
		}
		if backoff >= 0 {
			c.accountNumberBackoff = backoff
		}
	}
}

func NewCoreUseCase(ledger Ledger, opts ...Option) *CoreUseCase {
	c := &CoreUseCase{
		ledger:                ledger,
		accountNumbers:        RandomAccountNumbers,
		now:                   time.Now,
		accountNumberAttempts: defaultAccountNumberAttempts,
		accountNumberBackoff:  defaultAccountNumberBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.references == nil {
		// node 0 一定合法
		refs, _ := NewSnowflakeReferences(0)
		c.references = refs
	}
	return c
}

// CreateAccount 建立帳戶
//
// 取號流程: 產生候選帳號 -> 查詢是否已使用 -> 已使用則重新產生。
// 查詢只是降低碰撞機率，並發插入仍可能撞號，此時儲存層回報
// domain.ErrDuplicateAccountNumber，退避後重試。
func (c *CoreUseCase) CreateAccount(ctx context.Context, userID, displayName string) (*domain.Account, error) {
	if isBlank(userID) {
		return nil, domain.ErrUnauthorized
	}
	name := strings.TrimSpace(displayName)
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return nil, invalid("display name must be at most %d characters", MaxDisplayNameLength)
	}

	accounts := c.ledger.Accounts()
	backoff := c.accountNumberBackoff
	for attempt := 0; attempt < c.accountNumberAttempts; attempt++ {
		number := c.accountNumbers.NextAccountNumber()
		exists, err := accounts.ExistsByNumber(ctx, number)
		if err != nil {
			return nil, infrastructure("create account", err)
		}
		if exists {
			continue
		}

		account, err := accounts.Create(ctx, userID, number, name)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, domain.ErrDuplicateAccountNumber) {
			return nil, infrastructure("create account", err)
		}
		if err := sleep(ctx, backoff); err != nil {
			return nil, infrastructure("create account", err)
		}
		backoff = min(backoff*2, maxAccountNumberBackoff)
	}
	return nil, fmt.Errorf("%w: create account: no unused account number after %d attempts: %w",
		domain.ErrInfrastructure, c.accountNumberAttempts, domain.ErrDuplicateAccountNumber)
}

// ListAccounts 列出使用者的所有帳戶
func (c *CoreUseCase) ListAccounts(ctx context.Context, userID string) ([]*domain.Account, error) {
	if isBlank(userID) {
		return nil, domain.ErrUnauthorized
	}
	accounts, err := c.ledger.Accounts().FindAllByOwner(ctx, userID)
	if err != nil {
		return nil, classify("list accounts", err)
	}
	return accounts, nil
}

// Deposit 存款
func (c *CoreUseCase) Deposit(ctx context.Context, userID, accountNumber string, amount int64) (*domain.TransactionRecord, error) {
	accountNumber = strings.TrimSpace(accountNumber)
	if err := validateMovement(userID, accountNumber, amount); err != nil {
		return nil, err
	}

	var record *domain.TransactionRecord
	err := c.ledger.Transaction(ctx, func(tx Ledger) error {
		account, err := ownedAccount(ctx, tx.Accounts(), userID, accountNumber)
		if err != nil {
			return err
		}
		if !account.CanCredit(amount) {
			return invalid("amount exceeds the balance limit")
		}
		record, err = c.post(ctx, tx, account, posting{
			kind:        domain.KindDeposit,
			delta:       amount,
			description: domain.DefaultDepositDescription,
			reference:   c.references.NextReference(),
		})
		return err
	})
	if err != nil {
		return nil, classify("deposit", err)
	}
	return record, nil
}

// Withdraw 提款
// 餘額檢查與扣款在同一個工作單元內，讀取時已鎖定該帳戶
func (c *CoreUseCase) Withdraw(ctx context.Context, userID, accountNumber string, amount int64) (*domain.TransactionRecord, error) {
	accountNumber = strings.TrimSpace(accountNumber)
	if err := validateMovement(userID, accountNumber, amount); err != nil {
		return nil, err
	}

	var record *domain.TransactionRecord
	err := c.ledger.Transaction(ctx, func(tx Ledger) error {
		account, err := ownedAccount(ctx, tx.Accounts(), userID, accountNumber)
		if err != nil {
			return err
		}
		if !account.CanDebit(amount) {
			return domain.ErrInsufficientBalance
		}
		record, err = c.post(ctx, tx, account, posting{
			kind:        domain.KindWithdraw,
			delta:       -amount,
			description: domain.DefaultWithdrawDescription,
			reference:   c.references.NextReference(),
		})
		return err
	})
	if err != nil {
		return nil, classify("withdraw", err)
	}
	return record, nil
}

// GetHistory 查詢帳戶交易紀錄 (新到舊)
func (c *CoreUseCase) GetHistory(ctx context.Context, userID, accountNumber string) ([]*domain.TransactionRecord, error) {
	if isBlank(userID) {
		return nil, domain.ErrUnauthorized
	}
	accountNumber = strings.TrimSpace(accountNumber)
	if accountNumber == "" {
		return nil, invalid("account number is required")
	}

	account, err := ownedAccount(ctx, c.ledger.Accounts(), userID, accountNumber)
	if err != nil {
		return nil, classify("get history", err)
	}
	records, err := c.ledger.Journal().FindByAccount(ctx, account.ID)
	if err != nil {
		return nil, classify("get history", err)
	}
	return records, nil
}

// posting 一次餘額異動加一筆對應紀錄
type posting struct {
	kind        domain.TransactionKind
	delta       int64
	description string
	reference   string
	related     *string
}

// post 異動餘額並寫入紀錄，必須在工作單元內呼叫
// BalanceBefore 由異動後的餘額反推，與這次 delta 保證一致
func (c *CoreUseCase) post(ctx context.Context, tx Ledger, account *domain.Account, p posting) (*domain.TransactionRecord, error) {
	updated, err := tx.Accounts().AdjustBalance(ctx, account.ID, p.delta)
	if err != nil {
		return nil, err
	}
	amount := p.delta
	if amount < 0 {
		amount = -amount
	}
	return tx.Journal().Append(ctx, &domain.TransactionRecord{
		AccountNumber:        updated.AccountNumber,
		Kind:                 p.kind,
		Amount:               amount,
		BalanceBefore:        updated.Balance - p.delta,
		BalanceAfter:         updated.Balance,
		Description:          p.description,
		ReferenceNumber:      p.reference,
		RelatedAccountNumber: p.related,
		CreatedAt:            c.now(),
	})
}

// ownedAccount 讀取帳戶並檢查擁有者
func ownedAccount(ctx context.Context, accounts AccountStore, userID, accountNumber string) (*domain.Account, error) {
	account, err := accounts.FindByNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if !account.OwnedBy(userID) {
		return nil, domain.ErrForbidden
	}
	return account, nil
}

func validateMovement(userID, accountNumber string, amount int64) error {
	if isBlank(userID) {
		return domain.ErrUnauthorized
	}
	if accountNumber == "" {
		return invalid("account number is required")
	}
	if amount <= 0 {
		return invalid("amount must be positive")
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// classify 業務錯誤原樣回傳，其餘一律包成基礎設施錯誤
func classify(op string, err error) error {
	if domain.IsBusinessError(err) || errors.Is(err, domain.ErrInfrastructure) {
		return err
	}
	return infrastructure(op, err)
}

func infrastructure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrInfrastructure, op, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ Service = (*CoreUseCase)(nil)
