package usecase_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-ledger-engine/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-ledger-engine/internal/app/core/domain"
	"github.com/JoeShih716/go-ledger-engine/internal/app/core/usecase"
)

// hooks 注入故障與計數，所有 faultyLedger 視圖共用
type hooks struct {
	lookups     atomic.Int32
	findErr     error
	existsFalse bool
	appendErr   func(*domain.TransactionRecord) error
}

// faultyLedger 包住真正的 Ledger，讓測試可以在工作單元中途失敗
type faultyLedger struct {
	usecase.Ledger
	h *hooks
}

func (f *faultyLedger) Accounts() usecase.AccountStore {
	return &faultyAccounts{AccountStore: f.Ledger.Accounts(), h: f.h}
}

func (f *faultyLedger) Journal() usecase.TransactionJournal {
	return &faultyJournal{TransactionJournal: f.Ledger.Journal(), h: f.h}
}

func (f *faultyLedger) Transaction(ctx context.Context, fn func(tx usecase.Ledger) error) error {
	return f.Ledger.Transaction(ctx, func(tx usecase.Ledger) error {
		return fn(&faultyLedger{Ledger: tx, h: f.h})
	})
}

type faultyAccounts struct {
	usecase.AccountStore
	h *hooks
}

func (a *faultyAccounts) FindByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	a.h.lookups.Add(1)
	if a.h.findErr != nil {
		return nil, a.h.findErr
	}
	return a.AccountStore.FindByNumber(ctx, accountNumber)
}

func (a *faultyAccounts) ExistsByNumber(ctx context.Context, accountNumber string) (bool, error) {
	if a.h.existsFalse {
		return false, nil
	}
	return a.AccountStore.ExistsByNumber(ctx, accountNumber)
}

type faultyJournal struct {
	usecase.TransactionJournal
	h *hooks
}

func (j *faultyJournal) Append(ctx context.Context, record *domain.TransactionRecord) (*domain.TransactionRecord, error) {
	if j.h.appendErr != nil {
		if err := j.h.appendErr(record); err != nil {
			return nil, err
		}
	}
	return j.TransactionJournal.Append(ctx, record)
}

// sequence 依序回傳給定的帳號，用完後產生遞增帳號
func sequence(numbers ...string) usecase.AccountNumberGenerator {
	var i atomic.Int64
	return usecase.AccountNumberFunc(func() string {
		n := int(i.Add(1)) - 1
		if n < len(numbers) {
			return numbers[n]
		}
		return fmt.Sprintf("5%09d", n)
	})
}

type fixture struct {
	ledger *memory.MemoryLedger
	faulty *faultyLedger
	hooks  *hooks
	engine *usecase.CoreUseCase
}

func newFixture(t *testing.T, opts ...usecase.Option) *fixture {
	t.Helper()
	l, err := memory.NewMemoryLedger()
	require.NoError(t, err)
	h := &hooks{}
	f := &faultyLedger{Ledger: l, h: h}
	opts = append([]usecase.Option{usecase.WithAccountNumberRetry(5, 0)}, opts...)
	return &fixture{
		ledger: l,
		faulty: f,
		hooks:  h,
		engine: usecase.NewCoreUseCase(f, opts...),
	}
}

// openAccount 建立帳戶並存入初始金額，回傳帳號
func (f *fixture) openAccount(t *testing.T, userID string, initial int64) string {
	t.Helper()
	ctx := context.Background()
	account, err := f.engine.CreateAccount(ctx, userID, "")
	require.NoError(t, err)
	if initial > 0 {
		_, err = f.engine.Deposit(ctx, userID, account.AccountNumber, initial)
		require.NoError(t, err)
	}
	return account.AccountNumber
}

func (f *fixture) balance(t *testing.T, accountNumber string) int64 {
	t.Helper()
	account, err := f.ledger.Accounts().FindByNumber(context.Background(), accountNumber)
	require.NoError(t, err)
	return account.Balance
}

func (f *fixture) history(t *testing.T, accountNumber string) []*domain.TransactionRecord {
	t.Helper()
	ctx := context.Background()
	account, err := f.ledger.Accounts().FindByNumber(ctx, accountNumber)
	require.NoError(t, err)
	records, err := f.ledger.Journal().FindByAccount(ctx, account.ID)
	require.NoError(t, err)
	return records
}
