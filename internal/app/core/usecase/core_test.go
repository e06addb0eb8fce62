package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-ledger-engine/internal/app/core/domain"
	"github.com/JoeShih716/go-ledger-engine/internal/app/core/usecase"
)

func TestCreateAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	account, err := f.engine.CreateAccount(ctx, "u1", "  Savings  ")
	require.NoError(t, err)
	assert.Equal(t, "u1", account.OwnerID)
	assert.Equal(t, "Savings", account.DisplayName)
	assert.Equal(t, int64(0), account.Balance)
	assert.Len(t, account.AccountNumber, domain.AccountNumberLength)
	assert.False(t, account.CreatedAt.IsZero())
}

func TestCreateAccount_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CreateAccount(ctx, "", "Savings")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.engine.CreateAccount(ctx, "u1", strings.Repeat("x", usecase.MaxDisplayNameLength+1))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	owned, err := f.engine.ListAccounts(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestCreateAccount_SkipsNumbersAlreadyInUse(t *testing.T) {
	f := newFixture(t, usecase.WithAccountNumbers(sequence("1111111111", "1111111111", "1111111111", "2222222222")))
	ctx := context.Background()

	first, err := f.engine.CreateAccount(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "1111111111", first.AccountNumber)

	second, err := f.engine.CreateAccount(ctx, "u2", "")
	require.NoError(t, err)
	assert.Equal(t, "2222222222", second.AccountNumber)
}

func TestCreateAccount_RetriesDuplicateOnInsert(t *testing.T) {
	f := newFixture(t, usecase.WithAccountNumbers(sequence("1111111111", "1111111111", "3333333333")))
	ctx := context.Background()

	_, err := f.engine.CreateAccount(ctx, "u1", "")
	require.NoError(t, err)

	// 模擬查詢後被其他請求搶先插入: 查詢說沒人用，插入時撞到唯一索引
	f.hooks.existsFalse = true
	account, err := f.engine.CreateAccount(ctx, "u2", "")
	require.NoError(t, err)
	assert.Equal(t, "3333333333", account.AccountNumber)
}

func TestCreateAccount_GivesUpAfterAttempts(t *testing.T) {
	f := newFixture(t,
		usecase.WithAccountNumbers(usecase.AccountNumberFunc(func() string { return "1111111111" })),
		usecase.WithAccountNumberRetry(3, time.Millisecond),
	)
	ctx := context.Background()
	_, err := f.engine.CreateAccount(ctx, "u1", "")
	require.NoError(t, err)

	_, err = f.engine.CreateAccount(ctx, "u2", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInfrastructure)
	assert.ErrorIs(t, err, domain.ErrDuplicateAccountNumber)
	assert.False(t, domain.IsBusinessError(err))
}

func TestCreateAccount_NumbersAreUniqueUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 50
	numbers := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			account, err := f.engine.CreateAccount(ctx, "u1", "")
			if assert.NoError(t, err) {
				numbers <- account.AccountNumber
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[string]bool)
	for number := range numbers {
		assert.False(t, seen[number], "duplicate account number %s", number)
		seen[number] = true
	}
	assert.Len(t, seen, n)
}

func TestListAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.openAccount(t, "u1", 0)
	b := f.openAccount(t, "u1", 0)
	f.openAccount(t, "u2", 0)

	owned, err := f.engine.ListAccounts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, a, owned[0].AccountNumber)
	assert.Equal(t, b, owned[1].AccountNumber)

	_, err = f.engine.ListAccounts(ctx, " ")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestDepositWithdraw_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.openAccount(t, "u1", 0)

	dep, err := f.engine.Deposit(ctx, "u1", a, 500)
	require.NoError(t, err)
	assert.Equal(t, domain.KindDeposit, dep.Kind)
	assert.Equal(t, int64(500), dep.Amount)
	assert.Equal(t, int64(0), dep.BalanceBefore)
	assert.Equal(t, int64(500), dep.BalanceAfter)
	assert.Equal(t, domain.DefaultDepositDescription, dep.Description)
	assert.Nil(t, dep.RelatedAccountNumber)
	assert.True(t, strings.HasPrefix(dep.ReferenceNumber, "TXN-"))
	assert.Equal(t, int64(500), f.balance(t, a))

	wd, err := f.engine.Withdraw(ctx, "u1", a, 200)
	require.NoError(t, err)
	assert.Equal(t, domain.KindWithdraw, wd.Kind)
	assert.Equal(t, int64(500), wd.BalanceBefore)
	assert.Equal(t, int64(300), wd.BalanceAfter)
	assert.Equal(t, domain.DefaultWithdrawDescription, wd.Description)
	assert.Equal(t, int64(300), f.balance(t, a))

	_, err = f.engine.Withdraw(ctx, "u1", a, 301)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, int64(300), f.balance(t, a))
	assert.Len(t, f.history(t, a), 2)
}

func TestDepositWithdraw_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.openAccount(t, "u1", 100)

	tests := []struct {
		name    string
		userID  string
		number  string
		amount  int64
		wantErr error
	}{
		{"missing user", "", a, 10, domain.ErrUnauthorized},
		{"zero amount", "u1", a, 0, domain.ErrInvalidRequest},
		{"negative amount", "u1", a, -5, domain.ErrInvalidRequest},
		{"missing account number", "u1", "  ", 10, domain.ErrInvalidRequest},
		{"unknown account", "u1", "9999999999", 10, domain.ErrAccountNotFound},
		{"not the owner", "u2", a, 10, domain.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Deposit(ctx, tt.userID, tt.number, tt.amount)
			assert.ErrorIs(t, err, tt.wantErr, "deposit")
			_, err = f.engine.Withdraw(ctx, tt.userID, tt.number, tt.amount)
			assert.ErrorIs(t, err, tt.wantErr, "withdraw")
		})
	}

	assert.Equal(t, int64(100), f.balance(t, a))
	assert.Len(t, f.history(t, a), 1)
}

func TestDeposit_RejectsOverflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.openAccount(t, "u1", 1<<62)

	_, err := f.engine.Deposit(ctx, "u1", a, 1<<62)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Equal(t, int64(1<<62), f.balance(t, a))
}

func TestWithdraw_NoLostUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n, amount = 100, 7
	a := f.openAccount(t, "u1", n*amount)

	// 兩倍請求量，恰好 n 筆成功
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, insufficient := 0, 0
	for i := 0; i < 2*n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Withdraw(ctx, "u1", a, amount)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientBalance):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, n, succeeded)
	assert.Equal(t, n, insufficient)
	assert.Equal(t, int64(0), f.balance(t, a))

	// 每筆紀錄前後餘額相接
	history := f.history(t, a)
	require.Len(t, history, n+1)
	for i := 0; i < len(history)-1; i++ {
		assert.Equal(t, history[i+1].BalanceAfter, history[i].BalanceBefore)
		assert.GreaterOrEqual(t, history[i].BalanceAfter, int64(0))
	}
}

func TestGetHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.openAccount(t, "u1", 500)
	b := f.openAccount(t, "u2", 0)

	_, err := f.engine.Withdraw(ctx, "u1", a, 100)
	require.NoError(t, err)
	_, err = f.engine.Transfer(ctx, usecase.TransferRequest{UserID: "u1", FromAccountNumber: a, ToAccountNumber: b, Amount: 50})
	require.NoError(t, err)

	history, err := f.engine.GetHistory(ctx, "u1", a)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, domain.KindTransferOut, history[0].Kind)
	assert.Equal(t, domain.KindWithdraw, history[1].Kind)
	assert.Equal(t, domain.KindDeposit, history[2].Kind)

	_, err = f.engine.GetHistory(ctx, "u2", a)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.engine.GetHistory(ctx, "", a)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.engine.GetHistory(ctx, "u1", "9999999999")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestStoreFailuresAreInfrastructureErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.openAccount(t, "u1", 100)

	f.hooks.findErr = errors.New("connection reset by peer")

	_, err := f.engine.Deposit(ctx, "u1", a, 10)
	assert.ErrorIs(t, err, domain.ErrInfrastructure)
	assert.False(t, domain.IsBusinessError(err))
	assert.ErrorContains(t, err, "connection reset by peer")

	_, err = f.engine.GetHistory(ctx, "u1", a)
	assert.ErrorIs(t, err, domain.ErrInfrastructure)

	f.hooks.findErr = nil
	assert.Equal(t, int64(100), f.balance(t, a))
}

func TestDeposit_JournalFailureRollsBackBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.openAccount(t, "u1", 100)

	f.hooks.appendErr = func(*domain.TransactionRecord) error { return errors.New("disk full") }
	_, err := f.engine.Deposit(ctx, "u1", a, 10)
	assert.ErrorIs(t, err, domain.ErrInfrastructure)

	assert.Equal(t, int64(100), f.balance(t, a))
	assert.Len(t, f.history(t, a), 1)
}
