package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/JoeShih716/go-ledger-engine/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-ledger-engine/internal/app/core/domain"
	"github.com/JoeShih716/go-ledger-engine/internal/app/core/usecase"
)

// startServer 以 bufconn 啟動 LedgerService，回傳連到它的 Client
func startServer(t *testing.T, service usecase.Service) *Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(ServerOptions(zap.NewNop())...)
	RegisterLedgerServiceServer(s, NewGrpcServer(service))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func newEngine(t *testing.T) usecase.Service {
	t.Helper()
	ledger, err := memory.NewMemoryLedger()
	require.NoError(t, err)

	var n int
	return usecase.NewCoreUseCase(ledger, usecase.WithAccountNumbers(usecase.AccountNumberFunc(func() string {
		n++
		return fmt.Sprintf("7%09d", n)
	})))
}

func requireStatus(t *testing.T, err error, code codes.Code, reason string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, status.Code(err), err.Error())
	assert.Equal(t, reason, ReasonFromError(err))
}

func TestLedgerService_DepositWithdraw(t *testing.T) {
	client := startServer(t, newEngine(t))
	ctx := context.Background()

	account, err := client.CreateAccount(ctx, "alice", &CreateAccountRequest{DisplayName: "Main"})
	require.NoError(t, err)
	assert.Equal(t, "7000000001", account.AccountNumber)
	assert.Equal(t, "0.00", account.BalanceDisplay)

	dep, err := client.Deposit(ctx, "alice", &DepositRequest{AccountNumber: account.AccountNumber, Amount: 500})
	require.NoError(t, err)
	assert.Equal(t, "DEPOSIT", dep.Kind)
	assert.Equal(t, int64(0), dep.BalanceBefore)
	assert.Equal(t, int64(500), dep.BalanceAfter)
	assert.Equal(t, "5.00", dep.AmountDisplay)
	assert.Nil(t, dep.RelatedAccountNumber)

	wd, err := client.Withdraw(ctx, "alice", &WithdrawRequest{AccountNumber: account.AccountNumber, Amount: 200})
	require.NoError(t, err)
	assert.Equal(t, int64(300), wd.BalanceAfter)

	_, err = client.Withdraw(ctx, "alice", &WithdrawRequest{AccountNumber: account.AccountNumber, Amount: 301})
	requireStatus(t, err, codes.FailedPrecondition, "INSUFFICIENT_BALANCE")

	list, err := client.ListAccounts(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list.Accounts, 1)
	assert.Equal(t, int64(300), list.Accounts[0].Balance)
	assert.Equal(t, "3.00", list.Accounts[0].BalanceDisplay)
}

func TestLedgerService_Transfer(t *testing.T) {
	client := startServer(t, newEngine(t))
	ctx := context.Background()

	a, err := client.CreateAccount(ctx, "alice", &CreateAccountRequest{})
	require.NoError(t, err)
	b, err := client.CreateAccount(ctx, "bob", &CreateAccountRequest{})
	require.NoError(t, err)
	_, err = client.Deposit(ctx, "alice", &DepositRequest{AccountNumber: a.AccountNumber, Amount: 500})
	require.NoError(t, err)

	resp, err := client.Transfer(ctx, "alice", &TransferRequest{
		FromAccountNumber: a.AccountNumber,
		ToAccountNumber:   b.AccountNumber,
		Amount:            150,
	})
	require.NoError(t, err)
	assert.Equal(t, "TRANSFER_OUT", resp.Out.Kind)
	assert.Equal(t, "TRANSFER_IN", resp.In.Kind)
	assert.Equal(t, int64(350), resp.Out.BalanceAfter)
	assert.Equal(t, int64(150), resp.In.BalanceAfter)
	assert.Equal(t, "Transfer Out", resp.Out.Description)
	require.NotNil(t, resp.Out.RelatedAccountNumber)
	assert.Equal(t, b.AccountNumber, *resp.Out.RelatedAccountNumber)
	assert.Equal(t, resp.Out.ReferenceNumber[:len(resp.Out.ReferenceNumber)-len("-OUT")],
		resp.In.ReferenceNumber[:len(resp.In.ReferenceNumber)-len("-IN")])

	history, err := client.GetHistory(ctx, "alice", &GetHistoryRequest{AccountNumber: a.AccountNumber})
	require.NoError(t, err)
	require.Len(t, history.Records, 2)
	assert.Equal(t, "TRANSFER_OUT", history.Records[0].Kind)
	assert.Equal(t, "DEPOSIT", history.Records[1].Kind)

	_, err = client.GetHistory(ctx, "bob", &GetHistoryRequest{AccountNumber: a.AccountNumber})
	requireStatus(t, err, codes.PermissionDenied, "FORBIDDEN")
}

func TestLedgerService_Rejections(t *testing.T) {
	client := startServer(t, newEngine(t))
	ctx := context.Background()

	a, err := client.CreateAccount(ctx, "alice", &CreateAccountRequest{})
	require.NoError(t, err)

	tests := []struct {
		name   string
		call   func() error
		code   codes.Code
		reason string
	}{
		{
			name: "missing user",
			call: func() error {
				_, err := client.CreateAccount(ctx, "", &CreateAccountRequest{})
				return err
			},
			code: codes.Unauthenticated, reason: "UNAUTHORIZED",
		},
		{
			name: "non-positive amount",
			call: func() error {
				_, err := client.Deposit(ctx, "alice", &DepositRequest{AccountNumber: a.AccountNumber})
				return err
			},
			code: codes.InvalidArgument, reason: "INVALID_REQUEST",
		},
		{
			name: "self transfer",
			call: func() error {
				_, err := client.Transfer(ctx, "alice", &TransferRequest{
					FromAccountNumber: a.AccountNumber, ToAccountNumber: a.AccountNumber, Amount: 10,
				})
				return err
			},
			code: codes.InvalidArgument, reason: "SELF_TRANSFER",
		},
		{
			name: "unknown account",
			call: func() error {
				_, err := client.Deposit(ctx, "alice", &DepositRequest{AccountNumber: "0000000000", Amount: 10})
				return err
			},
			code: codes.NotFound, reason: "ACCOUNT_NOT_FOUND",
		},
		{
			name: "unknown destination with empty balance",
			call: func() error {
				_, err := client.Transfer(ctx, "alice", &TransferRequest{
					FromAccountNumber: a.AccountNumber, ToAccountNumber: "0000000000", Amount: 1,
				})
				return err
			},
			// 餘額為 0，先撞到餘額檢查
			code: codes.FailedPrecondition, reason: "INSUFFICIENT_BALANCE",
		},
		{
			name: "not owner",
			call: func() error {
				_, err := client.Withdraw(ctx, "mallory", &WithdrawRequest{AccountNumber: a.AccountNumber, Amount: 1})
				return err
			},
			code: codes.PermissionDenied, reason: "FORBIDDEN",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireStatus(t, tt.call(), tt.code, tt.reason)
		})
	}
}

func TestLedgerService_DestinationNotFound(t *testing.T) {
	client := startServer(t, newEngine(t))
	ctx := context.Background()

	a, err := client.CreateAccount(ctx, "alice", &CreateAccountRequest{})
	require.NoError(t, err)
	_, err = client.Deposit(ctx, "alice", &DepositRequest{AccountNumber: a.AccountNumber, Amount: 100})
	require.NoError(t, err)

	_, err = client.Transfer(ctx, "alice", &TransferRequest{
		FromAccountNumber: a.AccountNumber, ToAccountNumber: "0000000000", Amount: 50,
	})
	requireStatus(t, err, codes.NotFound, "DESTINATION_NOT_FOUND")

	list, err := client.ListAccounts(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), list.Accounts[0].Balance)
}

func TestLedgerService_RequestIDHeader(t *testing.T) {
	client := startServer(t, newEngine(t))

	var header metadata.MD
	ctx := metadata.AppendToOutgoingContext(context.Background(), UserIDHeader, "alice", RequestIDHeader, "req-42")
	out := new(ListAccountsResponse)
	err := client.cc.Invoke(ctx, fullMethod("ListAccounts"), &ListAccountsRequest{}, out,
		grpc.Header(&header), grpc.CallContentSubtype("json"))
	require.NoError(t, err)
	assert.Equal(t, []string{"req-42"}, header.Get(RequestIDHeader))
	assert.Empty(t, out.Accounts)
}

// brokenService ListAccounts 回傳基礎設施錯誤，GetHistory 直接 panic
type brokenService struct {
	usecase.Service
}

func (brokenService) ListAccounts(context.Context, string) ([]*domain.Account, error) {
	return nil, fmt.Errorf("%w: list accounts: %w", domain.ErrInfrastructure, errors.New("dial tcp 10.0.0.1:3306: connection refused"))
}

func (brokenService) GetHistory(context.Context, string, string) ([]*domain.TransactionRecord, error) {
	panic("boom")
}

func TestLedgerService_InternalErrorsAreOpaque(t *testing.T) {
	client := startServer(t, brokenService{})
	ctx := context.Background()

	_, err := client.ListAccounts(ctx, "alice")
	requireStatus(t, err, codes.Internal, "INFRASTRUCTURE")
	assert.Equal(t, "internal server error", status.Convert(err).Message())

	_, err = client.GetHistory(ctx, "alice", &GetHistoryRequest{AccountNumber: "1000000000"})
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Equal(t, "internal server error", status.Convert(err).Message())
}

func TestToStatus(t *testing.T) {
	assert.NoError(t, toStatus(nil))

	err := toStatus(fmt.Errorf("%w: amount must be positive", domain.ErrInvalidRequest))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "amount must be positive")

	// 已經是 status 的錯誤原封不動
	orig := status.Error(codes.DeadlineExceeded, "slow")
	assert.Equal(t, orig, toStatus(orig))

	// 用盡取號次數屬於基礎設施錯誤
	err = toStatus(fmt.Errorf("%w: create account: %w", domain.ErrInfrastructure, domain.ErrDuplicateAccountNumber))
	assert.Equal(t, codes.Internal, status.Code(err))
}
