package grpc

import (
	"context"

	"github.com/JoeShih716/go-ledger-engine/internal/app/core/usecase"
)

// GrpcServer 將 LedgerService 請求轉給 usecase.Service
// 呼叫者身分取自 x-user-id，缺少時由 usecase 回報 Unauthorized
type GrpcServer struct {
	service usecase.Service
}

func NewGrpcServer(service usecase.Service) *GrpcServer {
	return &GrpcServer{
		service: service,
	}
}

func (s *GrpcServer) CreateAccount(ctx context.Context, req *CreateAccountRequest) (*Account, error) {
	account, err := s.service.CreateAccount(ctx, UserID(ctx), req.DisplayName)
	if err != nil {
		return nil, toStatus(err)
	}
	return toAccount(account), nil
}

func (s *GrpcServer) ListAccounts(ctx context.Context, _ *ListAccountsRequest) (*ListAccountsResponse, error) {
	accounts, err := s.service.ListAccounts(ctx, UserID(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &ListAccountsResponse{Accounts: make([]*Account, 0, len(accounts))}
	for _, a := range accounts {
		resp.Accounts = append(resp.Accounts, toAccount(a))
	}
	return resp, nil
}

func (s *GrpcServer) Deposit(ctx context.Context, req *DepositRequest) (*Record, error) {
	record, err := s.service.Deposit(ctx, UserID(ctx), req.AccountNumber, req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return toRecord(record), nil
}

func (s *GrpcServer) Withdraw(ctx context.Context, req *WithdrawRequest) (*Record, error) {
	record, err := s.service.Withdraw(ctx, UserID(ctx), req.AccountNumber, req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return toRecord(record), nil
}

func (s *GrpcServer) Transfer(ctx context.Context, req *TransferRequest) (*TransferResponse, error) {
	receipt, err := s.service.Transfer(ctx, usecase.TransferRequest{
		UserID:            UserID(ctx),
		FromAccountNumber: req.FromAccountNumber,
		ToAccountNumber:   req.ToAccountNumber,
		Amount:            req.Amount,
		Description:       req.Description,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &TransferResponse{
		Out: toRecord(receipt.Out),
		In:  toRecord(receipt.In),
	}, nil
}

func (s *GrpcServer) GetHistory(ctx context.Context, req *GetHistoryRequest) (*GetHistoryResponse, error) {
	records, err := s.service.GetHistory(ctx, UserID(ctx), req.AccountNumber)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetHistoryResponse{Records: toRecords(records)}, nil
}

var _ LedgerServiceServer = (*GrpcServer)(nil)
