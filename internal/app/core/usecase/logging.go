package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-ledger-engine/internal/app/core/domain"
)

// LoggingService 在每個操作外層記錄開始、結果與耗時
// 業務拒絕記 Warn，基礎設施錯誤記 Error
type LoggingService struct {
	next   Service
	logger *zap.Logger
}

func NewLoggingService(next Service, logger *zap.Logger) *LoggingService {
	return &LoggingService{
		next:   next,
		logger: logger,
	}
}

func (s *LoggingService) CreateAccount(ctx context.Context, userID, displayName string) (*domain.Account, error) {
	done := s.start("create_account", zap.String("user_id", userID))
	account, err := s.next.CreateAccount(ctx, userID, displayName)
	if err == nil {
		done(nil, zap.String("account_number", account.AccountNumber))
		return account, nil
	}
	done(err)
	return nil, err
}

func (s *LoggingService) ListAccounts(ctx context.Context, userID string) ([]*domain.Account, error) {
	done := s.start("list_accounts", zap.String("user_id", userID))
	accounts, err := s.next.ListAccounts(ctx, userID)
	done(err, zap.Int("count", len(accounts)))
	return accounts, err
}

func (s *LoggingService) Deposit(ctx context.Context, userID, accountNumber string, amount int64) (*domain.TransactionRecord, error) {
	done := s.start("deposit",
		zap.String("user_id", userID),
		zap.String("account_number", accountNumber),
		zap.Int64("amount", amount),
	)
	record, err := s.next.Deposit(ctx, userID, accountNumber, amount)
	done(err, recordFields(record)...)
	return record, err
}

func (s *LoggingService) Withdraw(ctx context.Context, userID, accountNumber string, amount int64) (*domain.TransactionRecord, error) {
	done := s.start("withdraw",
		zap.String("user_id", userID),
		zap.String("account_number", accountNumber),
		zap.Int64("amount", amount),
	)
	record, err := s.next.Withdraw(ctx, userID, accountNumber, amount)
	done(err, recordFields(record)...)
	return record, err
}

func (s *LoggingService) Transfer(ctx context.Context, req TransferRequest) (*domain.TransferReceipt, error) {
	done := s.start("transfer",
		zap.String("user_id", req.UserID),
		zap.String("from_account_number", req.FromAccountNumber),
		zap.String("to_account_number", req.ToAccountNumber),
		zap.Int64("amount", req.Amount),
	)
	receipt, err := s.next.Transfer(ctx, req)
	if receipt != nil {
		done(err, zap.String("reference_number", receipt.Out.ReferenceNumber))
		return receipt, err
	}
	done(err)
	return receipt, err
}

func (s *LoggingService) GetHistory(ctx context.Context, userID, accountNumber string) ([]*domain.TransactionRecord, error) {
	done := s.start("get_history",
		zap.String("user_id", userID),
		zap.String("account_number", accountNumber),
	)
	records, err := s.next.GetHistory(ctx, userID, accountNumber)
	done(err, zap.Int("count", len(records)))
	return records, err
}

// start 記錄操作開始，回傳結束時呼叫的函式
func (s *LoggingService) start(op string, fields ...zap.Field) func(err error, result ...zap.Field) {
	logger := s.logger.With(zap.String("operation", op)).With(fields...)
	logger.Debug("operation started")
	began := time.Now()

	return func(err error, result ...zap.Field) {
		fields := append([]zap.Field{zap.Duration("latency", time.Since(began))}, result...)
		switch {
		case err == nil:
			logger.Info("operation succeeded", fields...)
		case domain.IsBusinessError(err):
			fields = append(fields, zap.String("reason", domain.Reason(err)), zap.Error(err))
			logger.Warn("operation rejected", fields...)
		default:
			logger.Error("operation failed", append(fields, zap.Error(err))...)
		}
	}
}

func recordFields(r *domain.TransactionRecord) []zap.Field {
	if r == nil {
		return nil
	}
	return []zap.Field{
		zap.String("reference_number", r.ReferenceNumber),
		zap.Int64("balance_after", r.BalanceAfter),
	}
}

var _ Service = (*LoggingService)(nil)
