package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-ledger-engine/internal/app/core/domain"
)

// RecordPublisher 發布已提交的交易紀錄
type RecordPublisher interface {
	Publish(ctx context.Context, records ...*domain.TransactionRecord) error
}

// PublishingService 在異動提交後發布交易紀錄
// 發布失敗只記 log，不影響已提交的結果
type PublishingService struct {
	Service
	publisher RecordPublisher
	logger    *zap.Logger
}

func NewPublishingService(next Service, publisher RecordPublisher, logger *zap.Logger) *PublishingService {
	return &PublishingService{
		Service:   next,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *PublishingService) Deposit(ctx context.Context, userID, accountNumber string, amount int64) (*domain.TransactionRecord, error) {
	record, err := s.Service.Deposit(ctx, userID, accountNumber, amount)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, record)
	return record, nil
}

func (s *PublishingService) Withdraw(ctx context.Context, userID, accountNumber string, amount int64) (*domain.TransactionRecord, error) {
	record, err := s.Service.Withdraw(ctx, userID, accountNumber, amount)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, record)
	return record, nil
}

func (s *PublishingService) Transfer(ctx context.Context, req TransferRequest) (*domain.TransferReceipt, error) {
	receipt, err := s.Service.Transfer(ctx, req)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, receipt.Records()...)
	return receipt, nil
}

func (s *PublishingService) publish(ctx context.Context, records ...*domain.TransactionRecord) {
	if err := s.publisher.Publish(ctx, records...); err != nil {
		s.logger.Error("Failed to publish transaction records",
			zap.String("reference_number", records[0].ReferenceNumber),
			zap.Int("count", len(records)),
			zap.Error(err),
		)
	}
}

var _ Service = (*PublishingService)(nil)
