package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-ledger-engine/internal/app/core/domain"
	"github.com/JoeShih716/go-ledger-engine/internal/app/core/usecase"
)

// messageWriter 是 *kafka.Writer 用到的部分，測試時可替換
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RecordEvent 發布到 Kafka 的交易紀錄事件
type RecordEvent struct {
	EventID              string    `json:"event_id"`
	RecordID             int64     `json:"record_id"`
	AccountNumber        string    `json:"account_number"`
	Kind                 string    `json:"kind"`
	Amount               int64     `json:"amount"`
	BalanceBefore        int64     `json:"balance_before"`
	BalanceAfter         int64     `json:"balance_after"`
	Description          string    `json:"description,omitempty"`
	ReferenceNumber      string    `json:"reference_number"`
	RelatedAccountNumber *string   `json:"related_account_number,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// Publisher 將交易紀錄寫入 Kafka
//
// message key 為帳號，同一帳戶的事件落在同一個 partition。
// 發布發生在工作單元提交並釋放鎖之後，同一帳戶的兩次並行操作可能以與提交相反的順序寫入，
// 消費端應以 record_id 或 balance_before → balance_after 的餘額鏈排序，不能依賴 partition 內的順序。
type Publisher struct {
	writer  messageWriter
	timeout time.Duration
	logger  *zap.Logger
}

// NewPublisher 建立 Kafka Publisher
//
// 參數:
//
//	brokers: []string - broker 位址
//	topic: string - 交易紀錄 topic
//	logger: *zap.Logger - kafka-go 內部 log 會轉到這裡
func NewPublisher(brokers []string, topic string, logger *zap.Logger) *Publisher {
	writer := newWriter(brokers, topic, logger)
	return newPublisher(writer, writer.WriteTimeout, logger)
}

// batchTimeout 同步寫入時每次 WriteMessages 最多等這麼久才送出未滿的批次
// kafka-go 預設 1 秒，會讓每個異動請求都多等 1 秒
const batchTimeout = 10 * time.Millisecond

// newWriter 維持同步寫入，發布失敗才能回報給呼叫端記錄
func newWriter(brokers []string, topic string, logger *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...))
		}),
	}
}

func newPublisher(writer messageWriter, timeout time.Duration, logger *zap.Logger) *Publisher {
	return &Publisher{
		writer:  writer,
		timeout: timeout,
		logger:  logger,
	}
}

// Publish 一次寫入所有紀錄 (轉帳的兩筆在同一批)
func (p *Publisher) Publish(ctx context.Context, records ...*domain.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		value, err := json.Marshal(newRecordEvent(r))
		if err != nil {
			return fmt.Errorf("encode record %s: %w", r.ReferenceNumber, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(r.AccountNumber),
			Value: value,
			Headers: []kafka.Header{
				{Key: "kind", Value: []byte(r.Kind.String())},
			},
		})
	}

	// 呼叫端的 context 可能在回應後就被取消，發布使用獨立的逾時
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d records to kafka: %w", len(msgs), err)
	}
	p.logger.Debug("Records published to Kafka",
		zap.String("reference_number", records[0].ReferenceNumber),
		zap.Int("count", len(msgs)),
	)
	return nil
}

func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka publisher: %w", err)
	}
	p.logger.Info("Kafka publisher closed.")
	return nil
}

func newRecordEvent(r *domain.TransactionRecord) RecordEvent {
	return RecordEvent{
		EventID:              uuid.NewString(),
		RecordID:             r.ID,
		AccountNumber:        r.AccountNumber,
		Kind:                 r.Kind.String(),
		Amount:               r.Amount,
		BalanceBefore:        r.BalanceBefore,
		BalanceAfter:         r.BalanceAfter,
		Description:          r.Description,
		ReferenceNumber:      r.ReferenceNumber,
		RelatedAccountNumber: r.RelatedAccountNumber,
		CreatedAt:            r.CreatedAt,
	}
}

// NopPublisher 未啟用 Kafka 時使用
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...*domain.TransactionRecord) error { return nil }

var (
	_ usecase.RecordPublisher = (*Publisher)(nil)
	_ usecase.RecordPublisher = NopPublisher{}
)
