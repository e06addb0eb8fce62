package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/JoeShih716/go-ledger-engine/internal/app/core/domain"
	"github.com/JoeShih716/go-ledger-engine/internal/app/core/usecase"
	"github.com/JoeShih716/go-ledger-engine/pkg/wal"
)

// MemoryLedger 是一個使用 Mutex 實現的記憶體帳本
//
// 結構:
//
//	mu: 工作單元期間持有寫鎖，同一時間只有一個工作單元在執行
//	accounts / byNumber: 帳戶資料與帳號索引 (帳號唯一)
//	records / references: 交易紀錄與參考編號索引 (參考編號唯一)
//	wal: 選用的 Write-Ahead Log，每個提交的工作單元寫一筆
type MemoryLedger struct {
	mu sync.RWMutex

	accounts      map[int64]*domain.Account
	byNumber      map[string]int64
	records       []*domain.TransactionRecord
	references    map[string]struct{}
	nextAccountID int64
	nextRecordID  int64

	now func() time.Time
	wal *wal.WAL
}

// Option 定義了 MemoryLedger 的配置選項函數
type Option func(*MemoryLedger)

// WithWAL 每個提交的工作單元都寫入 WAL，建立時從 WAL 恢復狀態
func WithWAL(w *wal.WAL) Option {
	return func(l *MemoryLedger) {
		l.wal = w
	}
}

// WithClock 指定帳戶建立時間的來源
func WithClock(now func() time.Time) Option {
	return func(l *MemoryLedger) {
		l.now = now
	}
}

// NewMemoryLedger 建立一個新的 MemoryLedger 實例
//
// 參數:
//
//	opts: ...Option - 選用設定 (WAL、時間來源)
//
// 回傳:
//
//	*MemoryLedger: MemoryLedger 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewMemoryLedger(opts ...Option) (*MemoryLedger, error) {
	l := &MemoryLedger{
		accounts:   make(map[int64]*domain.Account),
		byNumber:   make(map[string]int64),
		references: make(map[string]struct{}),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.wal != nil {
		if err := l.recoverFromWAL(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// walEntry 一個提交的工作單元
// Accounts 為異動後的完整帳戶快照，Records 為新增的紀錄
type walEntry struct {
	Accounts []domain.Account           `json:"accounts,omitempty"`
	Records  []domain.TransactionRecord `json:"records,omitempty"`
}

// recoverFromWAL 從 WAL 檔案恢復帳本狀態
// 只有 NewMemoryLedger 呼叫，無需 Lock (單執行緒)
func (l *MemoryLedger) recoverFromWAL() error {
	return l.wal.Replay(func(raw json.RawMessage) error {
		var entry walEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return err
		}
		for i := range entry.Accounts {
			account := entry.Accounts[i]
			l.accounts[account.ID] = &account
			l.byNumber[account.AccountNumber] = account.ID
			l.nextAccountID = max(l.nextAccountID, account.ID)
		}
		for i := range entry.Records {
			record := entry.Records[i]
			l.records = append(l.records, &record)
			l.references[record.ReferenceNumber] = struct{}{}
			l.nextRecordID = max(l.nextRecordID, record.ID)
		}
		return nil
	})
}

func (l *MemoryLedger) Accounts() usecase.AccountStore {
	return &accountStore{l: l}
}

func (l *MemoryLedger) Journal() usecase.TransactionJournal {
	return &journal{l: l}
}

// Transaction 取得寫鎖後執行 fn，失敗或 panic 時依 undo 紀錄回滾
func (l *MemoryLedger) Transaction(ctx context.Context, fn func(tx usecase.Ledger) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := l.begin()
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	if err := tx.commit(); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// Ping 記憶體帳本永遠可用
func (l *MemoryLedger) Ping(ctx context.Context) error {
	return nil
}

// txLedger 工作單元內的視圖，呼叫端已持有寫鎖
type txLedger struct {
	l *MemoryLedger

	created       []int64
	balances      map[int64]int64 // 異動前的餘額
	recordMark    int
	nextAccountID int64
	nextRecordID  int64
}

func (l *MemoryLedger) begin() *txLedger {
	return &txLedger{
		l:             l,
		balances:      make(map[int64]int64),
		recordMark:    len(l.records),
		nextAccountID: l.nextAccountID,
		nextRecordID:  l.nextRecordID,
	}
}

func (tx *txLedger) Accounts() usecase.AccountStore {
	return &accountStore{l: tx.l, tx: tx}
}

func (tx *txLedger) Journal() usecase.TransactionJournal {
	return &journal{l: tx.l, tx: tx}
}

// Transaction 巢狀呼叫併入目前的工作單元
func (tx *txLedger) Transaction(ctx context.Context, fn func(tx usecase.Ledger) error) error {
	return fn(tx)
}

// commit 將異動寫入 WAL (若有設定)
//
// 寫入或 fsync 失敗時 WAL 會截回寫入前的長度，記憶體隨後回滾，
// 重啟重放時不會出現這個已回報失敗的工作單元。
func (tx *txLedger) commit() error {
	l := tx.l
	if l.wal == nil {
		return nil
	}

	var entry walEntry
	touched := make(map[int64]struct{}, len(tx.created)+len(tx.balances))
	for _, id := range tx.created {
		touched[id] = struct{}{}
	}
	for id := range tx.balances {
		touched[id] = struct{}{}
	}
	for id := range touched {
		entry.Accounts = append(entry.Accounts, *l.accounts[id])
	}
	slices.SortFunc(entry.Accounts, func(a, b domain.Account) int { return cmp.Compare(a.ID, b.ID) })
	for _, r := range l.records[tx.recordMark:] {
		entry.Records = append(entry.Records, *r)
	}
	if len(entry.Accounts) == 0 && len(entry.Records) == 0 {
		return nil
	}
	return l.wal.Append(entry)
}

// rollback 還原本次工作單元的所有異動
func (tx *txLedger) rollback() {
	l := tx.l
	for id, balance := range tx.balances {
		if account, ok := l.accounts[id]; ok {
			account.Balance = balance
		}
	}
	for _, id := range tx.created {
		delete(l.byNumber, l.accounts[id].AccountNumber)
		delete(l.accounts, id)
	}
	for _, r := range l.records[tx.recordMark:] {
		delete(l.references, r.ReferenceNumber)
	}
	clear(l.records[tx.recordMark:])
	l.records = l.records[:tx.recordMark]
	l.nextAccountID = tx.nextAccountID
	l.nextRecordID = tx.nextRecordID
}

// accountStore 實作 usecase.AccountStore
// tx 為 nil 時代表在工作單元外，讀取自行加讀鎖，寫入包成單一操作的工作單元
type accountStore struct {
	l  *MemoryLedger
	tx *txLedger
}

func (s *accountStore) read() func() {
	if s.tx != nil {
		return func() {}
	}
	s.l.mu.RLock()
	return s.l.mu.RUnlock
}

func (s *accountStore) Create(ctx context.Context, ownerID, accountNumber, displayName string) (*domain.Account, error) {
	if s.tx == nil {
		var account *domain.Account
		err := s.l.Transaction(ctx, func(tx usecase.Ledger) error {
			var err error
			account, err = tx.Accounts().Create(ctx, ownerID, accountNumber, displayName)
			return err
		})
		return account, err
	}

	l := s.l
	if _, ok := l.byNumber[accountNumber]; ok {
		return nil, domain.ErrDuplicateAccountNumber
	}
	l.nextAccountID++
	account := &domain.Account{
		ID:            l.nextAccountID,
		OwnerID:       ownerID,
		AccountNumber: accountNumber,
		DisplayName:   displayName,
		CreatedAt:     l.now(),
	}
	l.accounts[account.ID] = account
	l.byNumber[accountNumber] = account.ID
	s.tx.created = append(s.tx.created, account.ID)
	return account.Clone(), nil
}

func (s *accountStore) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	defer s.read()()
	account, ok := s.l.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return account.Clone(), nil
}

func (s *accountStore) FindByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	defer s.read()()
	id, ok := s.l.byNumber[accountNumber]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return s.l.accounts[id].Clone(), nil
}

func (s *accountStore) ExistsByNumber(ctx context.Context, accountNumber string) (bool, error) {
	defer s.read()()
	_, ok := s.l.byNumber[accountNumber]
	return ok, nil
}

func (s *accountStore) FindAllByOwner(ctx context.Context, ownerID string) ([]*domain.Account, error) {
	defer s.read()()
	var owned []*domain.Account
	for _, account := range s.l.accounts {
		if account.OwnedBy(ownerID) {
			owned = append(owned, account.Clone())
		}
	}
	slices.SortFunc(owned, func(a, b *domain.Account) int { return cmp.Compare(a.ID, b.ID) })
	return owned, nil
}

func (s *accountStore) AdjustBalance(ctx context.Context, id int64, delta int64) (*domain.Account, error) {
	if s.tx == nil {
		var account *domain.Account
		err := s.l.Transaction(ctx, func(tx usecase.Ledger) error {
			var err error
			account, err = tx.Accounts().AdjustBalance(ctx, id, delta)
			return err
		})
		return account, err
	}

	account, ok := s.l.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if _, seen := s.tx.balances[id]; !seen {
		s.tx.balances[id] = account.Balance
	}
	account.Balance += delta
	return account.Clone(), nil
}

// journal 實作 usecase.TransactionJournal
type journal struct {
	l  *MemoryLedger
	tx *txLedger
}

func (j *journal) Append(ctx context.Context, record *domain.TransactionRecord) (*domain.TransactionRecord, error) {
	if j.tx == nil {
		var appended *domain.TransactionRecord
		err := j.l.Transaction(ctx, func(tx usecase.Ledger) error {
			var err error
			appended, err = tx.Journal().Append(ctx, record)
			return err
		})
		return appended, err
	}

	l := j.l
	if _, ok := l.references[record.ReferenceNumber]; ok {
		return nil, fmt.Errorf("memory: duplicate reference number %q", record.ReferenceNumber)
	}
	stored := record.Clone()
	l.nextRecordID++
	stored.ID = l.nextRecordID
	l.records = append(l.records, stored)
	l.references[stored.ReferenceNumber] = struct{}{}
	return stored.Clone(), nil
}

func (j *journal) FindByAccount(ctx context.Context, accountID int64) ([]*domain.TransactionRecord, error) {
	if j.tx == nil {
		j.l.mu.RLock()
		defer j.l.mu.RUnlock()
	}
	account, ok := j.l.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	var history []*domain.TransactionRecord
	for i := len(j.l.records) - 1; i >= 0; i-- {
		if r := j.l.records[i]; r.AccountNumber == account.AccountNumber {
			history = append(history, r.Clone())
		}
	}
	slices.SortStableFunc(history, func(a, b *domain.TransactionRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return history, nil
}

var (
	_ usecase.Ledger = (*MemoryLedger)(nil)
	_ usecase.Ledger = (*txLedger)(nil)
)
