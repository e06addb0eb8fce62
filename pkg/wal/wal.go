package wal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"go.uber.org/zap"
)

// 常用的權限常量
const (
	// rw-r--r-- 適用於大多數檔案
	FileModeReadOnly fs.FileMode = 0644

	// rw------- 只有擁有者可讀寫，帳務資料預設使用
	FileModePrivate fs.FileMode = 0600
)

// file 是 *os.File 用到的部分，測試時可注入寫入或 fsync 失敗
type file interface {
	io.ReadWriteSeeker
	io.Closer
	Sync() error
	Truncate(size int64) error
}

// WAL 以 JSON lines 格式追加寫入的 Write-Ahead Log
// 每一行是一個完整的 entry，寫入後立即 fsync
type WAL struct {
	file   file
	mu     sync.Mutex
	logger *zap.Logger
}

// Option 定義了 WAL 的配置選項函數
type Option func(*WAL)

// WithLogger 記錄重放時截斷的殘缺 entry
func WithLogger(logger *zap.Logger) Option {
	return func(w *WAL) {
		w.logger = logger
	}
}

// Open 開啟或建立一個 WAL 檔案
// O_APPEND 每次寫入自動跳到文件末尾；O_CREATE 檔案不存在則建立
func Open(path string, opts ...Option) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileModePrivate)
	if err != nil {
		return nil, fmt.Errorf("open wal %s: %w", path, err)
	}
	return newWAL(f, opts...), nil
}

func newWAL(f file, opts ...Option) *WAL {
	w := &WAL{file: f, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Append 寫入一筆 entry 並刷入硬碟
//
// 回傳 nil 代表該 entry 已持久化。
// 寫入或 fsync 失敗時檔案會截回寫入前的長度，失敗的 entry 不會在重放時出現，
// 後續的 entry 也不會接在殘缺的資料後面。
func (w *WAL) Append(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode wal entry: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	offset, err := w.file.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek wal end: %w", err)
	}
	if _, err := w.file.Write(data); err != nil {
		return w.undo(offset, fmt.Errorf("write wal entry: %w", err))
	}
	if err := w.file.Sync(); err != nil {
		return w.undo(offset, fmt.Errorf("sync wal: %w", err))
	}
	return nil
}

// undo 把檔案截回 offset；截斷本身失敗時兩個錯誤一起回傳
func (w *WAL) undo(offset int64, cause error) error {
	if err := w.file.Truncate(offset); err != nil {
		return errors.Join(cause, fmt.Errorf("truncate wal to %d: %w", offset, err))
	}
	if err := w.file.Sync(); err != nil {
		return errors.Join(cause, fmt.Errorf("sync truncated wal: %w", err))
	}
	return cause
}

// Replay 從頭依序讀取所有 entry
//
// callback 逐筆處理，不會一次將所有資料載入記憶體。
// 沒有換行結尾的最後一行視為寫到一半就中斷的 entry，會被截掉並停止重放；
// 中間任何一行無法解析則回傳錯誤。
func (w *WAL) Replay(callback func(raw json.RawMessage) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek wal: %w", err)
	}

	reader := bufio.NewReader(w.file)
	var offset int64
	for entry := 1; ; entry++ {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(line) == 0 {
				return nil
			}
			return w.dropTornTail(entry, offset, len(line))
		}
		if err != nil {
			return fmt.Errorf("read wal entry %d: %w", entry, err)
		}

		start := offset
		offset += int64(len(line))
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			entry--
			continue
		}
		if !json.Valid(line) {
			return fmt.Errorf("decode wal entry %d at offset %d: invalid JSON", entry, start)
		}
		if err := callback(json.RawMessage(line)); err != nil {
			return fmt.Errorf("replay wal entry %d: %w", entry, err)
		}
	}
}

func (w *WAL) dropTornTail(entry int, offset int64, size int) error {
	w.logger.Warn("Dropping torn WAL entry",
		zap.Int("entry", entry),
		zap.Int64("offset", offset),
		zap.Int("bytes", size),
	)
	if err := w.file.Truncate(offset); err != nil {
		return fmt.Errorf("truncate torn wal entry %d: %w", entry, err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync truncated wal: %w", err)
	}
	return nil
}

// Close 關閉檔案
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
