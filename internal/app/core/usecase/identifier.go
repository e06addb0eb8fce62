package usecase

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/bwmarrin/snowflake"
)

const (
	minAccountNumber = 1_000_000_000
	maxAccountNumber = 9_999_999_999
)

// AccountNumberGenerator 產生候選帳號，不保證唯一
type AccountNumberGenerator interface {
	NextAccountNumber() string
}

// ReferenceGenerator 產生交易參考編號
type ReferenceGenerator interface {
	NextReference() string
}

// AccountNumberFunc 讓一般函式滿足 AccountNumberGenerator
type AccountNumberFunc func() string

func (f AccountNumberFunc) NextAccountNumber() string { return f() }

// ReferenceFunc 讓一般函式滿足 ReferenceGenerator
type ReferenceFunc func() string

func (f ReferenceFunc) NextReference() string { return f() }

// RandomAccountNumbers 在 [1000000000, 9999999999] 內均勻取樣
//
// 帳號空間約 9e9，十萬個帳戶時單次碰撞機率約 1e-5。
// 唯一性仍由儲存層的唯一索引保證。
var RandomAccountNumbers AccountNumberGenerator = AccountNumberFunc(func() string {
	n := minAccountNumber + rand.Int64N(maxAccountNumber-minAccountNumber+1)
	return strconv.FormatInt(n, 10)
})

// SnowflakeReferences 以 snowflake ID 作為時間序部分，加上 3 位隨機後綴
// 格式: TXN-<snowflake>-<000..999>
type SnowflakeReferences struct {
	node *snowflake.Node
}

// NewSnowflakeReferences 建立參考編號產生器
//
// 參數:
//
//	nodeID: int64 - snowflake 節點編號 (0..1023)，多個實例必須不同
//
// 回傳值:
//
//	*SnowflakeReferences: 產生器
//	error: 節點編號不合法
func NewSnowflakeReferences(nodeID int64) (*SnowflakeReferences, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &SnowflakeReferences{node: node}, nil
}

func (g *SnowflakeReferences) NextReference() string {
	return fmt.Sprintf("TXN-%d-%03d", g.node.Generate().Int64(), rand.IntN(1000))
}
