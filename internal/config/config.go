package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-ledger-engine/pkg/logger"
	"github.com/JoeShih716/go-ledger-engine/pkg/mysql"
	"github.com/JoeShih716/go-ledger-engine/pkg/postgres"
)

// DefaultPath 預設設定檔位置
const DefaultPath = "config/config.yaml"

// 儲存層種類
const (
	DriverMemory   = "memory"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// envPrefix 環境變數覆寫前綴，例如 LEDGER_STORAGE_DRIVER
const envPrefix = "LEDGER_"

type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Log      logger.Config   `yaml:"log"`
	Storage  StorageConfig   `yaml:"storage"`
	MySQL    mysql.Config    `yaml:"mysql"`
	Postgres postgres.Config `yaml:"postgres"`
	Kafka    KafkaConfig     `yaml:"kafka"`
	Engine   EngineConfig    `yaml:"engine"`
}

type ServerConfig struct {
	GRPCAddr        string        `yaml:"grpc_addr"`
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StorageConfig struct {
	// Driver memory|mysql|postgres
	Driver string `yaml:"driver"`
	// WALPath memory 模式的 WAL 檔案，空字串表示不落地
	WALPath string `yaml:"wal_path"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type EngineConfig struct {
	AccountNumberAttempts int           `yaml:"account_number_attempts"`
	AccountNumberBackoff  time.Duration `yaml:"account_number_backoff"`
	SnowflakeNode         int64         `yaml:"snowflake_node"`
}

// Load 讀取設定
//
// 順序: .env (選用) -> YAML 檔 -> LEDGER_* 環境變數覆寫 -> 預設值 -> 檢查
//
// 參數:
//
//	path: string - YAML 檔路徑，檔案不存在時只使用環境變數與預設值
//
// 回傳值:
//
//	*Config: 完整設定
//	error: 檔案格式錯誤或設定不合法
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"SERVER_GRPC_ADDR":  &c.Server.GRPCAddr,
		"SERVER_HTTP_ADDR":  &c.Server.HTTPAddr,
		"LOG_LEVEL":         &c.Log.Level,
		"LOG_FORMAT":        &c.Log.Format,
		"STORAGE_DRIVER":    &c.Storage.Driver,
		"STORAGE_WAL_PATH":  &c.Storage.WALPath,
		"MYSQL_HOST":        &c.MySQL.Host,
		"MYSQL_USER":        &c.MySQL.User,
		"MYSQL_PASSWORD":    &c.MySQL.Password,
		"MYSQL_DB_NAME":     &c.MySQL.DBName,
		"POSTGRES_HOST":     &c.Postgres.Host,
		"POSTGRES_USER":     &c.Postgres.User,
		"POSTGRES_PASSWORD": &c.Postgres.Password,
		"POSTGRES_DB_NAME":  &c.Postgres.DBName,
		"POSTGRES_SSL_MODE": &c.Postgres.SSLMode,
		"KAFKA_TOPIC":       &c.Kafka.Topic,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MYSQL_PORT":    &c.MySQL.Port,
		"POSTGRES_PORT": &c.Postgres.Port,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = n
		}
	}

	if v, ok := lookup("KAFKA_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sKAFKA_ENABLED: %w", envPrefix, err)
		}
		c.Kafka.Enabled = b
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = splitList(v)
	}
	if v, ok := lookup("ENGINE_SNOWFLAKE_NODE"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sENGINE_SNOWFLAKE_NODE: %w", envPrefix, err)
		}
		c.Engine.SnowflakeNode = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = ":50051"
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)

	// 補全 MySQL 預設配置 (如果 yaml 沒寫)
	if c.MySQL.Port == 0 {
		c.MySQL.Port = 3306
	}
	if c.MySQL.MaxOpenConns == 0 {
		c.MySQL.MaxOpenConns = 100
	}
	if c.MySQL.MaxIdleConns == 0 {
		c.MySQL.MaxIdleConns = 10
	}
	if c.MySQL.ConnMaxLifetime == 0 {
		c.MySQL.ConnMaxLifetime = 30 * time.Minute
	}

	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxOpenConns == 0 {
		c.Postgres.MaxOpenConns = 100
	}
	if c.Postgres.MaxIdleConns == 0 {
		c.Postgres.MaxIdleConns = 10
	}
	if c.Postgres.ConnMaxLifetime == 0 {
		c.Postgres.ConnMaxLifetime = 30 * time.Minute
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "ledger.transaction-records"
	}
}

// Validate 檢查設定是否可用
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverMySQL, DriverPostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka is enabled but no brokers are configured")
	}
	if c.Engine.AccountNumberAttempts < 0 {
		return errors.New("engine.account_number_attempts must not be negative")
	}
	// snowflake 預設 10 bits node
	if c.Engine.SnowflakeNode < 0 || c.Engine.SnowflakeNode > 1023 {
		return fmt.Errorf("engine.snowflake_node must be between 0 and 1023, got %d", c.Engine.SnowflakeNode)
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
