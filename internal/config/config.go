package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SyncConfig 订单同步引擎配置
type SyncConfig struct {
	// 新订单同步任务
	NewOrdersInterval int // 轮询间隔（秒）
	ActiveHourStart   int // 活跃时间窗口开始（小时，本地时间）
	ActiveHourEnd     int // 活跃时间窗口结束（小时）

	// 物流状态同步任务（粗粒度）
	StatusSyncInterval int // 轮询间隔（秒）

	// 清理任务（每天一次）
	CleanupHour      int // 执行时刻（小时）
	RunRetentionDays int // SyncRun 保留天数

	// 分页抓取
	MaxPagesPerRun     int // 单次运行的最大请求页数（防止上游分页不收敛）
	MinRequestDelayMs  int // 同一店铺连续请求之间的最小间隔（毫秒）
	DefaultPageSize    int // 店铺未配置时的默认页大小

	// 回扫（状态漂移检测）
	DriftScanEnabled  bool
	DriftScanWindow   int  // 回扫最近 N 个已同步外部ID
	DriftScanMaxCalls int  // 回扫允许的最大 API 调用次数
	DriftAutoReset    bool // 检测到游标漂移时是否自动回退（默认只标记）

	// 并发与超时
	TenantWorkers  int // 跨店铺的有界并发数
	RunTimeoutSecs int // 单店铺单次运行的超时上限
}

// DeliveryConfig 物流状态服务配置
type DeliveryConfig struct {
	Enabled     bool
	BaseURL     string
	Credentials map[string]string // credential_key -> token，由店铺配置选择
	BatchLimit  int               // 每次运行每店铺最多核对的订单数
}

// MQTTConfig MQTT 配置（用于外部触发同步）
type MQTTConfig struct {
	Enabled  bool
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

// Config storesync 服务配置
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled    bool
	Database     DatabaseConfig
	RedisEnabled bool
	Redis        RedisConfig
	Log          struct {
		Level  string
		Format string
	}
	Sync     SyncConfig
	Delivery DeliveryConfig
	MQTT     MQTTConfig
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "storesync")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	// Redis 仅用于运行锁/漂移标记，默认关闭（本地 go run 不依赖 Redis）
	cfg.RedisEnabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	// 同步引擎
	cfg.Sync.NewOrdersInterval = parseInt(getEnv("SYNC_NEW_ORDERS_INTERVAL", "300"), 300)
	cfg.Sync.ActiveHourStart = parseInt(getEnv("SYNC_ACTIVE_HOUR_START", "7"), 7)
	cfg.Sync.ActiveHourEnd = parseInt(getEnv("SYNC_ACTIVE_HOUR_END", "23"), 23)
	cfg.Sync.StatusSyncInterval = parseInt(getEnv("SYNC_STATUS_INTERVAL", "1800"), 1800)
	cfg.Sync.CleanupHour = parseInt(getEnv("SYNC_CLEANUP_HOUR", "4"), 4)
	cfg.Sync.RunRetentionDays = parseInt(getEnv("SYNC_RUN_RETENTION_DAYS", "30"), 30)
	cfg.Sync.MaxPagesPerRun = parseInt(getEnv("SYNC_MAX_PAGES_PER_RUN", "20"), 20)
	cfg.Sync.MinRequestDelayMs = parseInt(getEnv("SYNC_MIN_REQUEST_DELAY_MS", "500"), 500)
	cfg.Sync.DefaultPageSize = parseInt(getEnv("SYNC_DEFAULT_PAGE_SIZE", "50"), 50)
	cfg.Sync.DriftScanEnabled = getEnv("SYNC_DRIFT_SCAN_ENABLED", "true") == "true"
	cfg.Sync.DriftScanWindow = parseInt(getEnv("SYNC_DRIFT_SCAN_WINDOW", "100"), 100)
	cfg.Sync.DriftScanMaxCalls = parseInt(getEnv("SYNC_DRIFT_SCAN_MAX_CALLS", "10"), 10)
	cfg.Sync.DriftAutoReset = getEnv("SYNC_DRIFT_AUTO_RESET", "false") == "true"
	cfg.Sync.TenantWorkers = parseInt(getEnv("SYNC_TENANT_WORKERS", "3"), 3)
	cfg.Sync.RunTimeoutSecs = parseInt(getEnv("SYNC_RUN_TIMEOUT_SECS", "60"), 60)

	// 物流状态服务
	cfg.Delivery.Enabled = getEnv("DELIVERY_ENABLED", "false") == "true"
	cfg.Delivery.BaseURL = getEnv("DELIVERY_BASE_URL", "")
	cfg.Delivery.Credentials = parseCredentials(getEnv("DELIVERY_CREDENTIALS", "{}"))
	cfg.Delivery.BatchLimit = parseInt(getEnv("DELIVERY_BATCH_LIMIT", "200"), 200)

	// MQTT 触发（默认禁用）
	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "storesync-trigger")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "storesync/trigger")

	return cfg
}

// parseCredentials 解析 DELIVERY_CREDENTIALS 环境变量
// 格式：JSON 对象，credential_key -> token
func parseCredentials(s string) map[string]string {
	creds := map[string]string{}
	if s == "" {
		return creds
	}
	if err := json.Unmarshal([]byte(s), &creds); err != nil {
		return map[string]string{}
	}
	return creds
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
