package bootstrap

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 聚合服务运行所需的全部配置。
// 基础值来自 yaml 文件，敏感信息（网关密钥、DSN 等）通过环境变量覆盖，避免落盘。
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Infra     InfraConfig     `yaml:"infra"`
}

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Port        int    `yaml:"port"`
	LogLevel    string `yaml:"log_level"`
	FrontendURL string `yaml:"frontend_url"`
	BackendURL  string `yaml:"backend_url"`
}

type GatewayConfig struct {
	BaseURL   string `yaml:"base_url"`
	GatewayID string `yaml:"gateway_id"`
	APIKey    string `yaml:"api_key"`
	Secret    string `yaml:"secret"`
}

type StoreConfig struct {
	// Backend 取值 mysql / memory，memory 仅用于本地联调
	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	DB        int    `yaml:"db"`
	CursorKey string `yaml:"cursor_key"`
}

type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	AlertTopic string   `yaml:"alert_topic"`
}

type ZookeeperConfig struct {
	Servers []string `yaml:"servers"`
}

type ReconcileConfig struct {
	// LockBackend 取值 memory / zookeeper
	LockBackend      string        `yaml:"lock_backend"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	TickTimeout      time.Duration `yaml:"tick_timeout"`
	PerOrderTimeout  time.Duration `yaml:"per_order_timeout"`
	SweepParallelism int64         `yaml:"sweep_parallelism"`
	OrderExpiry      time.Duration `yaml:"order_expiry"`
	EventAgeLimit    time.Duration `yaml:"event_age_limit"`
	LockLease        time.Duration `yaml:"lock_lease"`
	DedupCapacity    int           `yaml:"dedup_capacity"`
	FinalizeRetries  int           `yaml:"finalize_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

type InfraConfig struct {
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
}

var currentConfig Config

// Init 加载配置并缓存为进程级配置，必须在 StartService 之前调用。
func Init() {
	cfg, err := Load(getEnv("CONFIG_PATH", "config/payment.yaml"))
	if err != nil {
		panic(fmt.Sprintf("FATAL: failed to load config: %v", err))
	}
	currentConfig = cfg
}

// GetCurrentConfig 返回进程级配置。
func GetCurrentConfig() Config {
	return currentConfig
}

// Load 读取 yaml 配置，应用环境变量覆盖并校验。
// 配置文件不存在时不视为错误，直接使用默认值加环境变量。
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if raw, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		Service: ServiceConfig{
			Name:        "payment-service",
			Port:        8086,
			LogLevel:    "info",
			FrontendURL: "http://localhost:3000",
			BackendURL:  "http://localhost:8086",
		},
		Gateway: GatewayConfig{
			BaseURL: "https://api.onpay.io",
		},
		Store: StoreConfig{
			Backend: "mysql",
			DSN:     "root:root@tcp(localhost:3306)/paysync?charset=utf8mb4&parseTime=True&loc=UTC",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			CursorKey: "paysync:gateway:event_cursor",
		},
		Kafka: KafkaConfig{
			Brokers:    []string{"localhost:9092"},
			AlertTopic: "payment-alerts",
		},
		Zookeeper: ZookeeperConfig{
			Servers: []string{"localhost:2181"},
		},
		Reconcile: ReconcileConfig{
			LockBackend:      "memory",
			SweepInterval:    time.Minute,
			PollInterval:     time.Minute,
			TickTimeout:      45 * time.Second,
			PerOrderTimeout:  5 * time.Second,
			SweepParallelism: 4,
			OrderExpiry:      30 * time.Minute,
			EventAgeLimit:    7 * 24 * time.Hour,
			LockLease:        30 * time.Second,
			DedupCapacity:    1000,
			FinalizeRetries:  3,
			RetryBackoff:     200 * time.Millisecond,
		},
		Infra: InfraConfig{
			JaegerEndpoint: "http://localhost:14268/api/traces",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.Gateway.APIKey = getEnv("ONPAY_API_KEY", cfg.Gateway.APIKey)
	cfg.Gateway.Secret = getEnv("ONPAY_SECRET", cfg.Gateway.Secret)
	cfg.Gateway.GatewayID = getEnv("ONPAY_GATEWAY_ID", cfg.Gateway.GatewayID)
	cfg.Store.DSN = getEnv("MYSQL_DSN", cfg.Store.DSN)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Service.FrontendURL = getEnv("FRONTEND_URL", cfg.Service.FrontendURL)
	cfg.Service.BackendURL = getEnv("BACKEND_URL", cfg.Service.BackendURL)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Kafka.Brokers = splitCSV(brokers)
	}
}

func (c Config) validate() error {
	if c.Service.Port <= 0 {
		return fmt.Errorf("service.port must be > 0")
	}
	if c.Gateway.Secret == "" {
		return fmt.Errorf("gateway secret must not be empty (set ONPAY_SECRET)")
	}
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url must not be empty")
	}
	switch c.Reconcile.LockBackend {
	case "memory", "zookeeper":
	default:
		return fmt.Errorf("reconcile.lock_backend must be memory or zookeeper, got %q", c.Reconcile.LockBackend)
	}
	switch c.Store.Backend {
	case "mysql", "memory":
	default:
		return fmt.Errorf("store.backend must be mysql or memory, got %q", c.Store.Backend)
	}
	if c.Reconcile.DedupCapacity <= 0 {
		return fmt.Errorf("reconcile.dedup_capacity must be > 0")
	}
	if c.Reconcile.SweepParallelism <= 0 {
		return fmt.Errorf("reconcile.sweep_parallelism must be > 0")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must not be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
