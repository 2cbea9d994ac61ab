package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Consul    ConsulConfig    `mapstructure:"consul"`
	Mysql     MysqlConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	Tracer    TracerConfig    `mapstructure:"tracer"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
}

type ServiceConfig struct {
	Name string `mapstructure:"name"`
	Port int    `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

// ConsulConfig Address 为空时不注册
type ConsulConfig struct {
	Address string `mapstructure:"address"`
}

type MysqlConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DbName       string `mapstructure:"dbname"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	LogSQL       bool   `mapstructure:"log_sql"`

	// SlowThreshold 超过该耗时的 SQL 记 warn，0 表示不记录
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
}

func (c MysqlConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DbName)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	Db       int    `mapstructure:"db"`
}

type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Queue    string `mapstructure:"queue"`
	Prefetch int    `mapstructure:"prefetch"`
}

type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
}

// PaymentConfig Provider 为 demo 或 chapa
type PaymentConfig struct {
	Provider      string        `mapstructure:"provider"`
	Timeout       time.Duration `mapstructure:"timeout"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	Chapa         ChapaConfig   `mapstructure:"chapa"`
}

type ChapaConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	SecretKey   string `mapstructure:"secret_key"`
	Currency    string `mapstructure:"currency"`
	CallbackURL string `mapstructure:"callback_url"`
	ReturnURL   string `mapstructure:"return_url"`
}

// TracerConfig Endpoint 为空时不上报
type TracerConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// RateLimitConfig 每秒允许的请求数，0 表示不限流
type RateLimitConfig struct {
	OrderCreateQPS float64 `mapstructure:"order_create_qps"`
	OrderPayQPS    float64 `mapstructure:"order_pay_qps"`
}

// StorageConfig Driver 为 mysql 或 memory
type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// BootstrapConfig 首次启动时创建的管理员
type BootstrapConfig struct {
	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassword string `mapstructure:"admin_password"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "storefront-gateway")
	v.SetDefault("service.port", 8080)
	v.SetDefault("service.env", "development")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.max_open_conns", 100)
	v.SetDefault("mysql.slow_threshold", 200*time.Millisecond)
	v.SetDefault("rabbitmq.queue", "order_confirmation")
	v.SetDefault("rabbitmq.prefetch", 10)
	v.SetDefault("mongo.database", "storefront")
	v.SetDefault("mongo.collection", "audit_logs")
	v.SetDefault("jwt.access_ttl", 60*time.Minute)
	v.SetDefault("jwt.refresh_ttl", 24*time.Hour)
	v.SetDefault("payment.provider", "demo")
	v.SetDefault("payment.timeout", 10*time.Second)
	v.SetDefault("payment.chapa.base_url", "https://api.chapa.co/v1")
	v.SetDefault("payment.chapa.currency", "ETB")
	v.SetDefault("log.level", "info")
	v.SetDefault("storage.driver", "memory")
}

// LoadConfig 读取 path 目录下的 config.yaml，文件不存在时只用默认值
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.ApplyEnv()
	return &c, nil
}

// ApplyEnv 环境变量覆盖配置文件 (Docker/K8s 部署)
func (c *Config) ApplyEnv() {
	if v := os.Getenv("MYSQL_HOST"); v != "" {
		c.Mysql.Host = v
	}
	if v := os.Getenv("MYSQL_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Mysql.Port = p
		}
	}
	if v := os.Getenv("MYSQL_USER"); v != "" {
		c.Mysql.User = v
	}
	if v := os.Getenv("MYSQL_PASSWORD"); v != "" {
		c.Mysql.Password = v
	}
	if v := os.Getenv("MYSQL_DBNAME"); v != "" {
		c.Mysql.DbName = v
	}
	if v := os.Getenv("REDIS_ADDRESS"); v != "" {
		c.Redis.Address = v
	}
	if v := os.Getenv("CONSUL_ADDRESS"); v != "" {
		c.Consul.Address = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		c.RabbitMQ.URL = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		c.Mongo.URI = v
	}
	if v := os.Getenv("JAEGER_HOST"); v != "" {
		c.Tracer.Endpoint = v
	}
	if v := os.Getenv("SERVICE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Service.Port = p
		}
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("CHAPA_SECRET_KEY"); v != "" {
		c.Payment.Chapa.SecretKey = v
	}
	if v := os.Getenv("CHAPA_CALLBACK_URL"); v != "" {
		c.Payment.Chapa.CallbackURL = v
	}
	if v := os.Getenv("PAYMENT_WEBHOOK_SECRET"); v != "" {
		c.Payment.WebhookSecret = v
	}
}

// Validate 启动前检查必须的配置
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	switch c.Storage.Driver {
	case "memory":
	case "mysql":
		if c.Mysql.Host == "" || c.Mysql.DbName == "" {
			return errors.New("mysql.host and mysql.dbname are required for the mysql driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Payment.Provider {
	case "demo":
	case "chapa":
		if c.Payment.Chapa.SecretKey == "" {
			return errors.New("payment.chapa.secret_key is required for the chapa provider")
		}
	default:
		return fmt.Errorf("unknown payment provider %q", c.Payment.Provider)
	}
	return nil
}
