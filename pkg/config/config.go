package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Timezone   string `mapstructure:"TIMEZONE"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		Tracing        bool   `mapstructure:"TRACING"`
		Metrics        bool   `mapstructure:"METRICS"`
		MetricsPort    uint32 `mapstructure:"METRICS_PORT"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Mail struct {
		Host        string        `mapstructure:"HOST"`
		Port        int           `mapstructure:"PORT"`
		Username    string        `mapstructure:"USERNAME"`
		Password    string        `mapstructure:"PASSWORD"`
		From        string        `mapstructure:"FROM"`
		StartTLS    bool          `mapstructure:"STARTTLS"`
		DialTimeout time.Duration `mapstructure:"DIAL_TIMEOUT"`
	} `mapstructure:"MAIL"`
	Notification struct {
		AdminEmail       string `mapstructure:"ADMIN_EMAIL"`
		InternalCategory string `mapstructure:"INTERNAL_CATEGORY"`
		SenderName       string `mapstructure:"SENDER_NAME"`
		CompanyName      string `mapstructure:"COMPANY_NAME"`
	} `mapstructure:"NOTIFICATION"`
	Scheduler struct {
		RefreshCron string        `mapstructure:"REFRESH_CRON"`
		ExpiredCron string        `mapstructure:"EXPIRED_CRON"`
		PendingCron string        `mapstructure:"PENDING_CRON"`
		UniqueFor   time.Duration `mapstructure:"UNIQUE_FOR"`
	} `mapstructure:"SCHEDULER"`
	Otel struct {
		Enabled  bool   `mapstructure:"ENABLED"`
		Exporter string `mapstructure:"EXPORTER"`
		Endpoint string `mapstructure:"ENDPOINT"`
		Insecure bool   `mapstructure:"INSECURE"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Legacy struct {
		Host     string `mapstructure:"HOST"`
		Port     int    `mapstructure:"PORT"`
		Path     string `mapstructure:"PATH"`
		User     string `mapstructure:"USER"`
		Password string `mapstructure:"PASSWORD"`
		Charset  string `mapstructure:"CHARSET"`
		Query    string `mapstructure:"QUERY"`
	} `mapstructure:"LEGACY"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func LoadConfig(p Params) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if p.Vault != nil {
		if err := applySecrets(context.Background(), p.Vault, &cfg); err != nil {
			return nil, err
		}
	}

	if cfg.TLS.Enable && (cfg.TLS.CertPath == "" || cfg.TLS.KeyPath == "") {
		return nil, fmt.Errorf("tls enabled but TLS.CERT_PATH or TLS.KEY_PATH not provided")
	}

	return &cfg, nil
}

// Location returns the configured business timezone, UTC when unset or invalid.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		zap.L().Warn("invalid timezone, falling back to UTC", zap.String("timezone", c.Timezone), zap.Error(err))
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "licensing-controlplane")
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("NODE_ID", 1)

	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)

	v.SetDefault("DATABASE.TYPE", "sqlite")
	v.SetDefault("DATABASE.DBNAME", "licensing.db")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.METRICS_PORT", 9091)

	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)

	v.SetDefault("MAIL.PORT", 587)
	v.SetDefault("MAIL.STARTTLS", true)
	v.SetDefault("MAIL.DIAL_TIMEOUT", 15*time.Second)

	v.SetDefault("NOTIFICATION.INTERNAL_CATEGORY", "primary_vendor_suite")

	v.SetDefault("SCHEDULER.REFRESH_CRON", "0 1 * * *")
	v.SetDefault("SCHEDULER.EXPIRED_CRON", "0 8 * * *")
	v.SetDefault("SCHEDULER.PENDING_CRON", "30 8 * * *")
	v.SetDefault("SCHEDULER.UNIQUE_FOR", time.Hour)

	v.SetDefault("OTEL.EXPORTER", "http")
	v.SetDefault("OTEL.INSECURE", true)

	v.SetDefault("LEGACY.PORT", 3050)
	v.SetDefault("LEGACY.USER", "SYSDBA")
	v.SetDefault("LEGACY.CHARSET", "WIN1252")
	v.SetDefault("LEGACY.QUERY", "SELECT CLAVE, NOMBRE, RFC, EMAILPRED, TELEFONO FROM CLIE01 WHERE STATUS='A'")
}

func applySecrets(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		return fmt.Errorf("read vault secrets: %w", err)
	}
	zap.L().Info("Success Get Secret")

	get := func(key, fallback string) string {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			return val
		}
		return fallback
	}

	cfg.Database.User = get("database_user", cfg.Database.User)
	cfg.Database.Password = get("database_password", cfg.Database.Password)
	cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
	cfg.Mail.Password = get("smtp_password", cfg.Mail.Password)
	cfg.Legacy.Password = get("legacy_password", cfg.Legacy.Password)
	cfg.Flagsmith.ApiKey = get("flagsmith_api_key", cfg.Flagsmith.ApiKey)
	return nil
}

// NewVaultClient builds a vault client when VAULT_ADDR is present; nil otherwise.
func NewVaultClient() (*vault.Client, error) {
	addr, ok := os.LookupEnv("VAULT_ADDR")
	if !ok || addr == "" {
		return nil, nil
	}

	client, err := vault.New(vault.WithAddress(addr), vault.WithRequestTimeout(30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}

	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		if err := client.SetToken(token); err != nil {
			return nil, fmt.Errorf("set vault token: %w", err)
		}
	}

	return client, nil
}

var VaultModule = fx.Module("vault", fx.Provide(NewVaultClient))
