package config

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	DBHost            string        `env:"DB_HOST,required"`
	DBPort            int           `env:"DB_PORT,default=5432"`
	DBUser            string        `env:"DB_USER,required"`
	DBPassword        string        `env:"DB_PASSWORD,required"`
	DBName            string        `env:"DB_NAME,required"`
	DBSSLMode         string        `env:"DB_SSLMODE,default=disable"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=10"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`

	HTTPAddr            string        `env:"HTTP_ADDR,default=:8080"`
	HTTPShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT,default=10s"`
	JWTSecret           string        `env:"JWT_SECRET,required"`
	JWTTTL              time.Duration `env:"JWT_TTL,default=24h"`

	BinanceWSURL         string        `env:"BINANCE_WS_URL,default=wss://stream.binance.com:9443/ws"`
	FeedReconnectBackoff time.Duration `env:"FEED_RECONNECT_BACKOFF,default=5s"`
	FeedReadTimeout      time.Duration `env:"FEED_READ_TIMEOUT,default=0s"`
	FeedWriteTimeout     time.Duration `env:"FEED_WRITE_TIMEOUT,default=10s"`
	FeedControlBuffer    int           `env:"FEED_CONTROL_BUFFER,default=64"`

	SMTPHost     string `env:"SMTP_HOST,default=smtp.office365.com"`
	SMTPPort     int    `env:"SMTP_PORT,default=587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM,required"`

	NotifyTimeout time.Duration `env:"NOTIFY_TIMEOUT,default=15s"`
	NotifyWorkers int           `env:"NOTIFY_WORKERS,default=4"`

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB,default=0"`
	PriceCacheTTL time.Duration `env:"PRICE_CACHE_TTL,default=10m"`

	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// Load reads an optional .env file and then the process environment.
func Load(ctx context.Context, dotenvFiles ...string) (Config, error) {
	if err := godotenv.Load(dotenvFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return FromLookuper(ctx, envconfig.OsLookuper())
}

func FromLookuper(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
