package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN              string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL              string `env:"RABBITMQ_URL,required=true"`
	RedisURL                 string `env:"REDIS_URL,required=true"`
	MailGatewayURL           string `env:"MAIL_GATEWAY_URL,required=true"`
	RendererURL              string `env:"RENDERER_URL,required=true"`
	WebhookSecret            string `env:"WEBHOOK_SECRET,required=true"`
	DefaultRatePerMinute     int    `env:"DEFAULT_RATE_PER_MINUTE,default=60"`
	MaxSendRetries           int    `env:"MAX_SEND_RETRIES,default=5"`
	WebhookResolveMaxRetries int    `env:"WEBHOOK_RESOLVE_MAX_RETRIES,default=5"`
	WorkerConcurrency        int    `env:"WORKER_CONCURRENCY,default=16"`
	APIPort                  int    `env:"API_PORT,default=8080"`
	LogLevel                 string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
