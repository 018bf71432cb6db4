package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	// Взнос за создание турнира, в кредитах
	TournamentFee int64

	// Общий секрет для вебхука платёжного шлюза
	WebhookToken string

	// RabbitMQ-поток подтверждений платежей; пустой URL отключает consumer
	AMQPURL      string
	PaymentQueue string

	// Внешний административный сервис (CRUD турниров)
	AdminBaseURL string

	// Cloudflare R2 для архивов финальных снапшотов; пустой AccountID
	// отключает архивирование
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (удобно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	webhookToken := os.Getenv("PAYMENT_WEBHOOK_TOKEN")
	if webhookToken == "" {
		return nil, fmt.Errorf("PAYMENT_WEBHOOK_TOKEN environment variable is not set")
	}

	portStr := os.Getenv("SERVER_PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	feeStr := os.Getenv("TOURNAMENT_FEE_CREDITS")
	if feeStr == "" {
		feeStr = "200"
	}
	fee, err := strconv.ParseInt(feeStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TOURNAMENT_FEE_CREDITS environment variable: %w", err)
	}
	if fee <= 0 {
		return nil, fmt.Errorf("TOURNAMENT_FEE_CREDITS must be positive, got %d", fee)
	}

	queue := os.Getenv("PAYMENT_QUEUE")
	if queue == "" {
		queue = "payment_confirmations"
	}

	adminBaseURL := os.Getenv("ADMIN_BASE_URL")
	if adminBaseURL == "" {
		adminBaseURL = "http://localhost:8081"
	}

	cfg := &Config{
		DatabaseURL:       dbURL,
		JWTSecretKey:      jwtKey,
		ServerPort:        port,
		TournamentFee:     fee,
		WebhookToken:      webhookToken,
		AMQPURL:           os.Getenv("AMQP_URL"),
		PaymentQueue:      queue,
		AdminBaseURL:      adminBaseURL,
		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	return cfg, nil
}

// ArchiveConfigured сообщает, задан ли полный набор R2-реквизитов.
func (c *Config) ArchiveConfigured() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" &&
		c.R2SecretAccessKey != "" && c.R2BucketName != "" && c.R2PublicBaseURL != ""
}
