package config

import (
	"github.com/dmarcwatch/dmarcwatch/internal/logger"
	"github.com/dmarcwatch/dmarcwatch/internal/tracing"
)

type AppConfig struct {
	APIPort             string `env:"PORT,required" envDefault:"11000"`
	APIKey              string `env:"API_KEY,required"`
	RabbitMQURL         string `env:"RABBITMQ_URL"`
	MaxDecompressedSize int64  `env:"MAX_DECOMPRESSED_SIZE_BYTES" envDefault:"20971520"`
	Logger              *logger.Config
	Tracing             *tracing.JaegerConfig
}

type DatabaseConfig struct {
	Host            string `env:"DMARCWATCH_POSTGRES_HOST,required"`
	Port            string `env:"DMARCWATCH_POSTGRES_PORT,required"`
	User            string `env:"DMARCWATCH_POSTGRES_USER,required"`
	DBName          string `env:"DMARCWATCH_POSTGRES_DB_NAME,required"`
	Password        string `env:"DMARCWATCH_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"DMARCWATCH_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"DMARCWATCH_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"DMARCWATCH_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"DMARCWATCH_POSTGRES_LOG_LEVEL" envDefault:"warn"`
	SSLMode         string `env:"DMARCWATCH_POSTGRES_SSL_MODE" envDefault:"require"`
}

type IMAPConfig struct {
	Host     string `env:"IMAP_HOST,required"`
	Port     int    `env:"IMAP_PORT" envDefault:"993"`
	Username string `env:"IMAP_USERNAME,required"`
	Password string `env:"IMAP_PASSWORD,required"`
	Folder   string `env:"IMAP_FOLDER" envDefault:"INBOX"`
}

type SMTPConfig struct {
	Host        string `env:"SMTP_HOST,required"`
	Port        int    `env:"SMTP_PORT" envDefault:"587"`
	Username    string `env:"SMTP_USERNAME,required"`
	Password    string `env:"SMTP_PASSWORD,required"`
	FromAddress string `env:"SMTP_FROM_ADDRESS,required"`
	FromName    string `env:"SMTP_FROM_NAME" envDefault:"DMARC Watch"`
}

type AnalysisConfig struct {
	Url                   string `env:"ANALYSIS_API_URL,required"`
	ApiKey                string `env:"ANALYSIS_API_KEY,required"`
	TimeoutSeconds        int    `env:"ANALYSIS_TIMEOUT_SECONDS" envDefault:"60"`
	MaxRetries            int    `env:"ANALYSIS_MAX_RETRIES" envDefault:"3"`
	RetryBaseDelaySeconds int    `env:"ANALYSIS_RETRY_BASE_DELAY_SECONDS" envDefault:"2"`
	RetryMaxDelaySeconds  int    `env:"ANALYSIS_RETRY_MAX_DELAY_SECONDS" envDefault:"30"`
}

type AlertConfig struct {
	Recipients            []string `env:"ALERT_RECIPIENTS,required" envSeparator:","`
	ThrottleWindowMinutes int      `env:"ALERT_THROTTLE_WINDOW_MINUTES" envDefault:"60"`
	FailureCountThreshold int      `env:"ALERT_FAILURE_COUNT_THRESHOLD" envDefault:"5"`
}

type PipelineConfig struct {
	RunDeadlineSeconds int `env:"PIPELINE_RUN_DEADLINE_SECONDS" envDefault:"240"`
}

type R2StorageConfig struct {
	AccountID       string `env:"CLOUDFLARE_R2_ACCOUNT_ID"`
	AccessKeyID     string `env:"CLOUDFLARE_R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"CLOUDFLARE_R2_ACCESS_KEY_SECRET"`
	ReportBucket    string `env:"BUCKET_NAME_DMARC_REPORTS" envDefault:"dmarc-reports"`
}
