package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Storage struct {
	Driver            string `env:"STORAGE_DRIVER" env-default:"s3"`
	Endpoint          string `env:"S3_ENDPOINT"`
	Region            string `env:"S3_REGION" env-default:"us-east-1"`
	Bucket            string `env:"S3_BUCKET" env-default:"media"`
	AccessKeyID       string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey   string `env:"S3_SECRET_ACCESS_KEY"`
	UsePathStyle      bool   `env:"S3_USE_PATH_STYLE" env-default:"true"`
	CreateBucket      bool   `env:"S3_CREATE_BUCKET_IF_NOT_EXIST" env-default:"false"`
	PresignTTLSeconds int    `env:"PRESIGN_TTL_SECONDS" env-default:"3600"`
}

func (s Storage) PresignTTL() time.Duration {
	return time.Duration(s.PresignTTLSeconds) * time.Second
}

type Upload struct {
	ChunkSize          int64         `env:"UPLOAD_CHUNK_SIZE" env-default:"5242880"`
	MultipartThreshold int64         `env:"UPLOAD_MULTIPART_THRESHOLD" env-default:"10485760"`
	Concurrency        int           `env:"UPLOAD_CONCURRENCY" env-default:"3"`
	PartRetries        int           `env:"UPLOAD_PART_RETRIES" env-default:"3"`
	PartTimeout        time.Duration `env:"UPLOAD_PART_TIMEOUT" env-default:"5m"`
}

type Kafka struct {
	Brokers        []string      `env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9094"`
	ClientID       string        `env:"KAFKA_CLIENT_ID" env-default:"video-processor"`
	GroupID        string        `env:"KAFKA_GROUP_ID" env-default:"video-processor-group"`
	CatalogGroupID string        `env:"KAFKA_CATALOG_GROUP_ID" env-default:"content-management-group"`
	ConnectTimeout time.Duration `env:"KAFKA_CONNECT_TIMEOUT" env-default:"3s"`
	RequestTimeout time.Duration `env:"KAFKA_REQUEST_TIMEOUT" env-default:"30s"`
	RetryBackoff   time.Duration `env:"KAFKA_RETRY_BACKOFF" env-default:"100ms"`
	MaxRetries     int           `env:"KAFKA_MAX_RETRIES" env-default:"8"`
	HandlerTimeout time.Duration `env:"KAFKA_HANDLER_TIMEOUT" env-default:"0s"`
}

type Transcode struct {
	ProfilesPath string        `env:"TRANSCODE_PROFILES_PATH"`
	KeyPrefix    string        `env:"TRANSCODE_KEY_PREFIX" env-default:"transcoded"`
	Extension    string        `env:"TRANSCODE_EXTENSION" env-default:"mp4"`
	JobTimeout   time.Duration `env:"TRANSCODE_JOB_TIMEOUT" env-default:"30m"`
	FFmpegPath   string        `env:"FFMPEG_PATH" env-default:"ffmpeg"`
	InstanceID   string        `env:"INSTANCE_ID" env-default:"video-processor"`
}

type Postgres struct {
	URL string `env:"DATABASE_URL"`
}

type HTTP struct {
	Addr string `env:"HTTP_ADDR" env-default:":8081"`
	// PublicURL is where clients reach this process; the in-memory store signs URLs against it.
	PublicURL string `env:"HTTP_PUBLIC_URL" env-default:"http://localhost:8081"`
}

type Outbox struct {
	Interval  time.Duration `env:"OUTBOX_INTERVAL" env-default:"1s"`
	BatchSize int           `env:"OUTBOX_BATCH_SIZE" env-default:"100"`
}

type Config struct {
	Storage   Storage
	Upload    Upload
	Kafka     Kafka
	Transcode Transcode
	Postgres  Postgres
	HTTP      HTTP
	Outbox    Outbox

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"15s"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is empty"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver))
	}
	if c.Storage.PresignTTLSeconds <= 0 {
		errs = append(errs, errors.New("PRESIGN_TTL_SECONDS must be positive"))
	}
	if c.Upload.ChunkSize <= 0 {
		errs = append(errs, errors.New("UPLOAD_CHUNK_SIZE must be positive"))
	}
	if c.Upload.MultipartThreshold < 0 {
		errs = append(errs, errors.New("UPLOAD_MULTIPART_THRESHOLD cannot be negative"))
	}
	if c.Upload.Concurrency < 1 {
		errs = append(errs, errors.New("UPLOAD_CONCURRENCY must be at least 1"))
	}
	if c.Upload.PartRetries < 0 {
		errs = append(errs, errors.New("UPLOAD_PART_RETRIES cannot be negative"))
	}
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is empty"))
	}
	if c.Kafka.HandlerTimeout < 0 {
		errs = append(errs, errors.New("KAFKA_HANDLER_TIMEOUT cannot be negative"))
	}
	if c.Kafka.MaxRetries < 0 {
		errs = append(errs, errors.New("KAFKA_MAX_RETRIES cannot be negative"))
	}
	if c.Transcode.KeyPrefix == "" || c.Transcode.Extension == "" {
		errs = append(errs, errors.New("TRANSCODE_KEY_PREFIX and TRANSCODE_EXTENSION are required"))
	}
	if c.Outbox.Interval <= 0 || c.Outbox.BatchSize <= 0 {
		errs = append(errs, errors.New("OUTBOX_INTERVAL and OUTBOX_BATCH_SIZE must be positive"))
	}

	return errors.Join(errs...)
}
