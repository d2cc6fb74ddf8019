package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env                string
	HTTPAddr           string
	BaseURL            string
	DatabaseURL        string
	S3Endpoint         string
	S3PublicEndpoint   string
	S3AccessKey        string
	S3SecretKey        string
	S3Bucket           string
	S3Region           string
	S3UsePathStyle     bool
	UploadDir          string
	MaxVideoSizeBytes  int64
	MaxImageSizeBytes  int64
	FFmpegPath         string
	HLSSegmentSeconds  int
	APIToken           string
	CORSAllowOrigins   string
	RateLimitPerMinute int
	JobRetentionDays   int
	CleanupInterval    time.Duration
}

func Load() Config {
	return Config{
		Env:                getEnv("APP_ENV", "local"),
		HTTPAddr:           getEnv("APP_HTTP_ADDR", ":4000"),
		BaseURL:            getEnv("BASE_URL", "http://localhost:4000"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		S3Endpoint:         getEnv("S3_ENDPOINT", "http://localhost:9000"),
		S3PublicEndpoint:   getEnv("S3_PUBLIC_ENDPOINT", ""),
		S3AccessKey:        getEnv("S3_ACCESS_KEY", "minio_access"),
		S3SecretKey:        getEnv("S3_SECRET_KEY", "minio_secret"),
		S3Bucket:           getEnv("S3_BUCKET", "xmedia"),
		S3Region:           getEnv("S3_REGION", "us-east-1"),
		S3UsePathStyle:     getEnvBool("S3_USE_PATH_STYLE", true),
		UploadDir:          getEnv("UPLOAD_DIR", "./uploads"),
		MaxVideoSizeBytes:  getEnvInt64("MAX_VIDEO_SIZE", 500<<20),
		MaxImageSizeBytes:  getEnvInt64("MAX_IMAGE_SIZE", 1<<20),
		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		HLSSegmentSeconds:  getEnvInt("HLS_SEGMENT_SECONDS", 6),
		APIToken:           getEnv("API_TOKEN", ""),
		CORSAllowOrigins:   getEnv("CORS_ALLOW_ORIGINS", ""),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MIN", 0),
		JobRetentionDays:   getEnvInt("JOB_RETENTION_DAYS", 0),
		CleanupInterval:    getEnvDuration("CLEANUP_INTERVAL", 0),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return fallback
}
