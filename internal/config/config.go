package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Telegram  TelegramConfig
	OpenAI    OpenAIConfig
	Whisper   WhisperConfig
	YtDlp     YtDlpConfig
	FFmpeg    FFmpegConfig
	Pipeline  PipelineConfig
	Summary   SummaryConfig
	Worker    WorkerConfig
	R2        R2Config
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Janitor   JanitorConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type LogConfig struct {
	Format     string // auto, json or console
	Output     string // stdout or file
	File       string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type TelegramConfig struct {
	BotToken          string
	AllowedUserIDsRaw string
	APIBaseURL        string
	PollTimeout       int // seconds
}

// AllowedUserIDs returns the whitelist. An empty set denies everyone.
func (t TelegramConfig) AllowedUserIDs() map[int64]bool {
	ids, _ := parseUserIDs(t.AllowedUserIDsRaw)
	return ids
}

type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

type WhisperConfig struct {
	Binary      string
	ModelDir    string
	ModelSize   string
	Device      string
	ComputeType string
	Threads     int
	BeamSize    int
}

type YtDlpConfig struct {
	Binary      string
	CookiesFile string
}

type FFmpegConfig struct {
	Binary string
}

type PipelineConfig struct {
	MaxVideoMinutes         int
	WorkRoot                string
	ChunkMinutes            int
	ProgressIntervalSeconds int
}

type SummaryConfig struct {
	Language       string
	MapConcurrency int
}

type WorkerConfig struct {
	ConcurrencyASR     int
	ConcurrencyLLM     int
	ConcurrencyDefault int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

// Enabled reports whether artifact uploads are configured.
func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.AccessKeyID != "" && r.SecretAccessKey != "" && r.BucketName != ""
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	TasksPerHour int
}

type JanitorConfig struct {
	Schedule    string
	MaxAgeHours int
}

// MaxVideoSeconds is the longest accepted source duration.
func (c *Config) MaxVideoSeconds() int {
	return c.Pipeline.MaxVideoMinutes * 60
}

// ChunkSpan is the transcript chunk threshold.
func (c *Config) ChunkSpan() time.Duration {
	return time.Duration(c.Pipeline.ChunkMinutes) * time.Minute
}

// ProgressInterval is the transcription progress cadence.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Pipeline.ProgressIntervalSeconds) * time.Second
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("TELEGRAM_BOT_TOKEN")
	readSecret("OPENAI_API_KEY")
	readSecret("REDIS_PASSWORD")
	readSecret("DATABASE_URL")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("JWT_SECRET")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	bind := map[string]string{
		"server.port":                        "SERVER_PORT",
		"server.env":                         "SERVER_ENV",
		"server.log_level":                   "LOG_LEVEL",
		"log.format":                         "LOG_FORMAT",
		"log.output":                         "LOG_OUTPUT",
		"log.file":                           "LOG_FILE",
		"database.url":                       "DATABASE_URL",
		"redis.addr":                         "REDIS_ADDR",
		"redis.password":                     "REDIS_PASSWORD",
		"redis.db":                           "REDIS_DB",
		"redis.url":                          "REDIS_URL",
		"telegram.bot_token":                 "TELEGRAM_BOT_TOKEN",
		"telegram.allowed_user_ids":          "ALLOWED_TELEGRAM_USER_IDS",
		"telegram.api_base_url":              "TELEGRAM_API_BASE_URL",
		"telegram.poll_timeout":              "TELEGRAM_POLL_TIMEOUT",
		"openai.api_key":                     "OPENAI_API_KEY",
		"openai.base_url":                    "OPENAI_BASE_URL",
		"openai.model":                       "OPENAI_MODEL",
		"openai.timeout_seconds":             "OPENAI_TIMEOUT_SECONDS",
		"whisper.binary":                     "WHISPER_BINARY",
		"whisper.model_dir":                  "WHISPER_MODEL_DIR",
		"whisper.model_size":                 "WHISPER_MODEL_SIZE",
		"whisper.device":                     "WHISPER_DEVICE",
		"whisper.compute_type":               "WHISPER_COMPUTE_TYPE",
		"whisper.threads":                    "WHISPER_THREADS",
		"whisper.beam_size":                  "WHISPER_BEAM_SIZE",
		"ytdlp.binary":                       "YTDLP_BINARY",
		"ytdlp.cookies_file":                 "YTDLP_COOKIES_FILE",
		"ffmpeg.binary":                      "FFMPEG_BINARY",
		"pipeline.max_video_minutes":         "MAX_VIDEO_MINUTES",
		"pipeline.work_root":                 "WORK_ROOT",
		"pipeline.chunk_minutes":             "CHUNK_MINUTES",
		"pipeline.progress_interval_seconds": "PROGRESS_INTERVAL_SECONDS",
		"summary.language":                   "SUMMARY_LANGUAGE",
		"summary.map_concurrency":            "SUMMARY_MAP_CONCURRENCY",
		"worker.concurrency.asr":             "WORKER_CONCURRENCY_ASR",
		"worker.concurrency.llm":             "WORKER_CONCURRENCY_LLM",
		"worker.concurrency.default":         "WORKER_CONCURRENCY_DEFAULT",
		"r2.account_id":                       "R2_ACCOUNT_ID",
		"r2.access_key_id":                    "R2_ACCESS_KEY_ID",
		"r2.secret_access_key":                "R2_SECRET_ACCESS_KEY",
		"r2.bucket_name":                      "R2_BUCKET_NAME",
		"r2.public_url":                       "R2_PUBLIC_URL",
		"jwt.secret":                         "JWT_SECRET",
		"ratelimit.tasks_per_hour":           "RATELIMIT_TASKS_PER_HOUR",
		"janitor.schedule":                   "JANITOR_SCHEDULE",
		"janitor.max_age_hours":              "JANITOR_MAX_AGE_HOURS",
	}
	for key, env := range bind {
		_ = v.BindEnv(key, env)
	}

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("log.format", "auto")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/youtube-lmm.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.url", "sqlite://data/youtube_lmm.db")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("telegram.api_base_url", "https://api.telegram.org")
	v.SetDefault("telegram.poll_timeout", 30)

	// OpenAI defaults
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-5")
	v.SetDefault("openai.timeout_seconds", 300)

	// Speech and media tooling
	v.SetDefault("whisper.binary", "whisper-cli")
	v.SetDefault("whisper.model_dir", "models")
	v.SetDefault("whisper.model_size", "small")
	v.SetDefault("whisper.device", "cpu")
	v.SetDefault("whisper.compute_type", "int8")
	v.SetDefault("whisper.threads", 4)
	v.SetDefault("whisper.beam_size", 5)
	v.SetDefault("ytdlp.binary", "yt-dlp")
	v.SetDefault("ffmpeg.binary", "ffmpeg")

	// Pipeline defaults
	v.SetDefault("pipeline.max_video_minutes", 60)
	v.SetDefault("pipeline.work_root", "/tmp/youtube_lmm")
	v.SetDefault("pipeline.chunk_minutes", 10)
	v.SetDefault("pipeline.progress_interval_seconds", 120)
	v.SetDefault("summary.language", "English")
	v.SetDefault("summary.map_concurrency", 4)
	v.SetDefault("worker.concurrency.asr", 1)
	v.SetDefault("worker.concurrency.llm", 4)
	v.SetDefault("worker.concurrency.default", 2)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("ratelimit.tasks_per_hour", 20)
	v.SetDefault("janitor.schedule", "@every 1h")
	v.SetDefault("janitor.max_age_hours", 24)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: strings.ToLower(v.GetString("server.log_level")),
		},
		Log: LogConfig{
			Format:     v.GetString("log.format"),
			Output:     v.GetString("log.output"),
			File:       v.GetString("log.file"),
			MaxSize:    v.GetInt("log.max_size"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAge:     v.GetInt("log.max_age"),
			Compress:   v.GetBool("log.compress"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Telegram: TelegramConfig{
			BotToken:          v.GetString("telegram.bot_token"),
			AllowedUserIDsRaw: v.GetString("telegram.allowed_user_ids"),
			APIBaseURL:        v.GetString("telegram.api_base_url"),
			PollTimeout:       v.GetInt("telegram.poll_timeout"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         v.GetString("openai.api_key"),
			BaseURL:        v.GetString("openai.base_url"),
			Model:          v.GetString("openai.model"),
			TimeoutSeconds: v.GetInt("openai.timeout_seconds"),
		},
		Whisper: WhisperConfig{
			Binary:      v.GetString("whisper.binary"),
			ModelDir:    v.GetString("whisper.model_dir"),
			ModelSize:   v.GetString("whisper.model_size"),
			Device:      strings.ToLower(v.GetString("whisper.device")),
			ComputeType: v.GetString("whisper.compute_type"),
			Threads:     v.GetInt("whisper.threads"),
			BeamSize:    v.GetInt("whisper.beam_size"),
		},
		YtDlp: YtDlpConfig{
			Binary:      v.GetString("ytdlp.binary"),
			CookiesFile: v.GetString("ytdlp.cookies_file"),
		},
		FFmpeg: FFmpegConfig{
			Binary: v.GetString("ffmpeg.binary"),
		},
		Pipeline: PipelineConfig{
			MaxVideoMinutes:         v.GetInt("pipeline.max_video_minutes"),
			WorkRoot:                v.GetString("pipeline.work_root"),
			ChunkMinutes:            v.GetInt("pipeline.chunk_minutes"),
			ProgressIntervalSeconds: v.GetInt("pipeline.progress_interval_seconds"),
		},
		Summary: SummaryConfig{
			Language:       v.GetString("summary.language"),
			MapConcurrency: v.GetInt("summary.map_concurrency"),
		},
		Worker: WorkerConfig{
			ConcurrencyASR:     v.GetInt("worker.concurrency.asr"),
			ConcurrencyLLM:     v.GetInt("worker.concurrency.llm"),
			ConcurrencyDefault: v.GetInt("worker.concurrency.default"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
		},
		RateLimit: RateLimitConfig{
			TasksPerHour: v.GetInt("ratelimit.tasks_per_hour"),
		},
		Janitor: JanitorConfig{
			Schedule:    v.GetString("janitor.schedule"),
			MaxAgeHours: v.GetInt("janitor.max_age_hours"),
		},
	}

	// REDIS_URL wins over the discrete redis settings
	if raw := v.GetString("redis.url"); raw != "" {
		opt, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		cfg.Redis = RedisConfig{Addr: opt.Addr, Password: opt.Password, DB: opt.DB}
	}

	if _, err := parseUserIDs(cfg.Telegram.AllowedUserIDsRaw); err != nil {
		return nil, err
	}
	if cfg.Pipeline.MaxVideoMinutes <= 0 {
		return nil, fmt.Errorf("pipeline.max_video_minutes must be positive, got %d", cfg.Pipeline.MaxVideoMinutes)
	}
	if cfg.Pipeline.ChunkMinutes <= 0 {
		return nil, fmt.Errorf("pipeline.chunk_minutes must be positive, got %d", cfg.Pipeline.ChunkMinutes)
	}

	return cfg, nil
}

func parseUserIDs(raw string) (map[int64]bool, error) {
	ids := make(map[int64]bool)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid telegram user id %q in ALLOWED_TELEGRAM_USER_IDS", item)
		}
		ids[id] = true
	}
	return ids, nil
}
