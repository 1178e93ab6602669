// Пакет config — загрузка и валидация конфигурации Case Store
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Case Store.
type Config struct {
	// Порт HTTP-сервера
	Port int

	// Корневая директория хранилища кейсов
	StorageRoot string
	// Раскладка файлов: uuid или flat
	StorageLayout string
	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64
	// Директория журнала незавершённых операций
	JournalDir string

	// Параметры подключения к PostgreSQL
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
	// Размер пула pgxpool
	DBMaxConns int
	// Сколько ждать PostgreSQL при старте
	DBConnectTimeout time.Duration

	// Срок хранения кейса, импортированного с истечением
	ExpirationTTL time.Duration
	// Расписание очистки (5 полей cron, UTC)
	SweepSchedule string
	// Интервал автоматической сверки хранилищ; 0 — отключена
	ReconcileInterval time.Duration

	// Размер и TTL LRU-кэша метаданных
	CacheSize int
	CacheTTL  time.Duration

	// Адрес NATS; пустое значение отключает публикацию событий
	NATSURL string
	// Имя JetStream-стрима событий
	NATSStream string
	// Префикс subject'ов событий
	NATSSubjectPrefix string
	// HTTP-мониторинг NATS (порт 8222); пустое значение отключает
	// проверку NATS в topologymetrics
	NATSMonitorURL string

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration

	// Идентификатор экземпляра в метриках topologymetrics;
	// пустое значение — имя владельца пода из hostname
	ServiceID string
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Лейбл isentry=yes для всех зависимостей (точка входа в граф)
	DephealthIsEntry bool
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// CS_PORT — порт HTTP-сервера (по умолчанию 8030)
	cfg.Port, err = getEnvInt("CS_PORT", 8030)
	if err != nil {
		return nil, fmt.Errorf("CS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// CS_STORAGE_ROOT — обязательный
	cfg.StorageRoot, err = getEnvRequired("CS_STORAGE_ROOT")
	if err != nil {
		return nil, err
	}

	// CS_STORAGE_LAYOUT — раскладка (по умолчанию uuid)
	cfg.StorageLayout = getEnvDefault("CS_STORAGE_LAYOUT", "uuid")
	if cfg.StorageLayout != "uuid" && cfg.StorageLayout != "flat" {
		return nil, fmt.Errorf("CS_STORAGE_LAYOUT: недопустимое значение %q, допустимые: uuid, flat", cfg.StorageLayout)
	}

	// CS_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 1 GB)
	cfg.MaxFileSize, err = getEnvInt64("CS_MAX_FILE_SIZE", 1<<30)
	if err != nil {
		return nil, fmt.Errorf("CS_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("CS_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// CS_JOURNAL_DIR — журнал операций (по умолчанию {root}/.journal)
	cfg.JournalDir = getEnvDefault("CS_JOURNAL_DIR", filepath.Join(cfg.StorageRoot, ".journal"))

	// PostgreSQL
	if cfg.DBHost, err = getEnvRequired("CS_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("CS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("CS_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("CS_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("CS_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("CS_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("CS_DB_SSL_MODE", "disable")
	if cfg.DBMaxConns, err = getEnvInt("CS_DB_MAX_CONNS", 10); err != nil {
		return nil, fmt.Errorf("CS_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("CS_DB_MAX_CONNS: должно быть не меньше 1, получено %d", cfg.DBMaxConns)
	}
	if cfg.DBConnectTimeout, err = getEnvDuration("CS_DB_CONNECT_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("CS_DB_CONNECT_TIMEOUT: %w", err)
	}

	// CS_EXPIRATION_TTL — срок хранения (по умолчанию 48h)
	cfg.ExpirationTTL, err = getEnvDuration("CS_EXPIRATION_TTL", 48*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("CS_EXPIRATION_TTL: %w", err)
	}
	if cfg.ExpirationTTL <= 0 {
		return nil, fmt.Errorf("CS_EXPIRATION_TTL: значение должно быть положительным")
	}

	// CS_SWEEP_SCHEDULE — расписание очистки (по умолчанию ежедневно в 02:00 UTC)
	cfg.SweepSchedule = getEnvDefault("CS_SWEEP_SCHEDULE", "0 2 * * *")
	if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
		return nil, fmt.Errorf("CS_SWEEP_SCHEDULE: %w", err)
	}

	// CS_RECONCILE_INTERVAL — интервал сверки (по умолчанию 6h, 0 — отключена)
	cfg.ReconcileInterval, err = getEnvDuration("CS_RECONCILE_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("CS_RECONCILE_INTERVAL: %w", err)
	}

	// CS_CACHE_SIZE, CS_CACHE_TTL — кэш метаданных
	cfg.CacheSize, err = getEnvInt("CS_CACHE_SIZE", 10000)
	if err != nil {
		return nil, fmt.Errorf("CS_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("CS_CACHE_SIZE: значение должно быть положительным")
	}
	cfg.CacheTTL, err = getEnvDuration("CS_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CS_CACHE_TTL: %w", err)
	}

	// NATS (опционально)
	cfg.NATSURL = getEnvDefault("CS_NATS_URL", "")
	if cfg.NATSURL != "" {
		if _, err := url.Parse(cfg.NATSURL); err != nil {
			return nil, fmt.Errorf("CS_NATS_URL: %w", err)
		}
	}
	cfg.NATSStream = getEnvDefault("CS_NATS_STREAM", "CASES")
	cfg.NATSSubjectPrefix = getEnvDefault("CS_NATS_SUBJECT_PREFIX", "cases")
	cfg.NATSMonitorURL = getEnvDefault("CS_NATS_MONITOR_URL", "")
	if cfg.NATSMonitorURL != "" {
		u, err := url.Parse(cfg.NATSMonitorURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("CS_NATS_MONITOR_URL: ожидается http(s)://host:port, получено %q", cfg.NATSMonitorURL)
		}
	}

	// CS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CS_LOG_LEVEL: %w", err)
	}

	// CS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("CS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// Таймауты HTTP
	if cfg.HTTPReadTimeout, err = getEnvDuration("CS_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("CS_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("CS_HTTP_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("CS_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("CS_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("CS_HTTP_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("CS_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("CS_SHUTDOWN_TIMEOUT: %w", err)
	}

	// topologymetrics
	cfg.ServiceID = os.Getenv("CS_SERVICE_ID")
	cfg.DephealthGroup = getEnvDefault("CS_DEPHEALTH_GROUP", "case-store")
	cfg.DephealthCheckInterval, err = getEnvDuration("CS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	if cfg.DephealthIsEntry, err = getEnvBool("DEPHEALTH_ISENTRY", false); err != nil {
		return nil, fmt.Errorf("DEPHEALTH_ISENTRY: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	return u.String()
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 48h)", val)
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
