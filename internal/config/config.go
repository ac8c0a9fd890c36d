package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	DebugMode bool `env:"DEBUG_MODE"` //Режим дебага

	Completion CompletionConfig // Внешний endpoint chat/completions
	Persona    PersonaConfig    // Профиль персонажа для системного промпта
	History    HistoryConfig    // Хранилище и окно истории диалога
	Hub        HubConfig        // Realtime-канал (WebSocket)
}

// CompletionConfig параметры запроса к OpenAI-совместимому endpoint.
type CompletionConfig struct {
	BaseURL     string        `env:"GPT_BASE_URL"`      // Базовый URL, к нему добавляется /chat/completions
	APIKey      string        `env:"GPT_API_KEY"`       // Bearer-ключ
	Model       string        `env:"GPT_MODEL_ENGINE"`  // Идентификатор модели
	Proxy       string        `env:"PROXY_CONFIG"`      // Опциональный прокси host:port, одинаково для http и https
	Temperature float64       `env:"GPT_TEMPERATURE"`   // Температура сэмплирования
	MaxTokens   int64         `env:"GPT_MAX_TOKENS"`    // Лимит токенов ответа
	Timeout     time.Duration `env:"GPT_TIMEOUT"`       // Таймаут одного запроса
	MaxRetries  int           `env:"GPT_MAX_RETRIES"`   // Повторы SDK при 5xx/429/сетевых ошибках
	Fallback    string        `env:"GPT_FALLBACK_TEXT"` // Ответ пользователю при любой ошибке; пусто — стандартный
}

// PersonaConfig атрибуты персонажа. Только чтение.
type PersonaConfig struct {
	Name          string `env:"PERSONA_NAME"`
	Position      string `env:"PERSONA_POSITION"`
	Goal          string `env:"PERSONA_GOAL"`
	Gender        string `env:"PERSONA_GENDER"`
	Age           string `env:"PERSONA_AGE"`
	Birth         string `env:"PERSONA_BIRTH"`
	Zodiac        string `env:"PERSONA_ZODIAC"`
	Constellation string `env:"PERSONA_CONSTELLATION"`
	Job           string `env:"PERSONA_JOB"`
	Contact       string `env:"PERSONA_CONTACT"`
	Additional    string `env:"PERSONA_ADDITIONAL"` // Свободный текст, дописывается к описанию
	Task          string `env:"PERSONA_TASK"`       // Блок задачи после описания персонажа
}

// HistoryConfig хранилище реплик.
type HistoryConfig struct {
	Backend     string `env:"HISTORY_BACKEND"`      // sqlite|memory
	DBPath      string `env:"HISTORY_DB_PATH"`      // Путь к SQLite базе
	FetchLimit  int    `env:"HISTORY_FETCH_LIMIT"`  // Сколько последних реплик читать (окно = limit-1)
	MemoryTurns int    `env:"HISTORY_MEMORY_TURNS"` // Ёмкость in-memory хранилища на один диалог
}

// HubConfig параметры realtime-хаба.
type HubConfig struct {
	BindAddr     string        `env:"HUB_BIND_ADDR"`     // Адрес слушателя
	ReadLimit    int64         `env:"HUB_READ_LIMIT"`    // Максимальный размер одного входящего фрейма, байт
	PingInterval time.Duration `env:"HUB_PING_INTERVAL"` // Период keepalive-пингов
	PingTimeout  time.Duration `env:"HUB_PING_TIMEOUT"`  // Сколько ждать pong после пинга
	WelcomeText  string        `env:"HUB_WELCOME_TEXT"`  // Текст system-сообщения при подключении
}

// Defaults возвращает конфигурацию с предустановленными значениями по умолчанию.
// Эти значения перекрываются .env, переменными окружения и флагами CLI.
func Defaults() *Config {
	return &Config{
		DebugMode: false,
		Completion: CompletionConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
			MaxTokens:   2000,
			Timeout:     60 * time.Second,
			MaxRetries:  2,
		},
		Persona: PersonaConfig{
			Name:     "Фэй",
			Position: "помощник",
			Goal:     "помогать пользователю практиковать разговорный английский",
			Job:      "преподаватель английского",
		},
		History: HistoryConfig{
			Backend:     "sqlite",
			DBPath:      "data/history.db",
			FetchLimit:  11,
			MemoryTurns: 100,
		},
		Hub: HubConfig{
			BindAddr:     "0.0.0.0:8765",
			ReadLimit:    32 << 20, // 32 MiB
			PingInterval: 20 * time.Second,
			PingTimeout:  20 * time.Second,
			WelcomeText:  "WebSocket соединение установлено",
		},
	}
}

// NewConfig загружает конфигурацию приложения из .env, окружения и os.Args.
// extra регистрирует собственные флаги команды в том же наборе.
func NewConfig(extra ...func(*flag.FlagSet)) *Config {
	_ = godotenv.Load()

	cfg, err := Load(os.Args[1:], extra...)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load стартует с дефолтов и перекрывает их окружением и флагами args.
// .env здесь не читается: это делает NewConfig.
func Load(args []string, extra ...func(*flag.FlagSet)) (*Config, error) {
	cfg := Defaults()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}

	fs := flag.NewFlagSet("companion", flag.ContinueOnError)
	fs.BoolVar(&cfg.DebugMode, "debug-mode", cfg.DebugMode, "включить режим дебага")
	// Completion
	fs.StringVar(&cfg.Completion.BaseURL, "gpt-base-url", cfg.Completion.BaseURL, "базовый URL OpenAI-совместимого API")
	fs.StringVar(&cfg.Completion.APIKey, "gpt-api-key", cfg.Completion.APIKey, "API ключ (перекрывает ENV)")
	fs.StringVar(&cfg.Completion.Model, "gpt-model", cfg.Completion.Model, "идентификатор модели")
	fs.StringVar(&cfg.Completion.Proxy, "proxy", cfg.Completion.Proxy, "прокси host:port для http и https (опционально)")
	fs.Float64Var(&cfg.Completion.Temperature, "gpt-temperature", cfg.Completion.Temperature, "температура")
	fs.Int64Var(&cfg.Completion.MaxTokens, "gpt-max-tokens", cfg.Completion.MaxTokens, "максимум токенов ответа")
	fs.DurationVar(&cfg.Completion.Timeout, "gpt-timeout", cfg.Completion.Timeout, "таймаут запроса, напр. 60s")
	fs.IntVar(&cfg.Completion.MaxRetries, "gpt-max-retries", cfg.Completion.MaxRetries, "количество повторов запроса")
	// History
	fs.StringVar(&cfg.History.Backend, "history-backend", cfg.History.Backend, "хранилище истории: sqlite|memory")
	fs.StringVar(&cfg.History.DBPath, "history-db-path", cfg.History.DBPath, "путь к SQLite базе истории")
	fs.IntVar(&cfg.History.FetchLimit, "history-fetch-limit", cfg.History.FetchLimit, "сколько последних реплик читать из истории")
	// Hub
	fs.StringVar(&cfg.Hub.BindAddr, "hub-bind-addr", cfg.Hub.BindAddr, "адрес realtime-хаба (напр. 0.0.0.0:8765)")
	fs.Int64Var(&cfg.Hub.ReadLimit, "hub-read-limit", cfg.Hub.ReadLimit, "максимальный размер входящего фрейма, байт")
	fs.DurationVar(&cfg.Hub.PingInterval, "hub-ping-interval", cfg.Hub.PingInterval, "период keepalive-пингов")
	fs.DurationVar(&cfg.Hub.PingTimeout, "hub-ping-timeout", cfg.Hub.PingTimeout, "таймаут ожидания pong")
	for _, register := range extra {
		register(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Completion.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Completion.BaseURL), "/")
	cfg.Completion.Proxy = strings.TrimSpace(cfg.Completion.Proxy)
	cfg.History.Backend = strings.ToLower(strings.TrimSpace(cfg.History.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность значений.
func (c *Config) Validate() error {
	var errs []error
	if c.Completion.BaseURL == "" {
		errs = append(errs, errors.New("gpt base url is empty"))
	}
	if c.Completion.Proxy != "" {
		if _, _, err := net.SplitHostPort(c.Completion.Proxy); err != nil {
			errs = append(errs, fmt.Errorf("proxy must be host:port: %w", err))
		}
	}
	if c.Completion.MaxTokens <= 0 {
		errs = append(errs, errors.New("gpt max tokens must be positive"))
	}
	if c.Completion.MaxRetries < 0 {
		errs = append(errs, errors.New("gpt max retries must not be negative"))
	}
	if c.History.FetchLimit < 2 {
		errs = append(errs, errors.New("history fetch limit must be at least 2"))
	}
	switch c.History.Backend {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown history backend %q", c.History.Backend))
	}
	if c.Hub.ReadLimit <= 0 {
		errs = append(errs, errors.New("hub read limit must be positive"))
	}
	if c.Hub.PingInterval <= 0 || c.Hub.PingTimeout <= 0 {
		errs = append(errs, errors.New("hub ping interval and timeout must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
