package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"deal_watcher/models"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DBURL      string `validate:"required"`
	CRM        CRMConfig
	Profitbase ProfitbaseConfig
	Scheduler  SchedulerConfig
	HTTP       HTTPConfig
	AMQP       AMQPConfig
	SMTP       SMTPConfig
	S3         S3Config
	Proxy      ProxyConfig
	Criterion  models.ContractCriterion
	LogFile    string
	LogLevel   string `validate:"oneof=debug info warn error"`
}

type CRMConfig struct {
	BaseURL  string `validate:"required,url"`
	Token    string `validate:"required"`
	PageSize int    `validate:"min=1,max=250"`
	MaxPages int    `validate:"min=1"`
}

type ProfitbaseConfig struct {
	BaseURL string `validate:"required,url"`
	APIKey  string `validate:"required"`
	RPS     int    `validate:"min=1"`
	Project string
}

type SchedulerConfig struct {
	Cron        string        `validate:"required"`
	RunTimeout  time.Duration `validate:"gt=0"`
	RetryWindow time.Duration `validate:"gt=0"`
}

type HTTPConfig struct {
	Addr    string
	Timeout time.Duration `validate:"gt=0"`
}

type AMQPConfig struct {
	URL      string `validate:"omitempty,url"`
	Exchange string
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string `validate:"omitempty,email"`
	Operator string `validate:"omitempty,email"`
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type ProxyConfig struct {
	URL string `validate:"omitempty,url"`
}

const defaultDBURL = "deal_watcher.db"

// DatabaseURL resolves DB_URL alone, for commands that only touch the record store.
func DatabaseURL() string {
	_ = godotenv.Load()
	return getEnv("DB_URL", defaultDBURL)
}

// Load reads settings from the environment (and .env). Malformed numbers or
// durations are reported as ErrConfig rather than replaced by defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var env envReader
	cfg := &Config{
		DBURL: getEnv("DB_URL", defaultDBURL),
		CRM: CRMConfig{
			BaseURL:  os.Getenv("AMO_URL"),
			Token:    os.Getenv("AMO_TOKEN"),
			PageSize: env.Int("AMO_PAGE_SIZE", 250),
			MaxPages: env.Int("AMO_MAX_PAGES", 500),
		},
		Profitbase: ProfitbaseConfig{
			BaseURL: os.Getenv("PROF_URL"),
			APIKey:  os.Getenv("PROF_API_KEY"),
			RPS:     env.Int("PROFITBASE_RPS", 5),
			Project: os.Getenv("PROJECT_NAME"),
		},
		Scheduler: SchedulerConfig{
			Cron:        getEnv("SCHEDULE", "0 */30 * * * *"),
			RunTimeout:  env.Duration("SYNC_TIMEOUT", 10*time.Minute),
			RetryWindow: env.Duration("SYNC_RETRY_WINDOW", 72*time.Hour),
		},
		HTTP: HTTPConfig{
			Addr:    getEnv("HTTP_ADDR", ":8080"),
			Timeout: env.Duration("HTTP_TIMEOUT", 30*time.Second),
		},
		AMQP: AMQPConfig{
			URL:      os.Getenv("AMQP_URL"),
			Exchange: getEnv("AMQP_EXCHANGE", "deal_watcher"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     env.Int("SMTP_PORT", 587),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     os.Getenv("SMTP_FROM"),
			Operator: os.Getenv("OPERATOR_EMAIL"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		Proxy:     ProxyConfig{URL: os.Getenv("PROXY_URL")},
		Criterion: models.DefaultCriterion(),
		LogFile:   getEnv("LOG_FILE", "deal_watcher.log"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
	}
	if err := errors.Join(env.errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrConfig, err)
	}

	if err := cfg.loadCriterion(getEnv("CRITERION_FILE", "config/criterion.yaml")); err != nil {
		return nil, fmt.Errorf("%w: criterion file: %w", models.ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %q", models.ErrConfig, verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %w", models.ErrConfig, err)
	}
	return nil
}

// loadCriterion overrides the default contract criterion when the file exists.
func (c *Config) loadCriterion(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var crit models.ContractCriterion
	if err := yaml.Unmarshal(data, &crit); err != nil {
		return err
	}
	if err := validator.New().Struct(crit); err != nil {
		return err
	}

	c.Criterion = crit
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// envReader parses typed settings and collects every malformed value.
type envReader struct {
	errs []error
}

func (e *envReader) Int(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q is not an integer", key, val))
		return defaultVal
	}
	return i
}

// Duration accepts Go duration syntax ("30s", "10m"); a bare number is rejected.
func (e *envReader) Duration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q is not a duration", key, val))
		return defaultVal
	}
	return d
}
