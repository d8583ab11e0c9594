// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on top
// and applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	// 1. base config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// 2. environment config
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // ignore error if not found

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	// PORTFOLIO_API_BASE_URL overrides api.base_url
	v.SetEnvPrefix("portfolio")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads the first .env found walking up towards the module root.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars replaces ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// Direct override if secrets are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.API.Token == "" {
		if val := os.Getenv("API_TOKEN"); val != "" {
			cfg.API.Token = val
		}
	}
	if cfg.API.BaseURL == "" {
		if val := os.Getenv("API_URL"); val != "" {
			cfg.API.BaseURL = val
		}
	}
	if cfg.Push.Pusher.Key == "" {
		if val := os.Getenv("PUSHER_APP_KEY"); val != "" {
			cfg.Push.Pusher.Key = val
		}
	}
	if cfg.Push.Pusher.Cluster == "" {
		if val := os.Getenv("PUSHER_APP_CLUSTER"); val != "" {
			cfg.Push.Pusher.Cluster = val
		}
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "portfolio-sync"
	}

	// API defaults
	if cfg.API.Mode == "" {
		cfg.API.Mode = APIModeReal
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 15000
	}
	if cfg.API.LoginPath == "" {
		cfg.API.LoginPath = "/auth/login"
	}
	if cfg.API.Mock.MinLatency == 0 && cfg.API.Mock.MaxLatency == 0 {
		cfg.API.Mock.MinLatency = 300
		cfg.API.Mock.MaxLatency = 800
	}
	if cfg.API.RateLimit.RequestsPerSecond > 0 && cfg.API.RateLimit.Burst == 0 {
		cfg.API.RateLimit.Burst = 1
	}

	// Aggregator defaults
	if cfg.Aggregator.Deadline == 0 {
		cfg.Aggregator.Deadline = 8000
	}

	// Notification defaults
	n := &cfg.Notifications
	if n.PollInterval == 0 {
		n.PollInterval = 15000
	}
	if n.ListPath == "" {
		n.ListPath = "/admin/contact-us"
	}
	if n.ReadPath == "" {
		n.ReadPath = "/admin/contact-us/read"
	}
	if n.DeletePath == "" {
		n.DeletePath = "/admin/contact-us/delete"
	}
	if n.PrivateChannelPrefix == "" {
		n.PrivateChannelPrefix = "App.Models.User."
	}
	if n.BroadcastChannel == "" {
		n.BroadcastChannel = "messages"
	}
	if n.NotificationEvent == "" {
		n.NotificationEvent = `.Illuminate\Notifications\Events\BroadcastNotificationCreated`
	}
	if len(n.MessageEvents) == 0 {
		n.MessageEvents = []string{".MessageSent", "MessageSent"}
	}
	if n.Toast.PreviewLength == 0 {
		n.Toast.PreviewLength = 40
	}
	if n.Toast.Duration == 0 {
		n.Toast.Duration = 6000
	}

	// Push defaults
	if cfg.Push.Driver == "" {
		cfg.Push.Driver = PushDriverNone
	}
	if cfg.Push.EventNamespace == "" {
		cfg.Push.EventNamespace = `App\Events`
	}
	if cfg.Push.Pusher.AuthEndpoint == "" && cfg.API.BaseURL != "" {
		cfg.Push.Pusher.AuthEndpoint = strings.TrimRight(cfg.API.BaseURL, "/") + "/broadcasting/auth"
	}
	if cfg.Push.Pusher.PingInterval == 0 {
		cfg.Push.Pusher.PingInterval = 30000
	}
	if cfg.Push.Redis.ChannelPrefix == "" {
		cfg.Push.Redis.ChannelPrefix = "portfolio:push:"
	}

	// Snapshot defaults
	if cfg.Snapshot.Key == "" {
		cfg.Snapshot.Key = "portfolio:snapshot"
	}
	if cfg.Snapshot.Channel == "" {
		cfg.Snapshot.Channel = "portfolio:snapshot:updated"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9090"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	switch cfg.API.Mode {
	case APIModeReal:
		if cfg.API.BaseURL == "" {
			return fmt.Errorf("api.base_url is required")
		}
	case APIModeMock:
		if len(cfg.API.ForceRealEndpoints) > 0 && cfg.API.BaseURL == "" {
			return fmt.Errorf("api.base_url is required when api.force_real_endpoints is set")
		}
		if cfg.API.Mock.MaxLatency < cfg.API.Mock.MinLatency {
			return fmt.Errorf("api.mock.max_latency must not be lower than api.mock.min_latency")
		}
	default:
		return fmt.Errorf("api.mode must be %q or %q, got %q", APIModeReal, APIModeMock, cfg.API.Mode)
	}

	if cfg.Aggregator.Deadline < 0 {
		return fmt.Errorf("aggregator.deadline must be positive")
	}
	if cfg.Notifications.PollInterval < 0 {
		return fmt.Errorf("notifications.poll_interval must be positive")
	}

	switch cfg.Push.Driver {
	case PushDriverNone, PushDriverMemory:
	case PushDriverRedis:
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required for the redis push driver")
		}
	case PushDriverPusher:
		if cfg.Push.Pusher.Key == "" {
			return fmt.Errorf("push.pusher.key is required")
		}
		if cfg.Push.Pusher.Host == "" && cfg.Push.Pusher.Cluster == "" {
			return fmt.Errorf("push.pusher.host or push.pusher.cluster is required")
		}
	default:
		return fmt.Errorf("unknown push.driver %q", cfg.Push.Driver)
	}

	if cfg.Snapshot.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when snapshot publishing is enabled")
	}

	if cfg.Alerts.SNS.Enabled && cfg.Alerts.SNS.TopicARN == "" {
		return fmt.Errorf("alerts.sns.topic_arn is required")
	}
	if cfg.Alerts.SES.Enabled {
		if cfg.Alerts.SES.FromEmail == "" {
			return fmt.Errorf("alerts.ses.from_email is required")
		}
		if len(cfg.Alerts.SES.ToEmails) == 0 {
			return fmt.Errorf("alerts.ses.to_emails is required")
		}
	}
	if (cfg.Alerts.SNS.Enabled || cfg.Alerts.SES.Enabled) && cfg.Alerts.AWS.Region == "" {
		return fmt.Errorf("alerts.aws.region is required")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
