// internal/common/config/config.go
package config

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	API           APIConfig          `mapstructure:"api"`
	Aggregator    AggregatorConfig   `mapstructure:"aggregator"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Push          PushConfig         `mapstructure:"push"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Snapshot      SnapshotConfig     `mapstructure:"snapshot"`
	Alerts        AlertsConfig       `mapstructure:"alerts"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

const (
	APIModeReal = "real"
	APIModeMock = "mock"
)

// APIConfig describes how the backend REST API is reached.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Mode    string `mapstructure:"mode"`    // "real" or "mock"
	Timeout int    `mapstructure:"timeout"` // milliseconds
	Token   string `mapstructure:"token"`

	// AdminArea marks the process as running inside the authenticated
	// dashboard, which enables the login-required hook on 401 responses.
	AdminArea bool   `mapstructure:"admin_area"`
	LoginPath string `mapstructure:"login_path"`

	ForceRealEndpoints []string `mapstructure:"force_real_endpoints"`

	Mock struct {
		MinLatency   int    `mapstructure:"min_latency"` // milliseconds
		MaxLatency   int    `mapstructure:"max_latency"` // milliseconds
		RegistryPath string `mapstructure:"registry_path"`
	} `mapstructure:"mock"`

	RateLimit struct {
		RequestsPerSecond float64 `mapstructure:"requests_per_second"`
		Burst             int     `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`
}

// AggregatorConfig holds settings for the resource aggregator.
type AggregatorConfig struct {
	Deadline        int  `mapstructure:"deadline"`         // milliseconds
	RefreshInterval int  `mapstructure:"refresh_interval"` // milliseconds, 0 runs once
	Authenticated   bool `mapstructure:"authenticated"`
}

// NotificationConfig holds settings for the notification synchronizer.
type NotificationConfig struct {
	PollInterval int    `mapstructure:"poll_interval"` // milliseconds
	ListPath     string `mapstructure:"list_path"`
	ReadPath     string `mapstructure:"read_path"`
	DeletePath   string `mapstructure:"delete_path"`

	PrivateChannelPrefix string   `mapstructure:"private_channel_prefix"`
	BroadcastChannel     string   `mapstructure:"broadcast_channel"`
	NotificationEvent    string   `mapstructure:"notification_event"`
	MessageEvents        []string `mapstructure:"message_events"`

	Toast struct {
		PreviewLength int `mapstructure:"preview_length"`
		Duration      int `mapstructure:"duration"` // milliseconds
	} `mapstructure:"toast"`
}

const (
	PushDriverNone   = "none"
	PushDriverMemory = "memory"
	PushDriverRedis  = "redis"
	PushDriverPusher = "pusher"
)

// PushConfig selects and configures the real-time transport.
type PushConfig struct {
	Driver         string `mapstructure:"driver"`
	EventNamespace string `mapstructure:"event_namespace"`

	Pusher PusherConfig `mapstructure:"pusher"`

	Redis struct {
		ChannelPrefix string `mapstructure:"channel_prefix"`
	} `mapstructure:"redis"`
}

type PusherConfig struct {
	Key          string `mapstructure:"key"`
	Cluster      string `mapstructure:"cluster"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	TLS          bool   `mapstructure:"tls"`
	AuthEndpoint string `mapstructure:"auth_endpoint"`
	PingInterval int    `mapstructure:"ping_interval"` // milliseconds
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SnapshotConfig controls publication of aggregated snapshots to Redis.
type SnapshotConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Key     string `mapstructure:"key"`
	Channel string `mapstructure:"channel"`
	TTL     int    `mapstructure:"ttl"` // milliseconds, 0 keeps the key
}

// AlertsConfig holds delivery settings for new-message toasts.
type AlertsConfig struct {
	Log bool `mapstructure:"log"`

	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`

	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`

	SES struct {
		Enabled   bool     `mapstructure:"enabled"`
		FromEmail string   `mapstructure:"from_email"`
		ToEmails  []string `mapstructure:"to_emails"`
	} `mapstructure:"ses"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}
