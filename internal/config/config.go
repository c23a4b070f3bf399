package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment variable of the service.
const EnvPrefix = "NAVIGATION"

// ServiceConfig holds all configuration for the navigation service.
type ServiceConfig struct {
	Port       string `validate:"required"`
	AppEnv     string `validate:"required,oneof=development staging production test"`
	InstanceID string `validate:"required"`

	Routing    RoutingConfig
	Navigation NavigationConfig
	Broadcast  BroadcastConfig
	Kafka      KafkaConfig
}

// RoutingConfig configures the routing engine adapter.
type RoutingConfig struct {
	OSRMBaseURL string        `validate:"required,url"`
	Profile     string        `validate:"required"`
	Timeout     time.Duration `validate:"min=10s,max=30s"`
	MaxRetries  uint64        `validate:"max=10"`
	CacheTTL    time.Duration `validate:"min=0"`
}

// NavigationConfig tunes deviation detection.
type NavigationConfig struct {
	DeviationThresholdMeters float64       `validate:"gt=0"`
	RecalcCooldown           time.Duration `validate:"min=0"`
	AbandonAfter             time.Duration `validate:"min=0"`
}

// BroadcastConfig tunes WebSocket fan-out.
type BroadcastConfig struct {
	SendTimeout time.Duration `validate:"min=100ms"`
	MaxParallel int           `validate:"min=1,max=1024"`
}

// KafkaConfig configures event publication. Empty Brokers disables Kafka.
type KafkaConfig struct {
	Brokers        []string
	Topic          string        `validate:"required"`
	GroupPrefix    string
	PublishTimeout time.Duration `validate:"min=100ms"`
	PublishQueue   int           `validate:"min=1"`
}

// Enabled reports whether Kafka brokers are configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Load reads configuration from .env, an optional config file and
// NAVIGATION_* environment variables, in increasing priority.
func Load() (*ServiceConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVICE_PORT", "8000")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("INSTANCE_ID", "")
	v.SetDefault("OSRM_BASE_URL", "https://router.project-osrm.org")
	v.SetDefault("OSRM_PROFILE", "driving")
	v.SetDefault("ROUTING_TIMEOUT", "30s")
	v.SetDefault("ROUTING_MAX_RETRIES", 2)
	v.SetDefault("ROUTE_CACHE_TTL", "1m")
	v.SetDefault("DEVIATION_THRESHOLD_M", 50.0)
	v.SetDefault("RECALC_COOLDOWN", "5s")
	v.SetDefault("ABANDON_AFTER", "10m")
	v.SetDefault("BROADCAST_SEND_TIMEOUT", "5s")
	v.SetDefault("BROADCAST_MAX_PARALLEL", 32)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "navigation.events")
	v.SetDefault("KAFKA_GROUP_PREFIX", "")
	v.SetDefault("KAFKA_PUBLISH_TIMEOUT", "5s")
	v.SetDefault("KAFKA_PUBLISH_QUEUE", 1024)
}

func fromViper(v *viper.Viper) (*ServiceConfig, error) {
	instanceID := v.GetString("INSTANCE_ID")
	if instanceID == "" {
		host, _ := os.Hostname()
		instanceID = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}

	cfg := &ServiceConfig{
		Port:       normalizePort(v.GetString("SERVICE_PORT")),
		AppEnv:     v.GetString("APP_ENV"),
		InstanceID: instanceID,
		Routing: RoutingConfig{
			OSRMBaseURL: v.GetString("OSRM_BASE_URL"),
			Profile:     v.GetString("OSRM_PROFILE"),
			Timeout:     v.GetDuration("ROUTING_TIMEOUT"),
			MaxRetries:  v.GetUint64("ROUTING_MAX_RETRIES"),
			CacheTTL:    v.GetDuration("ROUTE_CACHE_TTL"),
		},
		Navigation: NavigationConfig{
			DeviationThresholdMeters: v.GetFloat64("DEVIATION_THRESHOLD_M"),
			RecalcCooldown:           v.GetDuration("RECALC_COOLDOWN"),
			AbandonAfter:             v.GetDuration("ABANDON_AFTER"),
		},
		Broadcast: BroadcastConfig{
			SendTimeout: v.GetDuration("BROADCAST_SEND_TIMEOUT"),
			MaxParallel: v.GetInt("BROADCAST_MAX_PARALLEL"),
		},
		Kafka: KafkaConfig{
			Brokers:        splitList(v.GetString("KAFKA_BROKERS")),
			Topic:          v.GetString("KAFKA_TOPIC"),
			GroupPrefix:    v.GetString("KAFKA_GROUP_PREFIX"),
			PublishTimeout: v.GetDuration("KAFKA_PUBLISH_TIMEOUT"),
			PublishQueue:   v.GetInt("KAFKA_PUBLISH_QUEUE"),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// normalizePort turns "8000" into ":8000" for http.Server.Addr.
func normalizePort(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
