package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	StdoutTraces bool   `yaml:"stdout_traces"`
}

type HTTPConfig struct {
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
	Channel bool   `yaml:"channel"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Node        NodeConfig       `yaml:"node"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	STT         STTConfig        `yaml:"stt"`
	Bridge      BridgeConfig     `yaml:"bridge"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type NodeConfig struct {
	ID                string `yaml:"id"`
	Role              string `yaml:"role"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int    `yaml:"heartbeat_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// STTConfig selects and tunes the recognizer engine.
type STTConfig struct {
	Engine     string `yaml:"engine"` // mock, exec, vosk, whisper
	Command    string `yaml:"command"`
	ModelPath  string `yaml:"model_path"`
	Language   string `yaml:"language"`
	SampleRate int    `yaml:"sample_rate"`
	ChunkBytes int    `yaml:"chunk_bytes"`
}

// BridgeConfig controls the named request channel.
type BridgeConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Channel          string `yaml:"channel"`
	QueueGroup       string `yaml:"queue_group"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
	MaxConcurrency   int    `yaml:"max_concurrency"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-txbridge",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:    "0.0.0.0",
			Port:    8080,
			Channel: true,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Host:           "0.0.0.0",
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "txbridge-node-1",
			Role:              "stt-bridge",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/txbridge-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		STT: STTConfig{
			Engine:     "mock",
			SampleRate: 44100,
			ChunkBytes: 4096,
		},
		Bridge: BridgeConfig{
			Enabled:          true,
			Channel:          "voiceoutliner.tx",
			QueueGroup:       "txbridge",
			RequestTimeoutMS: 120000,
			MaxConcurrency:   4,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "TXBRIDGE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "TXBRIDGE_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "TXBRIDGE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "TXBRIDGE_HTTP_PORT")
	overrideBool(&cfg.HTTP.Channel, "TXBRIDGE_HTTP_CHANNEL")
	overrideString(&cfg.Telemetry.LogLevel, "TXBRIDGE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "TXBRIDGE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "TXBRIDGE_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.StdoutTraces, "TXBRIDGE_TELEMETRY_STDOUT_TRACES")
	overrideBool(&cfg.Bus.Embedded, "TXBRIDGE_BUS_EMBEDDED")
	overrideString(&cfg.Bus.Host, "TXBRIDGE_BUS_HOST")
	overrideInt(&cfg.Bus.Port, "TXBRIDGE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "TXBRIDGE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "TXBRIDGE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "TXBRIDGE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "TXBRIDGE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "TXBRIDGE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "TXBRIDGE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "TXBRIDGE_NODE_ID")
	overrideString(&cfg.Node.Role, "TXBRIDGE_NODE_ROLE")
	overrideInt(&cfg.Node.HeartbeatInterval, "TXBRIDGE_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "TXBRIDGE_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "TXBRIDGE_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "TXBRIDGE_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "TXBRIDGE_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "TXBRIDGE_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "TXBRIDGE_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.STT.Engine, "TXBRIDGE_STT_ENGINE")
	overrideString(&cfg.STT.Command, "TXBRIDGE_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "TXBRIDGE_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "TXBRIDGE_STT_LANGUAGE")
	overrideInt(&cfg.STT.SampleRate, "TXBRIDGE_STT_SAMPLE_RATE")
	overrideInt(&cfg.STT.ChunkBytes, "TXBRIDGE_STT_CHUNK_BYTES")
	overrideBool(&cfg.Bridge.Enabled, "TXBRIDGE_BRIDGE_ENABLED")
	overrideString(&cfg.Bridge.Channel, "TXBRIDGE_BRIDGE_CHANNEL")
	overrideString(&cfg.Bridge.QueueGroup, "TXBRIDGE_BRIDGE_QUEUE_GROUP")
	overrideInt(&cfg.Bridge.RequestTimeoutMS, "TXBRIDGE_BRIDGE_REQUEST_TIMEOUT_MS")
	overrideInt(&cfg.Bridge.MaxConcurrency, "TXBRIDGE_BRIDGE_MAX_CONCURRENCY")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.HeartbeatInterval <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if cfg.Node.HeartbeatTimeout <= cfg.Node.HeartbeatInterval {
		return errors.New("node.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	switch cfg.STT.Engine {
	case "mock", "exec", "vosk", "whisper":
	default:
		return errors.New("stt.engine must be one of mock|exec|vosk|whisper")
	}
	if cfg.STT.Engine == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when engine=exec")
	}
	if cfg.STT.SampleRate <= 0 {
		return errors.New("stt.sample_rate must be positive")
	}
	if cfg.STT.ChunkBytes <= 0 || cfg.STT.ChunkBytes%2 != 0 {
		return errors.New("stt.chunk_bytes must be a positive even number")
	}
	if cfg.Bridge.Enabled {
		if strings.TrimSpace(cfg.Bridge.Channel) == "" {
			return errors.New("bridge.channel must not be empty when the bridge is enabled")
		}
		if cfg.Bridge.RequestTimeoutMS <= 0 {
			return errors.New("bridge.request_timeout_ms must be positive")
		}
		if cfg.Bridge.MaxConcurrency <= 0 {
			return errors.New("bridge.max_concurrency must be >= 1")
		}
	}
	return nil
}
