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
	LogLevel       string `yaml:"log_level"`
	LogFile        string `yaml:"log_file"`
	LogMaxSizeMB   int    `yaml:"log_max_size_mb"`
	LogMaxBackups  int    `yaml:"log_max_backups"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	TraceStdout    bool   `yaml:"trace_stdout"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	API         APIConfig        `yaml:"api"`
	Audio       AudioConfig      `yaml:"audio"`
	STT         STTConfig        `yaml:"stt"`
	Assessor    AssessorConfig   `yaml:"assessor"`
	Session     SessionConfig    `yaml:"session"`
	Prompt      PromptConfig     `yaml:"prompt"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	// Presence announcements of speech backends.
	HeartbeatInterval int `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int `yaml:"heartbeat_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// APIConfig points at the remote interview API.
type APIConfig struct {
	BaseURL    string `yaml:"base_url"`
	AuthToken  string `yaml:"auth_token"`
	UserID     string `yaml:"user_id"`
	TimeoutMS  int    `yaml:"timeout_ms"`
	CacheTTLMS int    `yaml:"cache_ttl_ms"`
}

// AudioConfig describes the microphone input and the normalized capture format.
type AudioConfig struct {
	MicrophoneCommand string `yaml:"microphone_command"`
	DecoderCommand    string `yaml:"decoder_command"`
	InputSampleRate   int    `yaml:"input_sample_rate"`
	InputChannels     int    `yaml:"input_channels"`
	SampleRate        int    `yaml:"sample_rate"`
	Channels          int    `yaml:"channels"`
	FrameDurationMS   int    `yaml:"frame_duration_ms"`
}

type STTConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Mode           string `yaml:"mode"` // mock, exec, bus
	Command        string `yaml:"command"`
	ModelPath      string `yaml:"model_path"`
	Language       string `yaml:"language"`
	MockTranscript string `yaml:"mock_transcript"`
	PartialEveryMS int    `yaml:"partial_every_ms"`
	PublishInterim bool   `yaml:"publish_interim"`
	StopTimeoutMS  int    `yaml:"stop_timeout_ms"`
	IdleSessionMS  int    `yaml:"idle_session_ms"`
}

type AssessorConfig struct {
	Mode        string `yaml:"mode"` // azure, exec, mock
	AzureKey    string `yaml:"azure_key"`
	AzureRegion string `yaml:"azure_region"`
	Endpoint    string `yaml:"endpoint"`
	Language    string `yaml:"language"`
	Command     string `yaml:"command"`
	TimeoutMS   int    `yaml:"timeout_ms"`
}

// PromptConfig controls how questions are read aloud. Both commands empty
// means questions are only shown.
type PromptConfig struct {
	PlayerCommand string `yaml:"player_command"`
	SpeakCommand  string `yaml:"speak_command"`
	Voice         string `yaml:"voice"`
}

type SessionConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	TickMS      int `yaml:"tick_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-interview",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:      "info",
			LogMaxSizeMB:  10,
			LogMaxBackups: 3,
			OTLPInsecure:  true,
		},
		Bus: BusConfig{
			Embedded:          false,
			Port:              4222,
			Servers:           []string{"nats://localhost:4222"},
			ConnectTimeout:    2000,
			HeartbeatInterval: 1000,
			HeartbeatTimeout:  3500,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-interview.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   500,
		},
		API: APIConfig{
			BaseURL:    "http://localhost:3000/api/v1/ai-interview",
			TimeoutMS:  15000,
			CacheTTLMS: 60000,
		},
		Audio: AudioConfig{
			MicrophoneCommand: "arecord -q -f S16_LE -r 16000 -c 1 -t raw",
			InputSampleRate:   16000,
			InputChannels:     1,
			SampleRate:        16000,
			Channels:          1,
			FrameDurationMS:   20,
		},
		STT: STTConfig{
			Enabled:        false,
			Mode:           "mock",
			Language:       "en-US",
			PartialEveryMS: 800,
			PublishInterim: true,
			StopTimeoutMS:  5000,
			IdleSessionMS:  30000,
		},
		Assessor: AssessorConfig{
			Mode:      "mock",
			Language:  "en-US",
			TimeoutMS: 30000,
		},
		Session: SessionConfig{
			MaxAttempts: 4,
			TickMS:      1000,
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
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFile, "LOQA_TELEMETRY_LOG_FILE")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.TraceStdout, "LOQA_TELEMETRY_TRACE_STDOUT")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Bus.HeartbeatInterval, "LOQA_BUS_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Bus.HeartbeatTimeout, "LOQA_BUS_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOQA_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.API.BaseURL, "LOQA_API_BASE_URL")
	overrideString(&cfg.API.AuthToken, "LOQA_API_AUTH_TOKEN")
	overrideString(&cfg.API.UserID, "LOQA_API_USER_ID")
	overrideInt(&cfg.API.TimeoutMS, "LOQA_API_TIMEOUT_MS")
	overrideInt(&cfg.API.CacheTTLMS, "LOQA_API_CACHE_TTL_MS")
	overrideString(&cfg.Audio.MicrophoneCommand, "LOQA_AUDIO_MICROPHONE_COMMAND")
	overrideString(&cfg.Audio.DecoderCommand, "LOQA_AUDIO_DECODER_COMMAND")
	overrideInt(&cfg.Audio.InputSampleRate, "LOQA_AUDIO_INPUT_SAMPLE_RATE")
	overrideInt(&cfg.Audio.InputChannels, "LOQA_AUDIO_INPUT_CHANNELS")
	overrideInt(&cfg.Audio.FrameDurationMS, "LOQA_AUDIO_FRAME_DURATION_MS")
	overrideBool(&cfg.STT.Enabled, "LOQA_STT_ENABLED")
	overrideString(&cfg.STT.Mode, "LOQA_STT_MODE")
	overrideString(&cfg.STT.Command, "LOQA_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "LOQA_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "LOQA_STT_LANGUAGE")
	overrideString(&cfg.STT.MockTranscript, "LOQA_STT_MOCK_TRANSCRIPT")
	overrideInt(&cfg.STT.PartialEveryMS, "LOQA_STT_PARTIAL_EVERY_MS")
	overrideBool(&cfg.STT.PublishInterim, "LOQA_STT_PUBLISH_INTERIM")
	overrideInt(&cfg.STT.StopTimeoutMS, "LOQA_STT_STOP_TIMEOUT_MS")
	overrideInt(&cfg.STT.IdleSessionMS, "LOQA_STT_IDLE_SESSION_MS")
	overrideString(&cfg.Assessor.Mode, "LOQA_ASSESSOR_MODE")
	overrideString(&cfg.Assessor.AzureKey, "LOQA_ASSESSOR_AZURE_KEY")
	overrideString(&cfg.Assessor.AzureRegion, "LOQA_ASSESSOR_AZURE_REGION")
	overrideString(&cfg.Assessor.Endpoint, "LOQA_ASSESSOR_ENDPOINT")
	overrideString(&cfg.Assessor.Language, "LOQA_ASSESSOR_LANGUAGE")
	overrideString(&cfg.Assessor.Command, "LOQA_ASSESSOR_COMMAND")
	overrideInt(&cfg.Assessor.TimeoutMS, "LOQA_ASSESSOR_TIMEOUT_MS")
	overrideInt(&cfg.Session.MaxAttempts, "LOQA_SESSION_MAX_ATTEMPTS")
	overrideInt(&cfg.Session.TickMS, "LOQA_SESSION_TICK_MS")
	overrideString(&cfg.Prompt.PlayerCommand, "LOQA_PROMPT_PLAYER_COMMAND")
	overrideString(&cfg.Prompt.SpeakCommand, "LOQA_PROMPT_SPEAK_COMMAND")
	overrideString(&cfg.Prompt.Voice, "LOQA_PROMPT_VOICE")
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
		if cfg.Bus.Port != -1 && (cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535) {
			return errors.New("bus.port must be between 1 and 65535 (or -1 for random) when embedded mode is enabled")
		}
	} else if len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when embedded mode is disabled")
	}
	if cfg.Bus.HeartbeatInterval <= 0 {
		return errors.New("bus.heartbeat_interval_ms must be positive")
	}
	if cfg.Bus.HeartbeatTimeout < cfg.Bus.HeartbeatInterval {
		return errors.New("bus.heartbeat_timeout_ms must be >= heartbeat_interval_ms")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionMode != "ephemeral" && cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.API.BaseURL == "" {
		return errors.New("api.base_url must not be empty")
	}
	if cfg.API.TimeoutMS <= 0 {
		return errors.New("api.timeout_ms must be positive")
	}
	if cfg.Audio.SampleRate <= 0 || cfg.Audio.InputSampleRate <= 0 {
		return errors.New("audio sample rates must be positive")
	}
	if cfg.Audio.Channels != 1 {
		return errors.New("audio.channels must be 1 (mono capture)")
	}
	if cfg.Audio.InputChannels <= 0 {
		return errors.New("audio.input_channels must be positive")
	}
	if cfg.Audio.FrameDurationMS <= 0 {
		return errors.New("audio.frame_duration_ms must be positive")
	}
	switch cfg.STT.Mode {
	case "mock", "bus":
	case "exec":
		if cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	default:
		return errors.New("stt.mode must be one of mock|exec|bus")
	}
	if cfg.STT.IdleSessionMS < 0 {
		return errors.New("stt.idle_session_ms must not be negative")
	}
	switch cfg.Assessor.Mode {
	case "mock":
	case "azure":
		if cfg.Assessor.AzureKey == "" {
			return errors.New("assessor.azure_key must be set when mode=azure")
		}
		if cfg.Assessor.AzureRegion == "" && cfg.Assessor.Endpoint == "" {
			return errors.New("assessor.azure_region or assessor.endpoint must be set when mode=azure")
		}
	case "exec":
		if cfg.Assessor.Command == "" {
			return errors.New("assessor.command must be set when mode=exec")
		}
	default:
		return errors.New("assessor.mode must be one of azure|exec|mock")
	}
	if cfg.Session.MaxAttempts <= 0 {
		return errors.New("session.max_attempts must be >= 1")
	}
	if cfg.Session.TickMS <= 0 {
		return errors.New("session.tick_ms must be positive")
	}
	return nil
}

// FrameBytes is the size in bytes of one raw microphone frame.
func (a AudioConfig) FrameBytes() int {
	return a.InputSampleRate * a.InputChannels * 2 * a.FrameDurationMS / 1000
}
