package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied by NewConfig and by the zero-value accessors below.
const (
	DefaultRootPath             = "/VoiceJournal"
	DefaultTranscriptionTimeout = 600 * time.Second

	CreateTagsPrompt = "prompt"
	CreateTagsAlways = "always"
	CreateTagsNever  = "never"
)

// Config represents the main configuration for vj.
type Config struct {
	BaseDir       string              `toml:"base_dir"`
	LogDir        string              `toml:"log_dir"`
	AudioDir      string              `toml:"audio_dir"`
	Remote        RemoteConfig        `toml:"remote"`
	Database      DatabaseConfig      `toml:"database"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Sync          SyncConfig          `toml:"sync"`
	Encryption    EncryptionConfig    `toml:"encryption"`
	Tracing       TracingConfig       `toml:"tracing"`
}

// EncryptionConfig holds paths to the age key pair that seals stored credentials.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// RemoteConfig represents configuration for the remote folder backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type     string `toml:"type"` // "dropbox", "s3", "filesystem" or "memory"
	Name     string `toml:"name"`
	RootPath string `toml:"root_path"`

	// Dropbox-specific fields (only used when Type == "dropbox")
	AppKey    string `toml:"app_key,omitempty"`
	TokenPath string `toml:"token_path,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket       string `toml:"s3_bucket,omitempty"`
	S3Prefix       string `toml:"s3_prefix,omitempty"`
	S3Region       string `toml:"s3_region,omitempty"`
	S3Endpoint     string `toml:"s3_endpoint,omitempty"`
	S3UsePathStyle bool   `toml:"s3_use_path_style,omitempty"`
	S3AccessKeyID  string `toml:"s3_access_key_id,omitempty"`
	S3SecretKey    string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// DatabaseConfig represents configuration for the recording and tag stores.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// TranscriptionConfig selects the speech-to-text backend.
type TranscriptionConfig struct {
	Type           string `toml:"type"` // "http" or "none"
	Endpoint       string `toml:"endpoint,omitempty"`
	TimeoutSeconds int    `toml:"timeout_seconds,omitempty"`
}

// Timeout returns the per-request timeout, defaulting to ten minutes.
func (c TranscriptionConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultTranscriptionTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TracingConfig selects where sync spans are exported.
type TracingConfig struct {
	Type        string `toml:"type"`                   // "otlp" or "none"
	Endpoint    string `toml:"endpoint,omitempty"`     // host:port of an OTLP gRPC collector
	ServiceName string `toml:"service_name,omitempty"` // defaults to "vj"
	Insecure    bool   `toml:"insecure,omitempty"`     // plaintext gRPC, for a local collector
}

// SyncConfig tunes a sync pass.
type SyncConfig struct {
	Concurrency       int      `toml:"concurrency"`         // 0 runs every task at once
	CreateMissingTags string   `toml:"create_missing_tags"` // "prompt", "always" or "never"
	Ignore            []string `toml:"ignore"`
}

// NewConfig creates a new Config rooted at baseDir with default paths and backends.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		AudioDir: filepath.Join(baseDir, "audio"),
		Remote: RemoteConfig{
			Type:      "dropbox",
			Name:      "dropbox",
			RootPath:  DefaultRootPath,
			TokenPath: filepath.Join(baseDir, "dropbox-token.age"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Transcription: TranscriptionConfig{
			Type:           "none",
			TimeoutSeconds: int(DefaultTranscriptionTimeout / time.Second),
		},
		Sync: SyncConfig{
			CreateMissingTags: CreateTagsPrompt,
			Ignore:            []string{".*", "*.tmp"},
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "vj.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "vj.key"),
		},
		Tracing: TracingConfig{Type: "none"},
	}
}

// Validate checks the fields each tagged union needs.
func (c *Config) Validate() error {
	switch c.Sync.CreateMissingTags {
	case "", CreateTagsPrompt, CreateTagsAlways, CreateTagsNever:
	default:
		return fmt.Errorf("sync.create_missing_tags must be prompt, always or never, got %q", c.Sync.CreateMissingTags)
	}
	if c.Sync.Concurrency < 0 {
		return fmt.Errorf("sync.concurrency must not be negative")
	}
	if c.Transcription.Type == "http" && c.Transcription.Endpoint == "" {
		return fmt.Errorf("transcription type http requires endpoint to be set")
	}
	switch c.Tracing.Type {
	case "", "none":
	case "otlp":
		if c.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing type otlp requires endpoint to be set")
		}
	default:
		return fmt.Errorf("unknown tracing type: %s", c.Tracing.Type)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
