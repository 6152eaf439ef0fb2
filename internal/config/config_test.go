package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir:  "/home/user/.local/share/vj",
		LogDir:   "/home/user/.local/share/vj/log",
		AudioDir: "/home/user/.local/share/vj/audio",
		Remote: RemoteConfig{
			Type:           "s3",
			Name:           "minio",
			RootPath:       "/VoiceJournal",
			S3Bucket:       "journal",
			S3Region:       "us-east-1",
			S3Endpoint:     "http://localhost:9000",
			S3UsePathStyle: true,
		},
		Database:      DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/vj/db"},
		Transcription: TranscriptionConfig{Type: "http", Endpoint: "http://localhost:8080/transcribe", TimeoutSeconds: 120},
		Sync:          SyncConfig{Concurrency: 4, CreateMissingTags: CreateTagsNever, Ignore: []string{"*.tmp", ".DS_Store"}},
		Encryption: EncryptionConfig{
			PublicKeyPath:  "/home/user/.local/share/vj/keys/vj.pub",
			PrivateKeyPath: "/home/user/.local/share/vj/keys/vj.key",
		},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if diff := cmp.Diff(original, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_Read_Dropbox(t *testing.T) {
	input := `
base_dir = "/data/vj"

[remote]
type = "dropbox"
root_path = "/Journal"
app_key = "abc123"
token_path = "/data/vj/token.age"

[sync]
create_missing_tags = "always"
`
	m := &Manager{}
	cfg, err := m.Read(bytes.NewBufferString(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cfg.Remote.Type != "dropbox" || cfg.Remote.AppKey != "abc123" || cfg.Remote.RootPath != "/Journal" {
		t.Errorf("Remote = %+v", cfg.Remote)
	}
	if cfg.Sync.CreateMissingTags != CreateTagsAlways {
		t.Errorf("Sync.CreateMissingTags = %q, want %q", cfg.Sync.CreateMissingTags, CreateTagsAlways)
	}
	if cfg.Sync.Concurrency != 0 {
		t.Errorf("Sync.Concurrency = %d, want 0", cfg.Sync.Concurrency)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/vj")

	checks := []struct {
		name, got, want string
	}{
		{"BaseDir", cfg.BaseDir, "/data/vj"},
		{"LogDir", cfg.LogDir, "/data/vj/log"},
		{"AudioDir", cfg.AudioDir, "/data/vj/audio"},
		{"Remote.Type", cfg.Remote.Type, "dropbox"},
		{"Remote.RootPath", cfg.Remote.RootPath, DefaultRootPath},
		{"Remote.TokenPath", cfg.Remote.TokenPath, "/data/vj/dropbox-token.age"},
		{"Database.DataDir", cfg.Database.DataDir, "/data/vj/db"},
		{"Sync.CreateMissingTags", cfg.Sync.CreateMissingTags, CreateTagsPrompt},
		{"Encryption.PublicKeyPath", cfg.Encryption.PublicKeyPath, "/data/vj/keys/vj.pub"},
		{"Encryption.PrivateKeyPath", cfg.Encryption.PrivateKeyPath, "/data/vj/keys/vj.key"},
		{"Tracing.Type", cfg.Tracing.Type, "none"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
	if got := cfg.Transcription.Timeout(); got != 10*time.Minute {
		t.Errorf("Transcription.Timeout() = %v, want 10m", got)
	}
}

func TestTranscriptionConfig_Timeout(t *testing.T) {
	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{0, DefaultTranscriptionTimeout},
		{-5, DefaultTranscriptionTimeout},
		{30, 30 * time.Second},
	}
	for _, tt := range tests {
		got := TranscriptionConfig{TimeoutSeconds: tt.seconds}.Timeout()
		if got != tt.want {
			t.Errorf("Timeout(%d) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown tag policy", func(c *Config) { c.Sync.CreateMissingTags = "sometimes" }, true},
		{"negative concurrency", func(c *Config) { c.Sync.Concurrency = -1 }, true},
		{"http without endpoint", func(c *Config) { c.Transcription.Type = "http" }, true},
		{"http with endpoint", func(c *Config) {
			c.Transcription = TranscriptionConfig{Type: "http", Endpoint: "http://localhost"}
		}, false},
		{"otlp without endpoint", func(c *Config) { c.Tracing.Type = "otlp" }, true},
		{"otlp with endpoint", func(c *Config) { c.Tracing = TracingConfig{Type: "otlp", Endpoint: "localhost:4317"} }, false},
		{"unknown tracing type", func(c *Config) { c.Tracing.Type = "zipkin" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(t.TempDir())
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "vj.toml")

		if err := Init(path, NewConfig(dir)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "vj.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}
		if err := Init(path, cfg); err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "vj.toml")
		cfg := NewConfig(dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
		if got.BaseDir != dir {
			t.Errorf("BaseDir = %q, want %q", got.BaseDir, dir)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ReadFromFile("/nonexistent/path/vj.toml"); err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
