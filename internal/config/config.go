package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	CORSOrigins  []string `yaml:"cors_origins"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	MaxUploadMB  int      `yaml:"max_upload_mb"`
}

// ProviderConfig selects a chat or embedding backend.
type ProviderConfig struct {
	Type      string `yaml:"type"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
}

// IndexConfig selects the vector index implementation.
type IndexConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

// RAGConfig tunes ingestion and retrieval.
type RAGConfig struct {
	ChunkSize    int         `yaml:"chunk_size"`
	ChunkOverlap int         `yaml:"chunk_overlap"`
	TopK         int         `yaml:"top_k"`
	CacheSize    int         `yaml:"cache_size"`
	Index        IndexConfig `yaml:"index"`
}

// ChatConfig picks the conversation mode served on /chat.
type ChatConfig struct {
	Mode       string `yaml:"mode"`
	MaxHistory int    `yaml:"max_history"`
}

// StoryConfig configures the interactive story.
type StoryConfig struct {
	MaxScenes int `yaml:"max_scenes"`
}

// SessionConfig selects where session state lives.
type SessionConfig struct {
	Backend  string   `yaml:"backend"`
	TTL      Duration `yaml:"ttl"`
	RedisURL string   `yaml:"redis_url,omitempty"`
}

// PersonaConfig points at an optional persona file.
type PersonaConfig struct {
	File string `yaml:"file,omitempty"`
}

// GuardConfig limits what can be ingested.
type GuardConfig struct {
	UploadGlobs  []string `yaml:"upload_globs"`
	BlockedHosts []string `yaml:"blocked_hosts"`
	MaxChunks    int      `yaml:"max_chunks"`
}

// WatchConfig enables the drop folder.
type WatchConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// LogConfig controls console output.
type LogConfig struct {
	Verbose bool `yaml:"verbose"`
	JSON    bool `yaml:"json"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	DataDir  string         `yaml:"data_dir"`
	Server   ServerConfig   `yaml:"server"`
	LLM      ProviderConfig `yaml:"llm"`
	Embedder ProviderConfig `yaml:"embedder"`
	RAG      RAGConfig      `yaml:"rag"`
	Chat     ChatConfig     `yaml:"chat"`
	Story    StoryConfig    `yaml:"story"`
	Session  SessionConfig  `yaml:"session"`
	Persona  PersonaConfig  `yaml:"persona"`
	Guard    GuardConfig    `yaml:"guard"`
	Watch    WatchConfig    `yaml:"watch"`
	Log      LogConfig      `yaml:"log"`
}

// Duration reads "30s"-style values from YAML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	d.Duration = parsed
	return nil
}

// LoadEnv reads .env files into the process environment. Missing files are fine.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}
	cfg := &AppConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

// LoadDefault tries ./intelart.yaml first, then ~/.config/intelart/config.yaml.
// If neither exists, defaults are returned without touching the disk.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "intelart.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	applyEnv(cfg)
	return cfg, "", nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "intelart", "config.yaml"), nil
}

// Default mirrors the historical single-file deployment: llama3.1:8b on a
// local Ollama for both chat and embeddings, 1000/150 chunks, top 7.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.DataDir = filepath.Join(home, ".intelart")
		} else {
			cfg.DataDir = ".intelart"
		}
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.ReadTimeout.Duration == 0 {
		cfg.Server.ReadTimeout.Duration = 60 * time.Second
	}
	if cfg.Server.WriteTimeout.Duration == 0 {
		cfg.Server.WriteTimeout.Duration = 5 * time.Minute
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 50
	}

	if cfg.LLM.Type == "" {
		cfg.LLM.Type = "ollama"
	}
	if cfg.LLM.Model == "" && cfg.LLM.Type == "ollama" {
		cfg.LLM.Model = "llama3.1:8b"
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = cfg.LLM.Type
		if cfg.Embedder.Type == "anthropic" {
			cfg.Embedder.Type = "ollama"
		}
	}
	if cfg.Embedder.Model == "" && cfg.Embedder.Type == cfg.LLM.Type {
		cfg.Embedder.Model = cfg.LLM.Model
	}
	if cfg.Embedder.Model == "" && cfg.Embedder.Type == "ollama" {
		cfg.Embedder.Model = "llama3.1:8b"
	}
	for _, p := range []*ProviderConfig{&cfg.LLM, &cfg.Embedder} {
		if p.APIKeyEnv == "" {
			switch p.Type {
			case "openai":
				p.APIKeyEnv = "OPENAI_API_KEY"
			case "anthropic":
				p.APIKeyEnv = "ANTHROPIC_API_KEY"
			case "gemini":
				p.APIKeyEnv = "GEMINI_API_KEY"
			}
		}
	}

	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = 1000
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = 150
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 7
	}
	if cfg.RAG.CacheSize == 0 {
		cfg.RAG.CacheSize = 1024
	}
	if cfg.RAG.Index.Type == "" {
		cfg.RAG.Index.Type = "chromem"
	}
	if cfg.RAG.Index.Path == "" {
		cfg.RAG.Index.Path = "intelart_index"
	}

	if cfg.Chat.Mode == "" {
		cfg.Chat.Mode = "knowledge"
	}
	if cfg.Chat.MaxHistory == 0 {
		cfg.Chat.MaxHistory = 40
	}
	if cfg.Story.MaxScenes == 0 {
		cfg.Story.MaxScenes = 10
	}

	if cfg.Session.Backend == "" {
		cfg.Session.Backend = "memory"
	}
	if cfg.Session.TTL.Duration == 0 {
		cfg.Session.TTL.Duration = 40 * time.Minute
	}

	if len(cfg.Guard.UploadGlobs) == 0 {
		cfg.Guard.UploadGlobs = []string{"*.pdf"}
	}
	if cfg.Guard.BlockedHosts == nil {
		cfg.Guard.BlockedHosts = []string{"localhost", "127.*", "0.0.0.0", "169.254.*", "[::1]", "::1"}
	}
	if cfg.Guard.MaxChunks == 0 {
		cfg.Guard.MaxChunks = 5000
	}
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("INTELART_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("INTELART_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" && cfg.Session.RedisURL == "" {
		cfg.Session.RedisURL = v
	}
}

// IndexPath resolves the index location relative to the data dir.
func (c *AppConfig) IndexPath() string {
	if filepath.IsAbs(c.RAG.Index.Path) {
		return c.RAG.Index.Path
	}
	return filepath.Join(c.DataDir, c.RAG.Index.Path)
}

// Validate reports configuration mistakes that would only surface at request time.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunk_overlap (%d) must be smaller than rag.chunk_size (%d)", c.RAG.ChunkOverlap, c.RAG.ChunkSize))
	}
	if c.RAG.TopK < 1 {
		errs = append(errs, errors.New("rag.top_k must be at least 1"))
	}
	switch c.RAG.Index.Type {
	case "chromem", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown rag.index.type %q", c.RAG.Index.Type))
	}
	switch c.Chat.Mode {
	case "knowledge", "story":
	default:
		errs = append(errs, fmt.Errorf("unknown chat.mode %q", c.Chat.Mode))
	}
	switch c.Session.Backend {
	case "memory", "sqlite":
	case "redis":
		if c.Session.RedisURL == "" {
			errs = append(errs, errors.New("session.redis_url (or REDIS_URL) is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session.backend %q", c.Session.Backend))
	}
	if c.Embedder.Type == "anthropic" {
		errs = append(errs, errors.New("embedder.type anthropic cannot produce embeddings"))
	}
	if c.Story.MaxScenes < 1 {
		errs = append(errs, errors.New("story.max_scenes must be at least 1"))
	}
	return errors.Join(errs...)
}
