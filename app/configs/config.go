package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Config struct {
	Server  ServerConfig  `json:"server"`
	LLM     LLMConfig     `json:"llm"`
	Odoo    OdooConfig    `json:"odoo"`
	KB      KBConfig      `json:"kb"`
	Webhook WebhookConfig `json:"webhook"`
}

type ServerConfig struct {
	Port int `json:"port"`
}

type LLMConfig struct {
	BaseURL           string `json:"base_url,omitempty"`
	RouterModel       string `json:"router_model"`
	KnowledgeModel    string `json:"knowledge_model"`
	DataOpsModel      string `json:"data_ops_model"`
	WorkflowModel     string `json:"workflow_model"`
	EmbeddingModel    string `json:"embedding_model"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
	MaxToolIterations int    `json:"max_tool_iterations"`
}

type OdooConfig struct {
	URL        string `json:"url"`
	Database   string `json:"database"`
	User       string `json:"user"`
	TimeoutSec int    `json:"timeout_sec"`
}

type KBConfig struct {
	Dir          string `json:"dir"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
	RetrieveK    int    `json:"retrieve_k"`
}

type WebhookConfig struct {
	QueueBuffer int `json:"queue_buffer"`
	Workers     int `json:"workers"`
}

// Secrets are read from the environment only and never written to the
// config file.
type Secrets struct {
	OpenAIAPIKey string
	OdooAPIKey   string
}

func LoadSecrets() Secrets {
	return Secrets{
		OpenAIAPIKey: strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OdooAPIKey:   strings.TrimSpace(os.Getenv("ODOO_API_KEY")),
	}
}

type Manager struct {
	path string
	mu   sync.RWMutex
	cfg  Config
}

func DefaultPath() string {
	return filepath.Join("config", "config.json")
}

func NewManager(path string) (*Manager, error) {
	cfg := defaultConfig()
	mgr := &Manager{
		path: path,
		cfg:  cfg,
	}
	if err := mgr.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	if err := mgr.save(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Update(apply func(*Config)) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(&m.cfg)
	applyDefaults(&m.cfg)
	if err := m.saveLocked(); err != nil {
		return Config{}, err
	}
	return m.cfg, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return err
	}
	m.cfg = fileCfg
	applyDefaults(&m.cfg)
	return nil
}

func (m *Manager) save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port: 8080,
		},
		LLM: LLMConfig{
			RouterModel:       "gpt-4o",
			KnowledgeModel:    "gpt-4o-mini",
			DataOpsModel:      "gpt-4o-mini",
			WorkflowModel:     "gpt-4o",
			EmbeddingModel:    "text-embedding-3-small",
			RequestTimeoutSec: 60,
			MaxToolIterations: 12,
		},
		Odoo: OdooConfig{
			URL:        "http://localhost:8069",
			Database:   "odoo",
			User:       "admin@example.com",
			TimeoutSec: 10,
		},
		KB: KBConfig{
			Dir:          "knowledge_base",
			ChunkSize:    1000,
			ChunkOverlap: 150,
			RetrieveK:    4,
		},
		Webhook: WebhookConfig{
			QueueBuffer: 64,
			Workers:     2,
		},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if strings.TrimSpace(cfg.LLM.RouterModel) == "" {
		cfg.LLM.RouterModel = "gpt-4o"
	}
	if strings.TrimSpace(cfg.LLM.KnowledgeModel) == "" {
		cfg.LLM.KnowledgeModel = "gpt-4o-mini"
	}
	if strings.TrimSpace(cfg.LLM.DataOpsModel) == "" {
		cfg.LLM.DataOpsModel = "gpt-4o-mini"
	}
	if strings.TrimSpace(cfg.LLM.WorkflowModel) == "" {
		cfg.LLM.WorkflowModel = "gpt-4o"
	}
	if strings.TrimSpace(cfg.LLM.EmbeddingModel) == "" {
		cfg.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.LLM.RequestTimeoutSec <= 0 {
		cfg.LLM.RequestTimeoutSec = 60
	}
	if cfg.LLM.MaxToolIterations <= 0 {
		cfg.LLM.MaxToolIterations = 12
	}
	if strings.TrimSpace(cfg.Odoo.URL) == "" {
		cfg.Odoo.URL = "http://localhost:8069"
	}
	if strings.TrimSpace(cfg.Odoo.Database) == "" {
		cfg.Odoo.Database = "odoo"
	}
	if strings.TrimSpace(cfg.Odoo.User) == "" {
		cfg.Odoo.User = "admin@example.com"
	}
	if cfg.Odoo.TimeoutSec <= 0 {
		cfg.Odoo.TimeoutSec = 10
	}
	if strings.TrimSpace(cfg.KB.Dir) == "" {
		cfg.KB.Dir = "knowledge_base"
	}
	if cfg.KB.ChunkSize <= 0 {
		cfg.KB.ChunkSize = 1000
	}
	if cfg.KB.ChunkOverlap < 0 || cfg.KB.ChunkOverlap >= cfg.KB.ChunkSize {
		cfg.KB.ChunkOverlap = 150
	}
	if cfg.KB.ChunkOverlap >= cfg.KB.ChunkSize {
		cfg.KB.ChunkOverlap = cfg.KB.ChunkSize / 4
	}
	if cfg.KB.RetrieveK <= 0 {
		cfg.KB.RetrieveK = 4
	}
	if cfg.Webhook.QueueBuffer <= 0 {
		cfg.Webhook.QueueBuffer = 64
	}
	if cfg.Webhook.Workers <= 0 {
		cfg.Webhook.Workers = 2
	}
}
