// Package config assembles runtime configuration in three layers: compiled
// defaults, an optional YAML file, then environment variables. Later layers
// win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Server struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
}

type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

type Chroma struct {
	URL             string        `yaml:"url"`
	TextCollection  string        `yaml:"text_collection"`
	ImageCollection string        `yaml:"image_collection"`
	Timeout         time.Duration `yaml:"timeout"`
}

type Embedding struct {
	URL        string        `yaml:"url"`
	TextModel  string        `yaml:"text_model"`
	ImageModel string        `yaml:"image_model"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
}

type Reranker struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type LLM struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type Pipeline struct {
	RetrievalK       int           `yaml:"retrieval_k"`
	TextFusionLimit  int           `yaml:"text_fusion_limit"`
	ImageFusionLimit int           `yaml:"image_fusion_limit"`
	TextTopN         int           `yaml:"text_top_n"`
	ImageTopN        int           `yaml:"image_top_n"`
	RRFK             int           `yaml:"rrf_k"`
	ConfidenceOffset float64       `yaml:"confidence_offset"`
	ConfidenceCutoff float64       `yaml:"confidence_cutoff"`
	RewriteTimeout   time.Duration `yaml:"rewrite_timeout"`
	RetrievalTimeout time.Duration `yaml:"retrieval_timeout"`
	RerankTimeout    time.Duration `yaml:"rerank_timeout"`
}

type Resilience struct {
	BreakerEnabled          bool          `yaml:"breaker_enabled"`
	BreakerMinRequests      uint32        `yaml:"breaker_min_requests"`
	BreakerFailureRatio     float64       `yaml:"breaker_failure_ratio"`
	BreakerOpenTimeout      time.Duration `yaml:"breaker_open_timeout"`
	BreakerHalfOpenMaxCalls uint32        `yaml:"breaker_half_open_max_calls"`
}

type Config struct {
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
	Chroma     Chroma     `yaml:"chroma"`
	Embedding  Embedding  `yaml:"embedding"`
	Reranker   Reranker   `yaml:"reranker"`
	LLM        LLM        `yaml:"llm"`
	Pipeline   Pipeline   `yaml:"pipeline"`
	Resilience Resilience `yaml:"resilience"`
}

func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8000",
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimitRPS:    5,
			RateLimitBurst:  10,
		},
		Logging: Logging{
			Level:   "info",
			Service: "rag-api",
		},
		Chroma: Chroma{
			URL:             "http://localhost:8001",
			TextCollection:  "text_knowledge",
			ImageCollection: "multimodal_knowledge",
			Timeout:         60 * time.Second,
		},
		Embedding: Embedding{
			URL:        "http://localhost:8002/v1",
			TextModel:  "Qwen/Qwen3-Embedding-0.6B",
			ImageModel: "clip-ViT-B-32",
			Timeout:    30 * time.Second,
		},
		Reranker: Reranker{
			URL:     "http://localhost:8003",
			Timeout: 30 * time.Second,
		},
		LLM: LLM{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "google/gemini-2.0-flash-lite-preview-02-05:free",
			Timeout: 60 * time.Second,
		},
		Pipeline: Pipeline{
			RetrievalK:       10,
			TextFusionLimit:  15,
			ImageFusionLimit: 10,
			TextTopN:         4,
			ImageTopN:        3,
			RRFK:             60,
			ConfidenceOffset: 0.5,
			ConfidenceCutoff: 25.0,
			RewriteTimeout:   15 * time.Second,
			RetrievalTimeout: 30 * time.Second,
			RerankTimeout:    30 * time.Second,
		},
		Resilience: Resilience{
			BreakerEnabled:          true,
			BreakerMinRequests:      10,
			BreakerFailureRatio:     0.5,
			BreakerOpenTimeout:      30 * time.Second,
			BreakerHalfOpenMaxCalls: 2,
		},
	}
}

// Load builds the effective configuration. The YAML path comes from
// CONFIG_PATH; config.yaml in the working directory is picked up when the
// variable is unset. A missing file is not an error.
func Load() (Config, error) {
	cfg := Default()

	path := strings.TrimSpace(os.Getenv("CONFIG_PATH"))
	explicit := path != ""
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	} else if explicit {
		return cfg, fmt.Errorf("read config file %s: %w", path, err)
	}

	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	envStr("HTTP_ADDR", &cfg.Server.Addr)
	envFloat("RATE_LIMIT_RPS", &cfg.Server.RateLimitRPS)
	envInt("RATE_LIMIT_BURST", &cfg.Server.RateLimitBurst)

	envStr("LOG_LEVEL", &cfg.Logging.Level)
	envStr("SERVICE_NAME", &cfg.Logging.Service)

	envStr("CHROMA_URL", &cfg.Chroma.URL)
	envStr("CHROMA_TEXT_COLLECTION", &cfg.Chroma.TextCollection)
	envStr("CHROMA_IMAGE_COLLECTION", &cfg.Chroma.ImageCollection)

	envStr("EMBEDDING_URL", &cfg.Embedding.URL)
	envStr("EMBEDDING_TEXT_MODEL", &cfg.Embedding.TextModel)
	envStr("EMBEDDING_IMAGE_MODEL", &cfg.Embedding.ImageModel)
	envStr("EMBEDDING_API_KEY", &cfg.Embedding.APIKey)

	envStr("RERANKER_URL", &cfg.Reranker.URL)

	envStr("LLM_BASE_URL", &cfg.LLM.BaseURL)
	envStr("OPENROUTER_API_KEY", &cfg.LLM.APIKey)
	envStr("LLM_MODEL", &cfg.LLM.Model)

	envInt("RETRIEVAL_K", &cfg.Pipeline.RetrievalK)
	envInt("RRF_K", &cfg.Pipeline.RRFK)
	envFloat("CONFIDENCE_OFFSET", &cfg.Pipeline.ConfidenceOffset)
	envFloat("CONFIDENCE_CUTOFF", &cfg.Pipeline.ConfidenceCutoff)
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config: server addr must not be empty")
	}
	if c.Chroma.URL == "" {
		return fmt.Errorf("config: chroma url must not be empty")
	}
	if c.Pipeline.ConfidenceCutoff < 0 || c.Pipeline.ConfidenceCutoff > 100 {
		return fmt.Errorf("config: confidence cutoff %v out of range [0,100]", c.Pipeline.ConfidenceCutoff)
	}
	return nil
}

func envStr(key string, target *string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*target = strings.TrimSpace(v)
	}
}

func envInt(key string, target *int) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*target = parsed
		}
	}
}

func envFloat(key string, target *float64) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*target = parsed
		}
	}
}
