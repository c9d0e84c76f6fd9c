// Package config loads copilot settings from defaults, an optional TOML file
// and environment variables, in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/bambicim/copilot/internal/fusion"
	"github.com/bambicim/copilot/internal/tokenizer"
)

// Defaults
const (
	DefaultMaxDocs       = 60
	DefaultIndexTTL      = 600 * time.Second
	DefaultSnippetWidth  = 210
	DefaultParagraphLen  = 800
	DefaultANNMinCorpus  = 2000
	DefaultANNTopN       = 200
	DefaultDBPath        = "copilot.db"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultEmbedWorkers  = 4
	DefaultEmbedCacheLen = 10000

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Retrieval tunes the search pipeline.
type Retrieval struct {
	Mode            string  `toml:"mode"`
	Fusion          string  `toml:"fusion"`
	MaxDocs         int     `toml:"max_docs"`
	LexicalWeight   float64 `toml:"lexical_weight"`
	DenseWeight     float64 `toml:"dense_weight"`
	RRFK            int     `toml:"rrf_k"`
	IndexTTLSeconds int     `toml:"index_ttl_seconds"`
	TopK            int     `toml:"top_k"`
	SnippetWidth    int     `toml:"snippet_width"`
	ParagraphMaxLen int     `toml:"paragraph_max_len"`
	Language        string  `toml:"language"`
	Stopwords       bool    `toml:"stopwords"`
	DisableANN      bool    `toml:"disable_ann"`
	ANNMinCorpus    int     `toml:"ann_min_corpus"`
	ANNTopN         int     `toml:"ann_top_n"`
}

// Storage selects the document store.
type Storage struct {
	Driver      string `toml:"driver"`
	Path        string `toml:"path"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// Embedding configures the dense backend.
type Embedding struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	Host      string `toml:"host"`
	Dimension int    `toml:"dimension"`
	CacheDir  string `toml:"cache_dir"`
	CacheSize int    `toml:"cache_size"`
	Workers   int    `toml:"workers"`
	BatchSize int    `toml:"batch_size"`
}

// Crawler configures the page fetcher.
type Crawler struct {
	BaseURL         string   `toml:"base_url"`
	FallbackBaseURL string   `toml:"fallback_base_url"`
	Paths           []string `toml:"paths"`
	DelayMillis     int      `toml:"delay_ms"`
	TimeoutSeconds  int      `toml:"timeout_seconds"`
	UserAgent       string   `toml:"user_agent"`
}

// Observability configures logs and metrics.
type Observability struct {
	LogLevel    string `toml:"log_level"`
	LogFormat   string `toml:"log_format"`
	MetricsAddr string `toml:"metrics_addr"`
}

// Config is the full copilot configuration.
type Config struct {
	Retrieval     Retrieval     `toml:"retrieval"`
	Storage       Storage       `toml:"storage"`
	Embedding     Embedding     `toml:"embedding"`
	Crawler       Crawler       `toml:"crawler"`
	Observability Observability `toml:"observability"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Retrieval: Retrieval{
			Mode:            string(fusion.ModeHybrid),
			Fusion:          string(fusion.StrategyWeighted),
			MaxDocs:         DefaultMaxDocs,
			LexicalWeight:   fusion.DefaultLexicalWeight,
			DenseWeight:     fusion.DefaultDenseWeight,
			RRFK:            fusion.DefaultRRFK,
			IndexTTLSeconds: int(DefaultIndexTTL / time.Second),
			TopK:            fusion.DefaultTopK,
			SnippetWidth:    DefaultSnippetWidth,
			ParagraphMaxLen: DefaultParagraphLen,
			Language:        string(tokenizer.LangTurkish),
			ANNMinCorpus:    DefaultANNMinCorpus,
			ANNTopN:         DefaultANNTopN,
		},
		Storage: Storage{
			Driver: DriverSQLite,
			Path:   DefaultDBPath,
		},
		Embedding: Embedding{
			CacheSize: DefaultEmbedCacheLen,
			Workers:   DefaultEmbedWorkers,
		},
		Crawler: Crawler{
			Paths:          []string{"/"},
			DelayMillis:    500,
			TimeoutSeconds: 20,
			UserAgent:      "bambicim-copilot-indexer/1.0",
		},
		Observability: Observability{
			LogLevel:  DefaultLogLevel,
			LogFormat: DefaultLogFormat,
		},
	}
}

// Load builds the configuration: defaults, then path (if non-empty), then the
// environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Write stores the configuration as TOML.
func (c Config) Write(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyEnv(getenv func(string) string) {
	e := env{getenv: getenv}
	r := &c.Retrieval
	r.Mode = e.str(r.Mode, "RETRIEVER_MODE", "COPILOT_RETRIEVER")
	r.Fusion = e.str(r.Fusion, "FUSION")
	r.MaxDocs = e.integer(r.MaxDocs, "MAX_DOCS", "COPILOT_MAX_DOCS")
	r.LexicalWeight = e.number(r.LexicalWeight, "LEXICAL_WEIGHT")
	r.DenseWeight = e.number(r.DenseWeight, "DENSE_WEIGHT")
	r.RRFK = e.integer(r.RRFK, "RRF_K")
	r.IndexTTLSeconds = e.integer(r.IndexTTLSeconds, "INDEX_TTL_SECONDS")
	r.TopK = e.integer(r.TopK, "TOP_K")
	r.SnippetWidth = e.integer(r.SnippetWidth, "SNIPPET_WIDTH")
	r.ParagraphMaxLen = e.integer(r.ParagraphMaxLen, "PARAGRAPH_MAX_LEN")
	r.Language = e.str(r.Language, "COPILOT_LANG")
	r.DisableANN = e.boolean(r.DisableANN, "DISABLE_ANN")
	r.ANNMinCorpus = e.integer(r.ANNMinCorpus, "ANN_MIN_CORPUS")

	s := &c.Storage
	s.Driver = e.str(s.Driver, "COPILOT_DB_DRIVER")
	s.Path = e.str(s.Path, "COPILOT_DB_PATH")
	s.PostgresDSN = e.str(s.PostgresDSN, "POSTGRES_DSN")

	m := &c.Embedding
	m.Provider = e.str(m.Provider, "COPILOT_EMBEDDING_PROVIDER")
	m.Model = e.str(m.Model, "COPILOT_EMBED_MODEL")
	m.Host = e.str(m.Host, "COPILOT_EMBED_HOST")
	m.CacheDir = e.str(m.CacheDir, "COPILOT_VECTOR_CACHE_DIR")

	o := &c.Observability
	o.LogLevel = e.str(o.LogLevel, "LOG_LEVEL")
	o.LogFormat = e.str(o.LogFormat, "LOG_FORMAT")
	o.MetricsAddr = e.str(o.MetricsAddr, "METRICS_ADDR")
}

// usableWeight rejects negative, NaN and infinite fusion weights.
func usableWeight(w float64) bool {
	return w >= 0 && !math.IsInf(w, 0)
}

// Validate normalizes out-of-range values to defaults and rejects settings
// that cannot be repaired.
func (c *Config) Validate() error {
	r := &c.Retrieval
	r.Mode = string(fusion.ParseMode(r.Mode))
	r.Fusion = string(fusion.ParseStrategy(r.Fusion))
	r.Language = string(tokenizer.ParseLanguage(r.Language))
	if r.MaxDocs <= 0 {
		r.MaxDocs = DefaultMaxDocs
	}
	if !usableWeight(r.LexicalWeight) {
		r.LexicalWeight = fusion.DefaultLexicalWeight
	}
	if !usableWeight(r.DenseWeight) {
		r.DenseWeight = fusion.DefaultDenseWeight
	}
	if r.LexicalWeight == 0 && r.DenseWeight == 0 {
		r.LexicalWeight, r.DenseWeight = fusion.DefaultLexicalWeight, fusion.DefaultDenseWeight
	}
	if r.RRFK <= 0 {
		r.RRFK = fusion.DefaultRRFK
	}
	if r.IndexTTLSeconds <= 0 {
		r.IndexTTLSeconds = int(DefaultIndexTTL / time.Second)
	}
	if r.TopK <= 0 {
		r.TopK = fusion.DefaultTopK
	}
	if r.SnippetWidth <= 0 {
		r.SnippetWidth = DefaultSnippetWidth
	}
	if r.ParagraphMaxLen <= 0 {
		r.ParagraphMaxLen = DefaultParagraphLen
	}
	if r.ANNMinCorpus <= 0 {
		r.ANNMinCorpus = DefaultANNMinCorpus
	}
	if r.ANNTopN <= 0 {
		r.ANNTopN = DefaultANNTopN
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case "", DriverSQLite:
		c.Storage.Driver = DriverSQLite
		if c.Storage.Path == "" {
			c.Storage.Path = DefaultDBPath
		}
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("config: postgres driver requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}

	if c.Embedding.CacheSize < 0 {
		c.Embedding.CacheSize = 0
	}
	if c.Embedding.Workers <= 0 {
		c.Embedding.Workers = DefaultEmbedWorkers
	}

	if c.Crawler.DelayMillis < 0 {
		c.Crawler.DelayMillis = 0
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		c.Crawler.TimeoutSeconds = 20
	}

	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = DefaultLogLevel
	}
	if c.Observability.LogFormat == "" {
		c.Observability.LogFormat = DefaultLogFormat
	}
	return nil
}

// IndexTTL returns the cache lifetime as a duration.
func (r Retrieval) IndexTTL() time.Duration {
	return time.Duration(r.IndexTTLSeconds) * time.Second
}

// FusionOptions converts the retrieval settings for the fusion package.
func (r Retrieval) FusionOptions() fusion.Options {
	return fusion.Options{
		Mode:          fusion.ParseMode(r.Mode),
		Strategy:      fusion.ParseStrategy(r.Fusion),
		LexicalWeight: r.LexicalWeight,
		DenseWeight:   r.DenseWeight,
		RRFK:          r.RRFK,
	}
}

// env reads the first non-empty variable among keys, keeping fallback
// when none is set or the value does not parse.
type env struct {
	getenv func(string) string
}

func (e env) lookup(keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(e.getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func (e env) str(fallback string, keys ...string) string {
	if v := e.lookup(keys); v != "" {
		return v
	}
	return fallback
}

func (e env) integer(fallback int, keys ...string) int {
	v := e.lookup(keys)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (e env) number(fallback float64, keys ...string) float64 {
	v := e.lookup(keys)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func (e env) boolean(fallback bool, keys ...string) bool {
	v := e.lookup(keys)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
