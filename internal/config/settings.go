package config

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

type Config struct {
	Sources []string `json:"sources"`

	Checker struct {
		ConnectTimeoutMs  uint32 `json:"connect_timeout_ms"`
		ProbeConcurrency  int    `json:"probe_concurrency"`
		ChunkSize         int    `json:"chunk_size"`
		MaxLatencyMs      uint32 `json:"max_latency_ms"`
		OverallDeadlineMs uint32 `json:"overall_deadline_ms"`
	} `json:"checker"`

	DNSBL struct {
		Domains               []string `json:"domains"`
		QueryTimeoutMs        uint32   `json:"query_timeout_ms"`
		QueryConcurrency      int      `json:"query_concurrency"`
		Policy                string   `json:"policy"`
		VerdictCacheTTLMinute uint32   `json:"verdict_cache_ttl_minutes"`
	} `json:"dnsbl"`

	Scoring struct {
		Threshold int `json:"threshold"`
	} `json:"scoring"`

	Output struct {
		Directory  string `json:"directory"`
		CleanFile  string `json:"clean_file"`
		ReportFile string `json:"report_file"`
	} `json:"output"`

	GeoLite struct {
		CountryDBPath string `json:"country_db_path"`
	} `json:"geolite"`

	MetricsPort int `json:"metrics_port"`
}

func (c Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Checker.ConnectTimeoutMs) * time.Millisecond
}

func (c Config) OverallDeadline() time.Duration {
	return time.Duration(c.Checker.OverallDeadlineMs) * time.Millisecond
}

func (c Config) DNSQueryTimeout() time.Duration {
	return time.Duration(c.DNSBL.QueryTimeoutMs) * time.Millisecond
}

func (c Config) VerdictCacheTTL() time.Duration {
	return time.Duration(c.DNSBL.VerdictCacheTTLMinute) * time.Minute
}

const defaultSettingsPath = "data/settings.json"

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex

	settingsPath = defaultSettingsPath
)

func init() {
	var cfg Config
	// The embedded defaults always unmarshal; a Config zero value is the
	// fallback if they ever do not.
	_ = json.Unmarshal(defaultConfig, &cfg)
	configValue.Store(cfg)
}

// SetSettingsPath overrides the settings file location. Call before
// ReadSettings.
func SetSettingsPath(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	if path != "" {
		settingsPath = path
	}
}

// ReadSettings loads the settings file, creating it from the embedded
// defaults when absent. Load failures keep the current snapshot rather than
// aborting the process.
func ReadSettings() {
	configMu.Lock()
	path := settingsPath
	configMu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Settings file not found, creating with default configuration", "path", path)

			if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
				log.Error("Error creating directory for settings file", "error", err)
				return
			}
			if err := os.WriteFile(path, defaultConfig, os.ModePerm); err != nil {
				log.Error("Error writing default settings file", "error", err)
				return
			}
			data = defaultConfig
		} else {
			log.Error("Error reading settings file", "error", err)
			return
		}
	}

	var newConfig Config
	if err := json.Unmarshal(data, &newConfig); err != nil {
		log.Error("Error unmarshalling settings file", "error", err)
		return
	}

	configValue.Store(newConfig)
	log.Debug("Settings file loaded successfully", "path", path)
}

// SetConfig replaces the current snapshot. Used by tests and by flag
// overrides in the app shell.
func SetConfig(newConfig Config) {
	configValue.Store(newConfig)
}

// GetConfig returns the current configuration snapshot atomically.
func GetConfig() Config {
	return configValue.Load().(Config)
}
