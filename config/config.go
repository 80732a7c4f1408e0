// Package config reads engine configuration from JSON (comments and trailing commas allowed)
// or YAML file, and parses it into nemcache.Config.
package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/facebookgo/stackerr"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

func Default() *Config {
	return &Config{
		LogDestination: "stderr",
		LogLevel:       "info",
		CacheSize:      "64m",
		Eviction:       "lru",
		SweepInterval:  "1m",
		Persistence:    "log",
		Log: LogConfig{
			Path:      "nemcache.log",
			Codec:     "msgpack",
			Sync:      "1s",
			BufSize:   "4k",
			QueueSize: 1024,
		},
		KV: KVConfig{
			Backend:        "bitcask",
			Path:           "nemcache.kv",
			MaxSegmentSize: "64m",
			MemoryLimit:    "4m",
			Codec:          "msgpack",
		},
	}
}

// Config is file representation of nemcache.Config.
// Size values are like 10g, 128m, 1024k, 1000000b. Durations are like 1m30s.
type Config struct {
	LogDestination string `json:"log-destination,omitempty" yaml:"log-destination,omitempty"` // Stdout, stderr, or filepath.
	LogLevel       string `json:"log-level,omitempty" yaml:"log-level,omitempty"`
	CacheSize      string `json:"cache-size,omitempty" yaml:"cache-size,omitempty"`
	Eviction       string `json:"eviction,omitempty" yaml:"eviction,omitempty"`
	SweepInterval  string `json:"sweep-interval,omitempty" yaml:"sweep-interval,omitempty"`
	// Persistence is one of none, log, kv.
	Persistence string    `json:"persistence,omitempty" yaml:"persistence,omitempty"`
	Log         LogConfig `json:"log,omitempty" yaml:"log,omitempty"`
	KV          KVConfig  `json:"kv,omitempty" yaml:"kv,omitempty"`
}

type LogConfig struct {
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	Codec   string `json:"codec,omitempty" yaml:"codec,omitempty"`
	Sync    string `json:"sync,omitempty" yaml:"sync,omitempty"`
	BufSize string `json:"buf-size,omitempty" yaml:"buf-size,omitempty"`
	// RotateSize default is RotateSizeCoef cache sizes.
	RotateSize string `json:"rotate-size,omitempty" yaml:"rotate-size,omitempty"`
	QueueSize  int    `json:"queue-size,omitempty" yaml:"queue-size,omitempty"`
}

type KVConfig struct {
	Backend        string `json:"backend,omitempty" yaml:"backend,omitempty"`
	Path           string `json:"path,omitempty" yaml:"path,omitempty"`
	MaxSegmentSize string `json:"max-segment-size,omitempty" yaml:"max-segment-size,omitempty"`
	MemoryLimit    string `json:"memory-limit,omitempty" yaml:"memory-limit,omitempty"`
	Codec          string `json:"codec,omitempty" yaml:"codec,omitempty"`
	CompactOnOpen  bool   `json:"compact-on-open,omitempty" yaml:"compact-on-open,omitempty"`
	QueueSize      int    `json:"queue-size,omitempty" yaml:"queue-size,omitempty"`
}

// Load reads config file and merges it over defaults.
func Load(path string) (conf *Config, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stackerr.Wrap(err)
	}
	fileConf, err := Unmarshal(filepath.Ext(path), data)
	if err != nil {
		return nil, stackerr.Newf("%s: %v", path, err)
	}
	conf = Default()
	Merge(conf, fileConf)
	return
}

// Unmarshal decodes config by file extension: .json, .hujson, .yaml or .yml.
func Unmarshal(ext string, data []byte) (*Config, error) {
	conf := &Config{}
	switch strings.ToLower(ext) {
	case ".json", ".hujson":
		std, err := hujson.Standardize(data)
		if err != nil {
			return nil, err
		}
		dec := json.NewDecoder(strings.NewReader(string(std)))
		dec.DisallowUnknownFields()
		if err = dec.Decode(conf); err != nil && err != io.EOF {
			return nil, err
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(true)
		if err := dec.Decode(conf); err != nil && err != io.EOF {
			return nil, err
		}
	default:
		return nil, stackerr.Newf("unsupported config format %q", ext)
	}
	return conf, nil
}

func Marshal(conf *Config) []byte {
	data, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		panic(err)
	}
	return data
}
