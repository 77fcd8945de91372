// Package config loads the server's runtime settings. The network's stage
// sizes are fixed in code and deliberately absent here.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Brownie44l1/fkp-api/internal/model"
)

const (
	BackendNative = model.BackendNative
	BackendONNX   = model.BackendONNX
)

// ServerConfig holds the settings for cmd/server and cmd/keypoints.
// Pointer fields distinguish "unset" from zero values in JSON files.
type ServerConfig struct {
	Port *string `json:"port,omitempty"`
	// Backend is "native" (in-process network) or "onnx".
	Backend *string `json:"backend,omitempty"`
	// Seed drives parameter initialisation of the native network.
	Seed *uint64 `json:"seed,omitempty"`
	// Compact serves the narrow 96×96 network instead of the full one.
	Compact *bool `json:"compact,omitempty"`

	ONNXModelPath    *string `json:"onnx_model_path,omitempty"`
	ONNXMetadataPath *string `json:"onnx_metadata_path,omitempty"`
	ONNXLibraryPath  *string `json:"onnx_library_path,omitempty"`

	// DBPath enables prediction history when non-empty.
	DBPath *string `json:"db_path,omitempty"`
	// ChartAssetsHost overrides where chart pages load echarts from.
	ChartAssetsHost *string `json:"chart_assets_host,omitempty"`
}

func ptrString(v string) *string { return &v }
func ptrUint64(v uint64) *uint64 { return &v }
func ptrBool(v bool) *bool       { return &v }

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *ServerConfig {
	return &ServerConfig{
		Port:             ptrString("8080"),
		Backend:          ptrString(BackendNative),
		Seed:             ptrUint64(1),
		Compact:          ptrBool(false),
		ONNXModelPath:    ptrString(filepath.Join("models", "keypoints.onnx")),
		ONNXMetadataPath: ptrString(filepath.Join("models", "keypoints_metadata.json")),
		ONNXLibraryPath:  ptrString(""),
		DBPath:           ptrString(""),
		ChartAssetsHost:  ptrString(""),
	}
}

// Load reads a JSON file over Defaults. Fields omitted from the file keep
// their default values, so partial configs are safe.
func Load(path string) (*ServerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var file ServerConfig
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := Defaults()
	cfg.merge(&file)
	return cfg, cfg.Validate()
}

// ApplyEnv overlays environment variables: PORT, FKP_BACKEND, FKP_SEED,
// FKP_COMPACT, FKP_ONNX_MODEL, FKP_ONNX_METADATA, FKP_ONNX_LIBRARY,
// FKP_DB_PATH and FKP_CHART_ASSETS_HOST.
func (c *ServerConfig) ApplyEnv(getenv func(string) string) error {
	env := ServerConfig{}
	str := func(key string) *string {
		if v := getenv(key); v != "" {
			return &v
		}
		return nil
	}
	env.Port = str("PORT")
	env.Backend = str("FKP_BACKEND")
	env.ONNXModelPath = str("FKP_ONNX_MODEL")
	env.ONNXMetadataPath = str("FKP_ONNX_METADATA")
	env.ONNXLibraryPath = str("FKP_ONNX_LIBRARY")
	env.DBPath = str("FKP_DB_PATH")
	env.ChartAssetsHost = str("FKP_CHART_ASSETS_HOST")

	if v := getenv("FKP_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid FKP_SEED %q: %w", v, err)
		}
		env.Seed = &seed
	}
	if v := getenv("FKP_COMPACT"); v != "" {
		compact, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid FKP_COMPACT %q: %w", v, err)
		}
		env.Compact = &compact
	}

	c.merge(&env)
	return c.Validate()
}

func (c *ServerConfig) merge(o *ServerConfig) {
	if o.Port != nil {
		c.Port = o.Port
	}
	if o.Backend != nil {
		c.Backend = o.Backend
	}
	if o.Seed != nil {
		c.Seed = o.Seed
	}
	if o.Compact != nil {
		c.Compact = o.Compact
	}
	if o.ONNXModelPath != nil {
		c.ONNXModelPath = o.ONNXModelPath
	}
	if o.ONNXMetadataPath != nil {
		c.ONNXMetadataPath = o.ONNXMetadataPath
	}
	if o.ONNXLibraryPath != nil {
		c.ONNXLibraryPath = o.ONNXLibraryPath
	}
	if o.DBPath != nil {
		c.DBPath = o.DBPath
	}
	if o.ChartAssetsHost != nil {
		c.ChartAssetsHost = o.ChartAssetsHost
	}
}

// Validate rejects unknown backends and empty ports.
func (c *ServerConfig) Validate() error {
	switch c.GetBackend() {
	case BackendNative, BackendONNX:
	default:
		return fmt.Errorf("unknown backend %q (want %q or %q)", c.GetBackend(), BackendNative, BackendONNX)
	}
	if c.GetPort() == "" {
		return fmt.Errorf("port must not be empty")
	}
	return nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func (c *ServerConfig) GetPort() string             { return deref(c.Port) }
func (c *ServerConfig) GetBackend() string          { return deref(c.Backend) }
func (c *ServerConfig) GetSeed() uint64             { return deref(c.Seed) }
func (c *ServerConfig) GetCompact() bool            { return deref(c.Compact) }
func (c *ServerConfig) GetONNXModelPath() string    { return deref(c.ONNXModelPath) }
func (c *ServerConfig) GetONNXMetadataPath() string { return deref(c.ONNXMetadataPath) }
func (c *ServerConfig) GetONNXLibraryPath() string  { return deref(c.ONNXLibraryPath) }
func (c *ServerConfig) GetDBPath() string           { return deref(c.DBPath) }
func (c *ServerConfig) GetChartAssetsHost() string  { return deref(c.ChartAssetsHost) }

// PredictorOptions maps the backend settings onto model.NewPredictor.
func (c *ServerConfig) PredictorOptions() model.PredictorOptions {
	return model.PredictorOptions{
		Backend:          c.GetBackend(),
		Seed:             c.GetSeed(),
		Compact:          c.GetCompact(),
		ONNXModelPath:    c.GetONNXModelPath(),
		ONNXMetadataPath: c.GetONNXMetadataPath(),
		ONNXLibraryPath:  c.GetONNXLibraryPath(),
	}
}
