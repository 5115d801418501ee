package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/feichai0017/pdfshift/pkg/logger"
)

// Config 服务配置，来自可选的 YAML 文件，环境变量优先
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Compression CompressionConfig `yaml:"compression"`
	Storage     StorageConfig     `yaml:"storage"`
	Logger      logger.Config     `yaml:"logger"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
	Mode           string        `yaml:"mode"`
}

// CompressionConfig 压缩参数
type CompressionConfig struct {
	Oversample  float64 `yaml:"oversample"`
	PageQuality float64 `yaml:"pageQuality"`
	Tolerance   float64 `yaml:"tolerance"`
	Grayscale   bool    `yaml:"grayscale"`
	MaxPageEdge int     `yaml:"maxPageEdge"`
	MinQuality  float64 `yaml:"minQuality"`
	MaxQuality  float64 `yaml:"maxQuality"`
}

// StorageConfig 存储后端，minio、s3 或 memory
type StorageConfig struct {
	Backend   string        `yaml:"backend"`
	Retention time.Duration `yaml:"retention"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    5 * time.Minute,
			WriteTimeout:   10 * time.Minute,
			AllowedOrigins: []string{"*"},
			Mode:           "release",
		},
		Compression: CompressionConfig{
			Oversample:  2.0,
			PageQuality: 0.95,
			Tolerance:   0.10,
			MaxPageEdge: 6000,
			MinQuality:  0.3,
			MaxQuality:  0.9,
		},
		Storage: StorageConfig{
			Backend:   "minio",
			Retention: 24 * time.Hour,
		},
		Logger: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Load reads path over the defaults. An empty path or a missing file
// yields the defaults; PDFSHIFT_* variables are applied last.
func Load(path string) (*Config, error) {
	loadEnv()
	cfg := Default()

	if path == "" {
		path = os.Getenv("PDFSHIFT_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = envString("PDFSHIFT_ADDR", c.Server.Addr)
	c.Server.Mode = envString("PDFSHIFT_MODE", c.Server.Mode)
	if origins := os.Getenv("PDFSHIFT_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	c.Compression.Oversample = envFloat("PDFSHIFT_OVERSAMPLE", c.Compression.Oversample)
	c.Compression.PageQuality = envFloat("PDFSHIFT_PAGE_QUALITY", c.Compression.PageQuality)
	c.Compression.Tolerance = envFloat("PDFSHIFT_TOLERANCE", c.Compression.Tolerance)
	c.Compression.Grayscale = envBool("PDFSHIFT_GRAYSCALE", c.Compression.Grayscale)
	c.Compression.MaxPageEdge = envInt("PDFSHIFT_MAX_PAGE_EDGE", c.Compression.MaxPageEdge)

	c.Storage.Backend = envString("PDFSHIFT_STORAGE", c.Storage.Backend)
	c.Storage.Retention = envDuration("PDFSHIFT_RETENTION", c.Storage.Retention)

	c.Logger.Level = envString("PDFSHIFT_LOG_LEVEL", c.Logger.Level)
	c.Logger.Encoding = envString("PDFSHIFT_LOG_ENCODING", c.Logger.Encoding)
}

func (c *Config) Validate() error {
	cc := c.Compression
	if cc.Oversample <= 0 {
		return fmt.Errorf("compression.oversample must be positive, got %v", cc.Oversample)
	}
	if cc.PageQuality <= 0 || cc.PageQuality > 1 {
		return fmt.Errorf("compression.pageQuality must be in (0,1], got %v", cc.PageQuality)
	}
	if cc.Tolerance < 0 {
		return fmt.Errorf("compression.tolerance must not be negative, got %v", cc.Tolerance)
	}
	if cc.MinQuality <= 0 || cc.MaxQuality > 1 || cc.MinQuality > cc.MaxQuality {
		return fmt.Errorf("compression quality bounds invalid: [%v, %v]", cc.MinQuality, cc.MaxQuality)
	}
	switch c.Storage.Backend {
	case "minio", "s3", "memory":
	default:
		return fmt.Errorf("storage.backend must be minio, s3 or memory, got %q", c.Storage.Backend)
	}
	return nil
}
