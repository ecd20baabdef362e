// Package config loads Latte Album's configuration: defaults, then an
// optional YAML file, then environment-variable overrides — in that order,
// matching the precedence the teacher project used.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Photos    PhotosConfig    `yaml:"photos"`
	Cache     CacheConfig     `yaml:"cache"`
	Thumbnail ThumbnailConfig `yaml:"thumbnail"`
	Scan      ScanConfig      `yaml:"scan"`
	Video     VideoConfig     `yaml:"video"`
	DB        DBConfig        `yaml:"db"`
	WS        WSConfig        `yaml:"ws"`
}

type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
}

type PhotosConfig struct {
	BasePath string `yaml:"base_path"`
}

type CacheConfig struct {
	Dir         string `yaml:"dir"`
	MaxCapacity int    `yaml:"max_capacity"`
	TTLSeconds  int    `yaml:"ttl_seconds"`
}

type ThumbnailConfig struct {
	SmallSize  int     `yaml:"small_size"`
	MediumSize int     `yaml:"medium_size"`
	LargeSize  int     `yaml:"large_size"`
	Quality    float64 `yaml:"quality"` // 0..1
}

type ScanConfig struct {
	Concurrency int    `yaml:"concurrency"` // 0 = CPU*2
	Cron        string `yaml:"cron"`
	BatchSize   int    `yaml:"batch_size"`
}

type VideoConfig struct {
	FFmpegPath       string  `yaml:"ffmpeg_path"`
	ThumbnailOffset  float64 `yaml:"thumbnail_offset"`
	TranscodeThreads int     `yaml:"transcode_threads"`
}

type DBConfig struct {
	Path            string `yaml:"path"`
	BatchCheckSize  int    `yaml:"batch_check_size"`
	BatchWriteSize  int    `yaml:"batch_write_size"`
}

type WSConfig struct {
	ProgressInterval int `yaml:"progress_interval"`
}

// DefaultConfig returns configuration with sensible defaults, mirroring
// spec.md §6's default column.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8080,
			StaticDir: "./static/dist",
		},
		Photos: PhotosConfig{
			BasePath: "./photos",
		},
		Cache: CacheConfig{
			Dir:         "./cache",
			MaxCapacity: 1000,
			TTLSeconds:  3600,
		},
		Thumbnail: ThumbnailConfig{
			SmallSize:  300,
			MediumSize: 600,
			LargeSize:  900,
			Quality:    0.8,
		},
		Scan: ScanConfig{
			Concurrency: 0,
			Cron:        "0 0 2 * * ?",
			BatchSize:   50,
		},
		Video: VideoConfig{
			FFmpegPath:       "/usr/bin/ffmpeg",
			ThumbnailOffset:  1.0,
			TranscodeThreads: 4,
		},
		DB: DBConfig{
			Path:           "./data/album.db",
			BatchCheckSize: 500,
			BatchWriteSize: 100,
		},
		WS: WSConfig{
			ProgressInterval: 10,
		},
	}
}

// Load reads config from an optional YAML file, then overlays environment
// variables from the table in spec.md §6.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	overlayEnv(cfg)
	return cfg, nil
}

func overlayEnv(cfg *Config) {
	if v := os.Getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v, ok := envInt("PORT"); ok {
		cfg.Server.Port = v
	}
	if v := os.Getenv("BASE_PATH"); v != "" {
		cfg.Photos.BasePath = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DB.Path = v
	}
	if v := os.Getenv("CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("STATIC_DIR"); v != "" {
		cfg.Server.StaticDir = v
	}
	if v, ok := envInt("THUMBNAIL_SMALL"); ok {
		cfg.Thumbnail.SmallSize = v
	}
	if v, ok := envInt("THUMBNAIL_MEDIUM"); ok {
		cfg.Thumbnail.MediumSize = v
	}
	if v, ok := envInt("THUMBNAIL_LARGE"); ok {
		cfg.Thumbnail.LargeSize = v
	}
	if v, ok := envFloat("THUMBNAIL_QUALITY"); ok {
		cfg.Thumbnail.Quality = v
	}
	if v, ok := envInt("SCAN_CONCURRENCY"); ok {
		cfg.Scan.Concurrency = v
	}
	if v := os.Getenv("SCAN_CRON"); v != "" {
		cfg.Scan.Cron = v
	}
	if v, ok := envInt("SCAN_BATCH_SIZE"); ok {
		cfg.Scan.BatchSize = v
	}
	if v := os.Getenv("VIDEO_FFMPEG_PATH"); v != "" {
		cfg.Video.FFmpegPath = v
	}
	if v, ok := envFloat("VIDEO_THUMBNAIL_OFFSET"); ok {
		cfg.Video.ThumbnailOffset = v
	}
	if v, ok := envInt("CACHE_MAX_CAPACITY"); ok {
		cfg.Cache.MaxCapacity = v
	}
	if v, ok := envInt("CACHE_TTL_SECONDS"); ok {
		cfg.Cache.TTLSeconds = v
	}
	if v, ok := envInt("DB_BATCH_CHECK_SIZE"); ok {
		cfg.DB.BatchCheckSize = v
	}
	if v, ok := envInt("DB_BATCH_WRITE_SIZE"); ok {
		cfg.DB.BatchWriteSize = v
	}
	if v, ok := envInt("WS_PROGRESS_INTERVAL"); ok {
		cfg.WS.ProgressInterval = v
	}
	if v, ok := envInt("TRANSCODING_THREADS"); ok {
		cfg.Video.TranscodeThreads = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// CacheTTL returns the memory-tier TTL as a time.Duration.
func (c CacheConfig) CacheTTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}
