// internal/config/types.go
package config

// Global configuration loaded from config.yaml
type Global struct {
	Server  ServerConfig  `yaml:"server"`
	Render  RenderConfig  `yaml:"render"`
	Logging LoggingConfig `yaml:"logging"`
	History HistoryConfig `yaml:"history"`
	Limits  LimitsConfig  `yaml:"limits"`
}

type ServerConfig struct {
	ListenAddress string `yaml:"listen_address"`
	ListenPort    int    `yaml:"listen_port"`
	// Requests per minute per client IP; 0 disables rate limiting.
	RateLimit              int `yaml:"rate_limit"`
	RateBurst              int `yaml:"rate_burst"`
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Enable only behind a reverse proxy that sets those headers.
	TrustProxy bool `yaml:"trust_proxy"`
}

type RenderConfig struct {
	// Quality picks a size/fps preset; Width, Height and FPS override it when set.
	Quality    string  `yaml:"quality"`
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	FPS        int     `yaml:"fps"`
	Range      float64 `yaml:"range"`
	Resolution int     `yaml:"resolution"`
	Coloring   string  `yaml:"coloring"`

	MaxConcurrent  int    `yaml:"max_concurrent"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	FFmpegPath     string `yaml:"ffmpeg_path"`
	Preset         string `yaml:"preset"`
	CRF            int    `yaml:"crf"`

	WorkDir           string `yaml:"work_dir"`
	SweepSchedule     string `yaml:"sweep_schedule"`
	StaleAfterMinutes int    `yaml:"stale_after_minutes"`
}

type LoggingConfig struct {
	Format    string `yaml:"format"` // json, text or auto
	Level     string `yaml:"level"`
	Debug     bool   `yaml:"debug"`
	File      string `yaml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

type HistoryConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Path            string `yaml:"path"`
	RetentionDays   int    `yaml:"retention_days"`
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

type LimitsConfig struct {
	MaxExpressionLength int `yaml:"max_expression_length"`
}
