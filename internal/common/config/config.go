// Package config loads the service's typed configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/cc-executor/cc-executor/internal/common/errors"
)

// LoggingConfig controls the logger.
type LoggingConfig struct {
	Level  string
	Format string
}

// ServerConfig controls the WebSocket/HTTP frontend.
type ServerConfig struct {
	ListenAddr          string
	WSMaxMessageBytes   int64
	WSPingIntervalS     int
	WSPongTimeoutS      int
	SessionIdleTimeoutS int
	MaxSessions         int
	GracefulShutdownS   int
	QueueDepthOne       bool // opt-in: accept one queued execute while another is running
}

// ExecutionDefaults controls the Process Supervisor's default timing.
type ExecutionDefaults struct {
	DefaultTotalTimeoutS float64
	DefaultStallTimeoutS float64
	ExtremeStallTimeoutS float64
	StallFractionOfTotal float64
	MaxLineBytes         int64
	MaxTotalBytes        int64
}

// TimingConfig controls the Timing Store.
type TimingConfig struct {
	StoreDSN         string
	HistoryTTLS      int64
	HistorySamplesCap int
}

// NATSConfig controls the optional event bus.
type NATSConfig struct {
	URL string // empty ⇒ event bus disabled
}

// Config is the immutable, validated configuration loaded once at startup.
type Config struct {
	Logging         LoggingConfig
	Server          ServerConfig
	Execution       ExecutionDefaults
	Timing          TimingConfig
	NATS            NATSConfig
	AllowedCommands []string // empty ⇒ all commands accepted
	HookConfigPath  string   // empty ⇒ no hooks
}

// ReadTimeoutDuration returns the HTTP server's read timeout.
func (s ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.WSPongTimeoutS) * time.Second
}

// WriteTimeoutDuration returns the HTTP server's write timeout.
func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	return 30 * time.Second
}

// Load reads configuration from the environment (CC_EXECUTOR_ prefixed variables),
// applies documented defaults, and validates bounds.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("cc_executor")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("max_sessions", 100)
	v.SetDefault("session_idle_timeout_s", 3600)
	v.SetDefault("ws_max_message_bytes", 10*1024*1024)
	v.SetDefault("ws_ping_interval_s", 30)
	v.SetDefault("ws_pong_timeout_s", 60)
	v.SetDefault("graceful_shutdown_s", 10)
	v.SetDefault("queue_depth_one", false)
	v.SetDefault("default_total_timeout_s", 300)
	v.SetDefault("default_stall_timeout_s", 60)
	v.SetDefault("extreme_stall_timeout_s", 600)
	v.SetDefault("stall_fraction_of_total", 0.3)
	v.SetDefault("max_line_bytes", 8*1024)
	v.SetDefault("max_total_bytes", 10*1024*1024)
	v.SetDefault("allowed_commands", "")
	v.SetDefault("hook_config_path", "")
	v.SetDefault("timing_store_dsn", "")
	v.SetDefault("history_ttl_s", 7*24*3600)
	v.SetDefault("history_samples_cap", 100)
	v.SetDefault("nats_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	cfg := &Config{
		Logging: LoggingConfig{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
		Server: ServerConfig{
			ListenAddr:          v.GetString("listen_addr"),
			WSMaxMessageBytes:   v.GetInt64("ws_max_message_bytes"),
			WSPingIntervalS:     v.GetInt("ws_ping_interval_s"),
			WSPongTimeoutS:      v.GetInt("ws_pong_timeout_s"),
			SessionIdleTimeoutS: v.GetInt("session_idle_timeout_s"),
			MaxSessions:         v.GetInt("max_sessions"),
			GracefulShutdownS:   v.GetInt("graceful_shutdown_s"),
			QueueDepthOne:       v.GetBool("queue_depth_one"),
		},
		Execution: ExecutionDefaults{
			DefaultTotalTimeoutS: v.GetFloat64("default_total_timeout_s"),
			DefaultStallTimeoutS: v.GetFloat64("default_stall_timeout_s"),
			ExtremeStallTimeoutS: v.GetFloat64("extreme_stall_timeout_s"),
			StallFractionOfTotal: v.GetFloat64("stall_fraction_of_total"),
			MaxLineBytes:         v.GetInt64("max_line_bytes"),
			MaxTotalBytes:        v.GetInt64("max_total_bytes"),
		},
		Timing: TimingConfig{
			StoreDSN:          v.GetString("timing_store_dsn"),
			HistoryTTLS:       v.GetInt64("history_ttl_s"),
			HistorySamplesCap: v.GetInt("history_samples_cap"),
		},
		NATS: NATSConfig{
			URL: v.GetString("nats_url"),
		},
		HookConfigPath: v.GetString("hook_config_path"),
	}

	if raw := v.GetString("allowed_commands"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				cfg.AllowedCommands = append(cfg.AllowedCommands, name)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks documented bounds, returning a ConfigError on the first violation.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return apperrors.Config("listen_addr must not be empty", nil)
	}
	if c.Server.MaxSessions <= 0 {
		return apperrors.Config(fmt.Sprintf("max_sessions must be positive, got %d", c.Server.MaxSessions), nil)
	}
	if c.Server.WSMaxMessageBytes <= 0 {
		return apperrors.Config("ws_max_message_bytes must be positive", nil)
	}
	if c.Execution.DefaultTotalTimeoutS <= 0 || c.Execution.DefaultStallTimeoutS <= 0 {
		return apperrors.Config("default_total_timeout_s and default_stall_timeout_s must be positive", nil)
	}
	if c.Execution.StallFractionOfTotal <= 0 || c.Execution.StallFractionOfTotal > 1 {
		return apperrors.Config("stall_fraction_of_total must be in (0, 1]", nil)
	}
	if c.Execution.MaxLineBytes <= 0 || c.Execution.MaxTotalBytes <= 0 {
		return apperrors.Config("max_line_bytes and max_total_bytes must be positive", nil)
	}
	if c.Execution.MaxLineBytes > c.Execution.MaxTotalBytes {
		return apperrors.Config("max_line_bytes must not exceed max_total_bytes", nil)
	}
	if c.Timing.HistoryTTLS <= 0 || c.Timing.HistorySamplesCap <= 0 {
		return apperrors.Config("history_ttl_s and history_samples_cap must be positive", nil)
	}
	return nil
}

// StallBudget derives the stall timeout from a predicted total, clamped between the
// configured stall default and the extreme ceiling.
func (c *Config) StallBudget(predictedTotalS float64) float64 {
	budget := c.Execution.StallFractionOfTotal * predictedTotalS
	if budget < c.Execution.DefaultStallTimeoutS {
		return c.Execution.DefaultStallTimeoutS
	}
	if budget > c.Execution.ExtremeStallTimeoutS {
		return c.Execution.ExtremeStallTimeoutS
	}
	return budget
}
