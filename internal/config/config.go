// Package config loads the engine configuration with Viper and builds the
// process logger.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: TW_SERVER_PORT=9090 sets
// server.port.
const EnvPrefix = "TW"

// SetDefaults registers the default value of every known key. Keys must be
// known to Viper for AutomaticEnv overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 100.0)
	v.SetDefault("server.rate_burst", 200)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age_days", 1)
	v.SetDefault("logging.rotate_interval", "24h")

	v.SetDefault("database.path", "./data/turbinewatch.db")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "720h")

	v.SetDefault("catalog.path", "configs/points.yaml")
	v.SetDefault("catalog.sheet", "")
	v.SetDefault("catalog.strict", false)

	v.SetDefault("engine.sample_interval", "5s")
	v.SetDefault("engine.prediction_points", 36)
	v.SetDefault("engine.history_min_capacity", 500)
	v.SetDefault("engine.trend_window", 10)
	v.SetDefault("engine.trend_min_history", 10)
	v.SetDefault("engine.trend_floor", 0.001)
	v.SetDefault("engine.fluctuation_window", 5)
	v.SetDefault("engine.mutation_min_history", 3)
	v.SetDefault("engine.anomaly_min_history", 30)
	v.SetDefault("engine.stability_window", 20)
	v.SetDefault("engine.stability_threshold", 0.01)
	v.SetDefault("engine.stable_probability", 0.1)
	v.SetDefault("engine.pattern_threshold", 0.8)
	v.SetDefault("engine.prediction_trend_band", 0.05)
	v.SetDefault("engine.status_separator", ", ")
	v.SetDefault("engine.queue_size", 64)
	v.SetDefault("engine.receive_timeout", "1s")
	v.SetDefault("engine.drain_timeout", "10s")
	v.SetDefault("engine.analysis_parallelism", 4)
	v.SetDefault("engine.housekeeping_interval", "1m")

	v.SetDefault("alert.cooldown", "1h")
	v.SetDefault("alert.retention", "24h")
	v.SetDefault("alert.recent_history", "2m30s")
	v.SetDefault("alert.correlated_history_points", 36)

	v.SetDefault("escalation.enabled", true)
	v.SetDefault("escalation.workers", 2)
	v.SetDefault("escalation.queue_size", 64)
	v.SetDefault("escalation.max_attempts", 2)
	v.SetDefault("escalation.retry_backoff", "10s")
	v.SetDefault("escalation.rate_per_minute", 30)
	v.SetDefault("escalation.temperature", 0.3)
	v.SetDefault("escalation.max_tokens", 800)
	v.SetDefault("escalation.top_k", 20)
	v.SetDefault("escalation.top_p", 0.85)
	v.SetDefault("escalation.repeat_penalty", 1.1)
	v.SetDefault("escalation.history_points", 36)
	v.SetDefault("escalation.report_limit", 6000)

	v.SetDefault("llm.url", "http://localhost:11434")
	v.SetDefault("llm.model", "deepseek-r1:14b")
	v.SetDefault("llm.connect_timeout", "15s")
	v.SetDefault("llm.read_timeout", "120s")

	v.SetDefault("capability.mode", "builtin")
	v.SetDefault("capability.forecaster", "analog")
	v.SetDefault("capability.neighbours", 5)
	v.SetDefault("capability.holt_alpha", 0.5)
	v.SetDefault("capability.holt_beta", 0.3)
	v.SetDefault("capability.anomaly.zscore_threshold", 3.0)
	v.SetDefault("capability.anomaly.steepness", 2.0)
	v.SetDefault("capability.anomaly.flat_tolerance", 0.01)
	v.SetDefault("capability.anomaly.cusum_drift", 0.5)
	v.SetDefault("capability.anomaly.cusum_threshold", 5.0)
	v.SetDefault("capability.anomaly.change_point_probability", 0.85)
	v.SetDefault("capability.remote.url", "http://localhost:8500")
	v.SetDefault("capability.remote.timeout", "30s")
	v.SetDefault("capability.remote.retry_count", 1)
	v.SetDefault("capability.remote.retry_wait", "500ms")
	v.SetDefault("capability.remote.api_key", "")

	v.SetDefault("ingest.redis.enabled", false)
	v.SetDefault("ingest.redis.addr", "localhost:6379")
	v.SetDefault("ingest.redis.password", "")
	v.SetDefault("ingest.redis.db", 0)
	v.SetDefault("ingest.redis.stream", "turbinewatch:batches")
	v.SetDefault("ingest.redis.group", "turbinewatch")
	v.SetDefault("ingest.redis.consumer", "")
	v.SetDefault("ingest.redis.count", 16)
	v.SetDefault("ingest.redis.block", "5s")
	v.SetDefault("ingest.redis.max_backoff", "30s")

	v.SetDefault("sinks.mqtt.broker_url", "")
	v.SetDefault("sinks.mqtt.username", "")
	v.SetDefault("sinks.mqtt.password", "")
	v.SetDefault("sinks.mqtt.client_id", "turbinewatch")
	v.SetDefault("sinks.mqtt.topic_prefix", "turbinewatch")
	v.SetDefault("sinks.mqtt.qos", 1)
	v.SetDefault("sinks.mqtt.timeout", "10s")
	v.SetDefault("sinks.mqtt.point_states", true)
	v.SetDefault("sinks.mqtt.ha_discovery", false)
	v.SetDefault("sinks.mqtt.ha_discovery_prefix", "homeassistant")
	v.SetDefault("sinks.webhook.url", "")
	v.SetDefault("sinks.webhook.secret", "")
	v.SetDefault("sinks.webhook.timeout", "10s")
	v.SetDefault("sinks.webhook.retry_count", 2)
	v.SetDefault("sinks.webhook.retry_wait", "1s")
	v.SetDefault("sinks.webhook.notify_abandoned", false)
	v.SetDefault("sinks.journal.retention", "720h")
	v.SetDefault("sinks.journal.maintenance_interval", "1h")
	v.SetDefault("sinks.journal.buffer_size", 256)
}

// LoadConfig reads configuration from defaults, an optional YAML file and
// TW_-prefixed environment variables, in increasing precedence. A missing
// config file is not an error when configPath is empty.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("turbinewatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/turbinewatch")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

// Decode unmarshals the section at the dotted key into target, leaving
// fields whose keys are absent untouched. Sections are resolved key by key
// through AllSettings, so a partial section in the config file does not hide
// the defaults and environment overrides of its other keys.
func Decode(v *viper.Viper, section string, target any) error {
	var node any = v.AllSettings()
	for _, part := range strings.Split(section, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[part]
	}
	m, ok := node.(map[string]any)
	if !ok {
		return nil
	}

	sub := viper.New()
	if err := sub.MergeConfigMap(m); err != nil {
		return fmt.Errorf("config section %s: %w", section, err)
	}
	if err := sub.Unmarshal(target); err != nil {
		return fmt.Errorf("config section %s: %w", section, err)
	}
	return nil
}
