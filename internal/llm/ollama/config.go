package ollama

import "time"

// Config holds the Ollama provider configuration.
type Config struct {
	URL            string        `mapstructure:"url"`
	Model          string        `mapstructure:"model"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
}

// DefaultConfig returns the defaults for a local Ollama server.
func DefaultConfig() Config {
	return Config{
		URL:            "http://localhost:11434",
		Model:          "deepseek-r1:14b",
		ConnectTimeout: 15 * time.Second,
		ReadTimeout:    120 * time.Second,
	}
}
