package escalation

// Config controls prompt construction, sampling and report rendering.
type Config struct {
	Model         string  `mapstructure:"model"` // empty uses the provider default
	Temperature   float64 `mapstructure:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	TopK          int     `mapstructure:"top_k"`
	TopP          float64 `mapstructure:"top_p"`
	RepeatPenalty float64 `mapstructure:"repeat_penalty"`
	HistoryPoints int     `mapstructure:"history_points"` // samples quoted in prompt and report
	ReportLimit   int     `mapstructure:"report_limit"`   // characters
}

// DefaultConfig returns the escalation defaults.
func DefaultConfig() Config {
	return Config{
		Temperature:   0.3,
		MaxTokens:     800,
		TopK:          20,
		TopP:          0.85,
		RepeatPenalty: 1.1,
		HistoryPoints: 36,
		ReportLimit:   6000,
	}
}
