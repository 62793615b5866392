package logging

import (
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// Log encodings.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config holds logging configuration. It is the "logging" section of the
// qchi config file.
type Config struct {
	Level           zapcore.Level     `koanf:"level"`
	Format          string            `koanf:"format"`
	Output          OutputConfig      `koanf:"output"`
	Sampling        SamplingConfig    `koanf:"sampling"`
	Caller          bool              `koanf:"caller"`
	StacktraceLevel zapcore.Level     `koanf:"stacktrace_level"`
	Fields          map[string]string `koanf:"fields"`
	Redaction       RedactionConfig   `koanf:"redaction"`
}

// OutputConfig selects sinks. Stdout is not one of them: it carries the
// operator report.
type OutputConfig struct {
	Stderr bool   `koanf:"stderr"`
	File   string `koanf:"file"` // always JSON
	OTEL   bool   `koanf:"otel"`
}

// SamplingConfig thins Debug and Info entries; Warn and above are never
// sampled.
type SamplingConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Tick       time.Duration `koanf:"tick"`
	Initial    int           `koanf:"initial"`
	Thereafter int           `koanf:"thereafter"`
}

// RedactionConfig lists field keys whose values are never logged. Secret
// scrubbing of values applies whenever Enabled is set.
type RedactionConfig struct {
	Enabled bool     `koanf:"enabled"`
	Fields  []string `koanf:"fields"`
}

// NewDefaultConfig returns the CLI defaults: warnings and above, console
// encoding, on stderr.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.WarnLevel,
		Format: FormatConsole,
		Output: OutputConfig{Stderr: true},
		Sampling: SamplingConfig{
			Tick:       time.Second,
			Initial:    100,
			Thereafter: 10,
		},
		StacktraceLevel: zapcore.FatalLevel,
		Fields:          map[string]string{"service": "qchi"},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields:  []string{"password", "secret", "token", "api_key", "authorization", "credential", "private_key"},
		},
	}
}

// Validate reports the first problem found in c.
func (c *Config) Validate() error {
	switch c.Format {
	case FormatJSON, FormatConsole:
	default:
		return fmt.Errorf("format must be %q or %q, got %q", FormatJSON, FormatConsole, c.Format)
	}
	if !c.Output.Stderr && c.Output.File == "" && !c.Output.OTEL {
		return fmt.Errorf("at least one output must be enabled (stderr, file or otel)")
	}
	if c.Sampling.Enabled {
		if c.Sampling.Tick <= 0 {
			return fmt.Errorf("sampling tick must be > 0 when sampling enabled")
		}
		if c.Sampling.Initial < 0 || c.Sampling.Thereafter < 0 {
			return fmt.Errorf("sampling initial and thereafter must be >= 0")
		}
	}
	for k, v := range c.Fields {
		if k == "" {
			return fmt.Errorf("field key cannot be empty")
		}
		if v == "" {
			return fmt.Errorf("field %q has empty value", k)
		}
	}
	return nil
}
