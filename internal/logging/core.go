package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

const instrumentationName = "github.com/fyrsmithlabs/qchi"

// newCore tees the configured sinks and applies sampling. The returned
// close func releases the log file, if one was opened.
func newCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, func() error, error) {
	var (
		cores  []zapcore.Core
		closer = func() error { return nil }
	)

	if cfg.Output.Stderr {
		enc, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create redacting encoder: %w", err)
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stderr), cfg.Level))
	}

	if cfg.Output.File != "" {
		core, f, err := newFileCore(cfg)
		if err != nil {
			return nil, nil, err
		}
		cores = append(cores, core)
		closer = f.Close
	}

	// The bridge forwards structured attributes as-is; secrets in values are
	// not scrubbed on this path.
	if cfg.Output.OTEL && otelProvider != nil {
		cores = append(cores, otelzap.NewCore(instrumentationName, otelzap.WithLoggerProvider(otelProvider)))
	}

	switch len(cores) {
	case 0:
		return nil, nil, errors.New("at least one output must be enabled and available")
	case 1:
		return newSampledCore(cores[0], cfg.Sampling), closer, nil
	default:
		return newSampledCore(zapcore.NewTee(cores...), cfg.Sampling), closer, nil
	}
}

func newFileCore(cfg *Config) (zapcore.Core, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Output.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	enc, err := NewRedactingEncoder(newEncoder(FormatJSON), cfg.Redaction)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create redacting encoder: %w", err)
	}
	f, err := os.OpenFile(cfg.Output.File, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return zapcore.NewCore(enc, zapcore.AddSync(f), cfg.Level), f, nil
}
