package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore samples entries below Warn and passes Warn and above
// through untouched.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}
	return &splitCore{
		Core:    core,
		sampled: zapcore.NewSamplerWithOptions(core, cfg.Tick, cfg.Initial, cfg.Thereafter),
	}
}

// splitCore routes Check by level. Writes always land on the embedded core
// because the sampler adds its inner core to the checked entry.
type splitCore struct {
	zapcore.Core
	sampled zapcore.Core
}

func (c *splitCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if e.Level >= zapcore.WarnLevel {
		return c.Core.Check(e, ce)
	}
	return c.sampled.Check(e, ce)
}

func (c *splitCore) With(fields []zapcore.Field) zapcore.Core {
	return &splitCore{
		Core:    c.Core.With(fields),
		sampled: c.sampled.With(fields),
	}
}
