package logging

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/qchi/internal/secrets"
)

const redacted = "[REDACTED]"

// RedactedString logs only the length of val. Prompts go through it since
// they embed the whole task text.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// redactor masks sensitive keys and scrubs secrets out of string values.
type redactor struct {
	keys     []string
	scrubber *secrets.Scrubber
}

// sensitive reports whether key names a credential: an exact match such as
// "token" or a suffixed one such as "github_token".
func (r *redactor) sensitive(key string) bool {
	key = strings.ToLower(key)
	for _, k := range r.keys {
		if key == k || strings.HasSuffix(key, "_"+k) || strings.HasSuffix(key, "."+k) {
			return true
		}
	}
	return false
}

func (r *redactor) value(key, val string) string {
	if r.sensitive(key) {
		return redacted
	}
	if r.scrubber == nil {
		return val
	}
	return r.scrubber.Scrub(val).Text
}

// RedactingEncoder applies redaction to everything a zapcore.Encoder
// writes, including fields added through With.
type RedactingEncoder struct {
	zapcore.Encoder
	r *redactor
}

// NewRedactingEncoder wraps base. With redaction disabled the encoder
// passes everything through.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	if !cfg.Enabled {
		return &RedactingEncoder{Encoder: base}, nil
	}
	scrubber, err := secrets.New()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(cfg.Fields))
	for _, f := range cfg.Fields {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			keys = append(keys, f)
		}
	}
	return &RedactingEncoder{Encoder: base, r: &redactor{keys: keys, scrubber: scrubber}}, nil
}

func (e *RedactingEncoder) AddString(key, val string) {
	if e.r != nil {
		val = e.r.value(key, val)
	}
	e.Encoder.AddString(key, val)
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.r != nil {
		val = []byte(e.r.value(key, string(val)))
	}
	e.Encoder.AddByteString(key, val)
}

func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.r != nil && e.r.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

// EncodeEntry redacts the message and string fields of a single entry.
// fields is copied; callers may reuse their slice.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if e.r == nil {
		return e.Encoder.EncodeEntry(ent, fields)
	}
	ent.Message = e.r.value("", ent.Message)
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		switch {
		case f.Type == zapcore.StringType:
			f.String = e.r.value(f.Key, f.String)
		case e.r.sensitive(f.Key):
			f = zap.String(f.Key, redacted)
		}
		out[i] = f
	}
	return e.Encoder.EncodeEntry(ent, out)
}

func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), r: e.r}
}
