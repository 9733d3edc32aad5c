package logger

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Mask is the fixed replacement for secret values in log output and error text.
const Mask = "***"

// Redactor replaces known secret values with Mask in arbitrary strings.
type Redactor struct {
	replacer *strings.Replacer
}

// NewRedactor creates a redactor for the given secret values.
// Empty secrets are ignored.
func NewRedactor(secrets ...string) *Redactor {
	pairs := make([]string, 0, len(secrets)*2)
	for _, s := range secrets {
		if s != "" {
			pairs = append(pairs, s, Mask)
		}
	}
	if len(pairs) == 0 {
		return &Redactor{}
	}
	return &Redactor{replacer: strings.NewReplacer(pairs...)}
}

// Redact returns s with every known secret replaced by Mask.
func (r *Redactor) Redact(s string) string {
	if r == nil || r.replacer == nil {
		return s
	}
	return r.replacer.Replace(s)
}

// Sanitize returns an error whose string representation contains no secret.
// The original error is returned unchanged when it is already clean, so
// errors.Is/As matching is preserved on the common path.
func (r *Redactor) Sanitize(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	clean := r.Redact(msg)
	if clean == msg {
		return err
	}
	return errors.New(clean)
}

// redactingCore is a zapcore.Core wrapper that masks secrets in the entry
// message and in string/error/byte-string fields before delegating.
type redactingCore struct {
	zapcore.Core
	redactor *Redactor
}

// WrapCore wraps a zap core with credential redaction.
func WrapCore(core zapcore.Core, redactor *Redactor) zapcore.Core {
	return &redactingCore{Core: core, redactor: redactor}
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{
		Core:     c.Core.With(c.redactFields(fields)),
		redactor: c.redactor,
	}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = c.redactor.Redact(ent.Message)
	return c.Core.Write(ent, c.redactFields(fields))
}

// redactFields returns a copy of fields with secret-bearing values masked.
// Error fields are flattened to strings so wrapped causes cannot leak a secret
// through their own formatting.
func (c *redactingCore) redactFields(fields []zapcore.Field) []zapcore.Field {
	if c.redactor == nil || c.redactor.replacer == nil {
		return fields
	}

	out := make([]zapcore.Field, len(fields))
	copy(out, fields)
	for i, f := range out {
		switch f.Type {
		case zapcore.StringType:
			out[i].String = c.redactor.Redact(f.String)
		case zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok && err != nil {
				out[i] = zapcore.Field{
					Key:    f.Key,
					Type:   zapcore.StringType,
					String: c.redactor.Redact(err.Error()),
				}
			}
		case zapcore.ByteStringType:
			if b, ok := f.Interface.([]byte); ok {
				out[i] = zapcore.Field{
					Key:    f.Key,
					Type:   zapcore.StringType,
					String: c.redactor.Redact(string(b)),
				}
			}
		case zapcore.StringerType:
			if s, ok := f.Interface.(fmt.Stringer); ok && s != nil {
				out[i] = zapcore.Field{
					Key:    f.Key,
					Type:   zapcore.StringType,
					String: c.redactor.Redact(s.String()),
				}
			}
		}
	}
	return out
}
