// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// F is a structured key-value pair attached to a log line. The underlying
// luxfi/node Logger only accepts a single message string, so Fielded callers
// format fields into the message rather than passing a structured sink.
type F = zap.Field

// Debugf, Infof, Warnf and Errorf append key=value pairs built from fields to
// msg before dispatching to l. Used throughout the validator tick loops to
// attach channel/peer/state context without widening the Logger interface.
func Debugf(l Logger, msg string, fields ...F) { l.Debug(withFields(msg, fields)) }
func Infof(l Logger, msg string, fields ...F)  { l.Info(withFields(msg, fields)) }
func Warnf(l Logger, msg string, fields ...F)  { l.Warn(withFields(msg, fields)) }
func Errorf(l Logger, msg string, fields ...F) { l.Error(withFields(msg, fields)) }

func withFields(msg string, fields []F) string {
	if len(fields) == 0 {
		return msg
	}

	var b strings.Builder
	b.WriteString(msg)
	for _, f := range fields {
		b.WriteByte(' ')
		b.WriteString(f.Key)
		b.WriteByte('=')
		fmt.Fprintf(&b, "%v", fieldValue(f))
	}
	return b.String()
}

// Uint64 builds a structured uint64 field, used for UnifiedNum amounts and
// promille health scores in tick logging.
func Uint64(key string, val uint64) F {
	return zap.Uint64(key, val)
}

// Bool builds a structured bool field.
func Bool(key string, val bool) F {
	return zap.Bool(key, val)
}

func fieldValue(f F) interface{} {
	switch f.Type {
	case zapcore.StringType:
		return f.String
	case zapcore.BoolType:
		return f.Integer == 1
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok {
			return err.Error()
		}
		return f.Interface
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Uint64Type, zapcore.Uint32Type, zapcore.DurationType:
		return f.Integer
	default:
		if f.Interface != nil {
			return f.Interface
		}
		return f.Integer
	}
}
