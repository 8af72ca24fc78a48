// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package logger builds the structured logr.Logger used by both the
// watcher and the proxy binaries, backed by go.uber.org/zap.
package logger

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a supported logging verbosity.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	ErrorLevel Level = "error"
)

// Format is a supported log encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// NewZapLogger builds a logr.Logger at the given level and format,
// defaulting to InfoLevel/FormatText when left empty.
func NewZapLogger(level Level, format Format) (logr.Logger, error) {
	if level == "" {
		level = InfoLevel
	}
	if format == "" {
		format = FormatText
	}

	var zapLevel zapcore.Level
	switch level {
	case DebugLevel:
		zapLevel = zapcore.DebugLevel
	case InfoLevel:
		zapLevel = zapcore.InfoLevel
	case ErrorLevel:
		zapLevel = zapcore.ErrorLevel
	default:
		return logr.Logger{}, fmt.Errorf("invalid log level %q", level)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch format {
	case FormatJSON:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case FormatText:
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return logr.Logger{}, fmt.Errorf("invalid log format %q", format)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), zapLevel)
	zapLog := zap.New(core, zap.AddCaller())

	return zapr.NewLogger(zapLog), nil
}
