// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewAccessLogger builds the logr.Logger the proxy writes one structured
// line per request to the configured file. When path is empty, it
// falls back to the given general-purpose logger so access logging is
// always available even when no dedicated file is configured.
func NewAccessLogger(path string, fallback logr.Logger) (logr.Logger, error) {
	if path == "" {
		return fallback, nil
	}

	sink, _, err := zap.Open(path)
	if err != nil {
		return logr.Logger{}, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), sink, zapcore.InfoLevel)

	return zapr.NewLogger(zap.New(core)), nil
}
