// Package logger builds the zap loggers used by gojostm binaries.
package logger

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultServiceName is attached to every entry when Config.ServiceName is
// empty.
const DefaultServiceName = "gojostm"

// Config holds all the configuration for the logger.
type Config struct {
	// Level sets the minimum log level ("debug", "info", "warn", "error").
	// Unknown or empty values mean "info".
	Level string `yaml:"level"`
	// Format is "json" or "console".
	Format string `yaml:"format"`
	// OutputFile is a file path, or "stdout"/"stderr".
	OutputFile string `yaml:"output_file"`
	// ServiceName is logged as the "service" field.
	ServiceName string `yaml:"service_name"`
}

// New creates a zap.Logger from config. The returned level can be changed at
// runtime, which the shell uses to toggle debug output.
func New(config Config) (*zap.Logger, zap.AtomicLevel, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if config.Level != "" {
		if err := level.UnmarshalText([]byte(config.Level)); err != nil {
			level.SetLevel(zap.InfoLevel)
		}
	}

	sink, err := openSink(config.OutputFile)
	if err != nil {
		return nil, level, err
	}

	service := config.ServiceName
	if service == "" {
		service = DefaultServiceName
	}

	core := zapcore.NewCore(newEncoder(config.Format), sink, level)
	logger := zap.New(core, zap.AddCaller(), zap.Fields(zap.String("service", service)))
	return logger, level, nil
}

func newEncoder(format string) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	if strings.EqualFold(format, "console") {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

func openSink(outputFile string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(outputFile) {
	case "stdout", "":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}
	file, err := os.OpenFile(outputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open log file %s", outputFile)
	}
	return zapcore.AddSync(file), nil
}
