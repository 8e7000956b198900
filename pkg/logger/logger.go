package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger
var sugar *zap.SugaredLogger

// Init builds the process-wide logger. In "dev" logs are colorized console
// output; every other environment gets production JSON on stdout so the
// collector can ship them as-is.
func Init(service, env, level string) {
	var cfg zap.Config

	if env == "dev" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	built, err := cfg.Build(zap.AddCaller(), zap.AddCallerSkip(1))
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}

	log = built.With(zap.String("service", service))
	sugar = log.Sugar()

	sugar.Infow("logger.initialized",
		"env", env,
		"level", level,
	)
}

// L returns the structured logger, initializing a dev default if Init was
// never called (tests, ad-hoc tooling).
func L() *zap.Logger {
	if log == nil {
		Init("signing-adapter", "dev", "info")
	}
	return log
}

// S returns the sugared logger.
func S() *zap.SugaredLogger {
	if sugar == nil {
		Init("signing-adapter", "dev", "info")
	}
	return sugar
}

// Sync flushes buffered entries; defer it in main().
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
