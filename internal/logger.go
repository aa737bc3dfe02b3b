package internal

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

var (
	logLevel = LogLevelInfo
	atom     = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logFile  string
	logger   = newLogger("")
)

func newLogger(path string) *zap.SugaredLogger {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
	encoderConfig.CallerKey = ""
	console := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(os.Stderr),
		atom,
	)

	core := console
	if path != "" {
		rotator := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // Megabytes
			MaxBackups: 3,
			MaxAge:     14, // Days
			Compress:   true,
		}
		fileConfig := zap.NewProductionEncoderConfig()
		fileConfig.TimeKey = "timestamp"
		fileConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		fileConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(fileConfig),
			zapcore.AddSync(rotator),
			zapcore.DebugLevel,
		)
		core = zapcore.NewTee(console, fileCore)
	}

	return zap.New(core).Sugar()
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	logLevel = level
	switch level {
	case LogLevelError:
		atom.SetLevel(zapcore.ErrorLevel)
	case LogLevelWarn:
		atom.SetLevel(zapcore.WarnLevel)
	case LogLevelInfo:
		atom.SetLevel(zapcore.InfoLevel)
	default:
		atom.SetLevel(zapcore.DebugLevel)
	}
}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		SetLogLevel(LogLevelDebug)
	} else {
		SetLogLevel(LogLevelInfo)
	}
}

// SetLogFile additionally writes every record as JSON to a rotated file.
// An empty path disables the file sink.
func SetLogFile(path string) {
	if path == logFile {
		return
	}
	_ = logger.Sync()
	logFile = path
	logger = newLogger(path)
}

// SyncLogs flushes buffered log records
func SyncLogs() {
	_ = logger.Sync()
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	logger.Errorf(format, args...)
}

// LogWarn logs a warning message
func LogWarn(format string, args ...interface{}) {
	logger.Warnf(format, args...)
}

// LogInfo logs an info message
func LogInfo(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

// LogDebug logs a debug message
func LogDebug(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}
