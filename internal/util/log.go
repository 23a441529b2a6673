// Package util provides shared logging and statistics helpers.
package util

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger = logrus.New()

func init() {
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "02 Jan 15:04:05.000",
	})
}

// Leveled logging functions. All output goes to stderr by default; LogToFile
// additionally mirrors every entry into a rotating diagnostic log.

func LogDebug(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

func LogInfo(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

func LogSuccess(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

func LogWarning(format string, args ...interface{}) {
	logger.Warnf(format, args...)
}

func LogError(format string, args ...interface{}) {
	logger.Errorf(format, args...)
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	logger.SetLevel(logrus.DebugLevel)
}

// LogToFile attaches an append-only rotating file sink alongside stderr.
// Rotation keeps the diagnostic log from growing without bound on long
// running servers.
func LogToFile(path string) {
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // MiB per file
		MaxBackups: 3,
		Compress:   true,
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, file))
}
