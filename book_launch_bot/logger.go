package booklaunchbot

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

var pkgLogger *slog.Logger
var pkgLogLevel *slog.LevelVar

func init() {
	pkgLogLevel = new(slog.LevelVar)
	pkgLogLevel.Set(slog.LevelInfo)

	handlerOptions := &slog.HandlerOptions{
		Level: pkgLogLevel,
	}
	pkgLogger = slog.New(slog.NewTextHandler(os.Stdout, handlerOptions))
}

// SetLogger replaces the package logger.
// SetLogLevel only affects loggers whose handler was built with the package LevelVar,
// so a custom logger should be created with LogLevelVar() if the level must stay adjustable.
func SetLogger(l *slog.Logger) {
	pkgLogger = l
}

// SetLogLevel changes the level of the package logger. Safe for concurrent use.
func SetLogLevel(level slog.Level) {
	pkgLogLevel.Set(level)
}

// LogLevelVar exposes the LevelVar used by the package logger.
func LogLevelVar() *slog.LevelVar {
	return pkgLogLevel
}

// ParseLogLevel converts a config value such as "debug" or "WARN" to a slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// ginLogger writes one access log line per request to the package logger.
func ginLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		}
		pkgLogger.Log(c.Request.Context(), level, "HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"query", c.Request.URL.RawQuery,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
