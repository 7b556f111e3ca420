// pkg/logger/fallback.go

package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// settings reads BEDROCK_-prefixed environment overrides (log level, log
// path). A config file is deliberately not consulted: the installer often
// runs from a live ISO where no config file survives.
func settings() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("BEDROCK")
	v.AutomaticEnv()
	v.SetDefault("log_level", "info")
	v.SetDefault("log_path", "")
	return v
}

// InitializeWithFallback sets up a tee of console output and a JSON log
// file. When no log path is writable (live ISO without persistence, or a
// non-root run) it degrades to console only.
func InitializeWithFallback() {
	path := ResolveLogPath()
	if path == "" {
		fmt.Fprintln(os.Stderr, "no writable log path found, logging to console only")
		log = NewFallbackLogger()
		zap.ReplaceGlobals(log)
		return
	}

	jsonCfg := zap.NewProductionEncoderConfig()
	jsonCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	jsonCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not open log file, falling back to console:", err)
		log = NewFallbackLogger()
		zap.ReplaceGlobals(log)
		return
	}

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(DefaultConsoleEncoderConfig()), zapcore.Lock(os.Stderr), ParseLogLevel(settings().GetString("log_level"))),
		zapcore.NewCore(zapcore.NewJSONEncoder(jsonCfg), zapcore.AddSync(file), zap.InfoLevel),
	)

	log = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	zap.ReplaceGlobals(log)
	log.Debug("Logger initialized", zap.String("log_path", path))
}

// PlatformLogPaths lists candidate log file locations in preference order.
// The installed-system path comes first so phase 2 and post-reboot runs
// land in the same file the running system keeps. BEDROCK_LOG_PATH
// overrides the whole list.
func PlatformLogPaths() []string {
	if override := settings().GetString("log_path"); override != "" {
		return []string{override}
	}
	return []string{
		"/var/log/bedrock/bedrock.log",
		filepath.Join(os.TempDir(), "bedrock", "bedrock.log"),
	}
}

// ResolveLogPath returns the first log path whose directory can be created
// and whose file can be opened for append, or "" when none is writable.
func ResolveLogPath() string {
	for _, path := range PlatformLogPaths() {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			continue
		}
		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			continue
		}
		_ = file.Close()
		return path
	}
	return ""
}
