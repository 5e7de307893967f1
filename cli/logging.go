package cli

import (
	"io"
	"strings"

	"cdr.dev/slog/v3"
	"cdr.dev/slog/v3/sloggers/sloghuman"
	"gopkg.in/natefinch/lumberjack.v2"

	"bwtop/config"
)

// newLogger 终端界面模式下 termui 占用了整个屏幕，日志只能写到轮转文件里；
// 纯文本模式写 stderr。
func newLogger(cfg config.LogConfig, mode string, stderr io.Writer) (slog.Logger, func()) {
	if mode != config.ModeTUI {
		return slog.Make(sloghuman.Sink(stderr)).Leveled(parseLevel(cfg.Level)), func() {}
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}
	logger := slog.Make(sloghuman.Sink(lj)).Leveled(parseLevel(cfg.Level))
	return logger, func() { _ = lj.Close() }
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
