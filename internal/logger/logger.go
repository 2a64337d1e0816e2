// 包 logger：批次作业的进程级日志器；级别、格式与落盘文件由环境变量控制，每次运行附带 run_id
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var defaultLogger *slog.Logger

// Options 日志输出参数
type Options struct {
	Level slog.Level
	JSON  bool
	// File 非空时日志同时追加写入该文件；下载阶段可能持续数小时，终端输出容易丢失
	File string
}

// ParseLevel debug|info|warn|error，其它取值为 info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// OptionsFromEnv 读取 LOG_LEVEL、LOG_FORMAT、LOG_FILE
func OptionsFromEnv() Options {
	return Options{
		Level: ParseLevel(os.Getenv("LOG_LEVEL")),
		JSON:  strings.ToLower(os.Getenv("LOG_FORMAT")) == "json",
		File:  os.Getenv("LOG_FILE"),
	}
}

// 文档注释：按参数构建日志器
// 约束：主输出为 w（标准输出留给工具结果，进程内传入标准错误）；File 打开失败时只写 w 并记录一条告警。
func New(w io.Writer, opts Options) *slog.Logger {
	var fileErr error
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fileErr = err
		} else {
			w = io.MultiWriter(w, f)
		}
	}
	ho := &slog.HandlerOptions{Level: opts.Level}
	var h slog.Handler = slog.NewTextHandler(w, ho)
	if opts.JSON {
		h = slog.NewJSONHandler(w, ho)
	}
	l := slog.New(h)
	if fileErr != nil {
		l.Warn("log_file_open_error", "file", opts.File, "err", fileErr)
	}
	return l
}

// Setup 以环境变量初始化默认日志器
func Setup() *slog.Logger {
	defaultLogger = New(os.Stderr, OptionsFromEnv())
	return defaultLogger
}

// 文档注释：初始化默认日志器并附带批次标识
// 背景：同一台机器可能并行执行多个合并批次，run_id 用于在汇总日志中区分归属。
func SetupRun(runID string) *slog.Logger {
	defaultLogger = New(os.Stderr, OptionsFromEnv()).With("run_id", runID)
	return defaultLogger
}

// L 默认日志器；未初始化时按环境变量初始化
func L() *slog.Logger {
	if defaultLogger == nil {
		return Setup()
	}
	return defaultLogger
}
