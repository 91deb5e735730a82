package commands

import (
	"fmt"
	"io"
	stdslog "log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/unkn0wn-root/pagecache"
	logruslog "github.com/unkn0wn-root/pagecache/log/logrus"
	sloglog "github.com/unkn0wn-root/pagecache/log/slog"
	zaplog "github.com/unkn0wn-root/pagecache/log/zap"
)

// newLogWriter returns the rotating file writer for logPath, or nil when
// logging goes to stderr only.
func newLogWriter(logPath string) io.WriteCloser {
	if logPath == "" || logPath == "-" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    50, // 50MB
		MaxBackups: 5,
		MaxAge:     30, // 30 days
		Compress:   false,
	}
}

// newLogger builds the pagecache.Logger selected by config. The returned
// closer flushes and closes the log file, if any.
func newLogger(config *Config, stderr io.Writer) (pagecache.Logger, *stdslog.Logger, func() error, error) {
	file := newLogWriter(config.LogPath)
	out := stderr
	if file != nil {
		// use multi output - to output to file and stderr
		out = io.MultiWriter(stderr, file)
	}
	closeFile := func() error {
		if file == nil {
			return nil
		}
		return file.Close()
	}

	level := strings.ToLower(config.LogLevel)
	switch config.Logger {
	case LoggerLogrus:
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, nil, nil, err
		}
		l := logrus.New()
		l.SetOutput(out)
		l.SetLevel(lvl)
		return logruslog.New(l), nil, closeFile, nil

	case LoggerZap:
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, nil, nil, err
		}
		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(out),
			lvl,
		)
		zl := zap.New(core)
		return zaplog.New(zl), nil, func() error {
			_ = zl.Sync()
			return closeFile()
		}, nil

	case LoggerSlog:
		var lvl stdslog.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, nil, nil, err
		}
		sl := stdslog.New(stdslog.NewTextHandler(out, &stdslog.HandlerOptions{Level: lvl}))
		return sloglog.New(sl), sl, closeFile, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown logger %q", config.Logger)
}

// PrintErr prints an error message to stderr.
func PrintErr(err error) {
	fmt.Fprintf(os.Stderr, "pagecache: %v\n", err)
}
