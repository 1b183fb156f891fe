package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 日志选项
type Options struct {
	Level   string   // debug / info / warn / error
	Writers []string // console / file
	File    string   // file writer 的落盘路径
}

type zlogger struct {
	l zerolog.Logger
}

// New 按选项创建 zerolog 实现
func New(opts Options) Logger {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	for _, w := range opts.Writers {
		switch w {
		case "console":
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr})
		case "file":
			file := opts.File
			if file == "" {
				file = "mockrelay.log"
			}
			writers = append(writers, &lumberjack.Logger{
				Filename:   file,
				MaxSize:    50, // MB
				MaxBackups: 5,
				MaxAge:     14, // days
				Compress:   true,
			})
		}
	}
	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr})
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Logger()
	return &zlogger{l: zl}
}

func fields(ev *zerolog.Event, kv []any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	return ev
}

func (z *zlogger) Debug(msg string, kv ...any) { fields(z.l.Debug(), kv).Msg(msg) }
func (z *zlogger) Info(msg string, kv ...any)  { fields(z.l.Info(), kv).Msg(msg) }
func (z *zlogger) Warn(msg string, kv ...any)  { fields(z.l.Warn(), kv).Msg(msg) }
func (z *zlogger) Error(msg string, kv ...any) { fields(z.l.Error(), kv).Msg(msg) }

func (z *zlogger) Err(err error, msg string, kv ...any) {
	fields(z.l.Error().Err(err), kv).Msg(msg)
}

func (z *zlogger) With(kv ...any) Logger {
	ctx := z.l.With()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, kv[i+1])
	}
	return &zlogger{l: ctx.Logger()}
}
