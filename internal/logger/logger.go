package logger

// Logger 结构化日志接口，键值对成对出现
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Err(err error, msg string, kv ...any)
	With(kv ...any) Logger
}

type nop struct{}

// NewNop 创建丢弃全部输出的日志器，测试与可选依赖使用
func NewNop() Logger { return nop{} }

func (nop) Debug(string, ...any) {}

func (nop) Info(string, ...any) {}

func (nop) Warn(string, ...any) {}

func (nop) Error(string, ...any) {}

func (nop) Err(error, string, ...any) {}

func (n nop) With(...any) Logger { return n }
