package agent

import (
	"context"
	"sync"

	"mockrelay/internal/logger"
	"mockrelay/internal/registry"
	"mockrelay/pkg/control"
	"mockrelay/pkg/domain"
)

// 构建标识，发布时经 -ldflags 注入
var (
	Version = "1.0.0"
	Build   = "dev"
)

// Host 宿主挂载点，排空后代理从宿主自注销
type Host interface {
	Detach(ctx context.Context) error
}

// DecisionSink 在途仲裁的兑现端
type DecisionSink interface {
	Resolve(id domain.CorrelationID, r domain.Reply) bool
}

// Agent 生命周期归属方：处理控制通道入站消息，消费注册表的排空信号
// 并触发自注销。注册表只在这条控制路径上被写入。
type Agent struct {
	reg  *registry.Registry
	ch   control.Channel
	sink DecisionSink
	host Host
	log  logger.Logger

	mu           sync.Mutex
	unregistered bool
}

// New 创建生命周期归属方
func New(reg *registry.Registry, ch control.Channel, sink DecisionSink, host Host, l logger.Logger) *Agent {
	if l == nil {
		l = logger.NewNop()
	}
	return &Agent{reg: reg, ch: ch, sink: sink, host: host, log: l}
}

// HandleRaw 解析并处理一条入站帧；不可识别的帧静默丢弃
func (a *Agent) HandleRaw(ctx context.Context, from domain.SessionID, raw []byte) {
	msg, ok := control.Parse(raw)
	if !ok {
		a.log.Debug("丢弃不可识别的控制帧", "session", string(from))
		return
	}
	a.Handle(ctx, from, msg)
}

// Handle 处理一条控制通道消息
func (a *Agent) Handle(ctx context.Context, from domain.SessionID, msg control.Message) {
	switch msg.Type {
	case control.TypeKeepaliveRequest:
		a.reply(ctx, from, control.Message{Type: control.TypeKeepaliveResponse})
	case control.TypeIntegrityCheckRequest:
		a.reply(ctx, from, control.EncodeIntegrity(Version, Build))
	case control.TypeMockActivate:
		n := a.reg.Activate(from)
		a.reply(ctx, from, control.EncodeMockingEnabled(n))
	case control.TypeClientClosed:
		a.reg.Deactivate(from)
	case control.TypeDecision:
		a.sink.Resolve(msg.CorrelationID, control.DecodeReply(msg))
	default:
		a.log.Debug("未知控制消息类型", "type", msg.Type, "session", string(from))
	}
}

// Run 阻塞消费排空信号直到上下文取消
func (a *Agent) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.reg.Drained():
			a.unregister(ctx)
		}
	}
}

// Unregistered 是否已自注销
func (a *Agent) Unregistered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unregistered
}

func (a *Agent) unregister(ctx context.Context) {
	a.mu.Lock()
	if a.unregistered {
		a.mu.Unlock()
		return
	}
	a.unregistered = true
	a.mu.Unlock()

	a.log.Info("无启用 Mock 的会话，代理自注销")
	if err := a.host.Detach(ctx); err != nil {
		a.log.Err(err, "自注销失败")
	}
}

func (a *Agent) reply(ctx context.Context, to domain.SessionID, msg control.Message) {
	if err := a.ch.Send(ctx, to, msg); err != nil {
		a.log.Debug("控制回复发送失败", "session", string(to), "type", msg.Type, "error", err)
	}
}
