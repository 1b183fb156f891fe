package arbiter

import (
	"context"
	"sync"

	"mockrelay/internal/logger"
	"mockrelay/pkg/control"
	"mockrelay/pkg/domain"
)

// Arbiter 每次调用的请求/回复仲裁。每个在途调用持有自己私有的一次性
// 回复通道，按关联ID 存取，回复绝不会串到别的调用上。
type Arbiter struct {
	ch  control.Channel
	log logger.Logger

	mu      sync.Mutex
	pending map[domain.CorrelationID]chan domain.Reply
}

// New 创建仲裁器
func New(ch control.Channel, l logger.Logger) *Arbiter {
	if l == nil {
		l = logger.NewNop()
	}
	return &Arbiter{
		ch:      ch,
		log:     l,
		pending: make(map[domain.CorrelationID]chan domain.Reply),
	}
}

// Ask 向会话发送一条 REQUEST 并等待恰好一个按关联ID配对的回复。
// 发送失败、上下文取消都降级为放行；代理自身不设超时，活性由
// 仅向已确认响应的会话发问来保证。
func (a *Arbiter) Ask(ctx context.Context, to domain.SessionID, env domain.Envelope) domain.Reply {
	reply := make(chan domain.Reply, 1)

	a.mu.Lock()
	a.pending[env.CorrelationID] = reply
	a.mu.Unlock()

	if err := a.ch.Send(ctx, to, control.EncodeRequest(env)); err != nil {
		a.drop(env.CorrelationID)
		a.log.Warn("仲裁请求发送失败，降级放行",
			"session", string(to), "correlationId", string(env.CorrelationID), "error", err)
		return domain.PassThrough()
	}

	select {
	case r := <-reply:
		return r
	case <-ctx.Done():
		a.drop(env.CorrelationID)
		a.log.Warn("仲裁等待被取消，降级放行", "correlationId", string(env.CorrelationID))
		return domain.PassThrough()
	}
}

// Resolve 用回复兑现一个在途仲裁；未知关联ID 直接丢弃
func (a *Arbiter) Resolve(id domain.CorrelationID, r domain.Reply) bool {
	a.mu.Lock()
	ch, ok := a.pending[id]
	if ok {
		delete(a.pending, id)
	}
	a.mu.Unlock()
	if !ok {
		a.log.Debug("丢弃无对应在途调用的回复", "correlationId", string(id))
		return false
	}
	ch <- r
	return true
}

// Pending 在途仲裁数，观测用
func (a *Arbiter) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

func (a *Arbiter) drop(id domain.CorrelationID) {
	a.mu.Lock()
	delete(a.pending, id)
	a.mu.Unlock()
}
