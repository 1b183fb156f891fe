package dispatcher

import (
	"context"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"mockrelay/internal/logger"
	"mockrelay/internal/registry"
	"mockrelay/internal/synth"
	"mockrelay/pkg/domain"
	"mockrelay/pkg/traffic"
)

// SessionResolver 仲裁会话解析
type SessionResolver interface {
	Resolve(origin domain.SessionID) (domain.SessionID, bool)
}

// Arbiter 单次调用的仲裁交换
type Arbiter interface {
	Ask(ctx context.Context, to domain.SessionID, env domain.Envelope) domain.Reply
}

// Notifier 最终响应的观测通知
type Notifier interface {
	Notify(session domain.SessionID, env domain.Envelope, resp *traffic.Response)
}

// Dispatcher 拦截事件入口：过滤不可 Mock 的调用，其余送入仲裁，
// 保证每次拦截恰好产出一个最终结果。
type Dispatcher struct {
	reg      *registry.Registry
	resolver SessionResolver
	arbiter  Arbiter
	syn      *synth.Synthesizer
	notifier Notifier
	clock    clock.Clock
	events   chan<- domain.Event
	log      logger.Logger
}

// Config 依赖装配
type Config struct {
	Registry *registry.Registry
	Resolver SessionResolver
	Arbiter  Arbiter
	Synth    *synth.Synthesizer
	Notifier Notifier
	Clock    clock.Clock
	Events   chan<- domain.Event
	Logger   logger.Logger
}

// New 创建调度器
func New(cfg Config) *Dispatcher {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Dispatcher{
		reg:      cfg.Registry,
		resolver: cfg.Resolver,
		arbiter:  cfg.Arbiter,
		syn:      cfg.Synth,
		notifier: cfg.Notifier,
		clock:    cfg.Clock,
		events:   cfg.Events,
		log:      cfg.Logger,
	}
}

// Dispatch 处理一次被拦截的出站调用。req 在入口处快照，
// 原始对象之后的变化不影响处理。
func (d *Dispatcher) Dispatch(ctx context.Context, origin domain.SessionID, req *traffic.Request) (*traffic.Response, error) {
	call := req.Clone()

	// 顶层导航、缓存探测、以及空集合下的任何调用都不送仲裁
	if d.skip(call) {
		return d.syn.PassThrough(ctx, call)
	}

	env := domain.Envelope{
		CorrelationID: domain.CorrelationID(uuid.NewString()),
		InterceptedAt: d.clock.Now(),
		Request:       call,
	}
	d.sendEvent(domain.Event{
		Type:          "intercepted",
		Session:       origin,
		CorrelationID: env.CorrelationID,
		URL:           call.URL,
		Method:        call.Method,
	})

	session, ok := d.resolver.Resolve(origin)
	if !ok || !d.reg.IsActive(session) {
		// 控制器尚未就绪（首屏调用）或无人认领：直接走真实网络
		resp, err := d.syn.PassThrough(ctx, call)
		d.sendEvent(domain.Event{Type: "passed", Session: origin, CorrelationID: env.CorrelationID, URL: call.URL, Method: call.Method})
		return resp, err
	}

	start := d.clock.Now()
	reply := d.arbiter.Ask(ctx, session, env)
	d.log.Debug("仲裁完成",
		"correlationId", string(env.CorrelationID),
		"kind", int(reply.Kind),
		"duration", time.Since(start))

	var (
		resp *traffic.Response
		err  error
	)
	switch reply.Kind {
	case domain.ReplyUseMock:
		resp, err = d.syn.FromMock(ctx, call, reply.Response)
	default:
		resp, err = d.syn.PassThrough(ctx, call)
	}

	d.notifier.Notify(session, env, resp)

	evt := domain.Event{Type: "passed", Session: session, CorrelationID: env.CorrelationID, URL: call.URL, Method: call.Method}
	switch {
	case err != nil:
		evt.Type = "failed"
	case resp != nil && resp.Synthetic:
		evt.Type = "mocked"
		evt.Status = resp.Status
	case resp != nil:
		evt.Status = resp.Status
	}
	d.sendEvent(evt)

	return resp, err
}

// skip 判断调用是否完全绕过仲裁
func (d *Dispatcher) skip(req *traffic.Request) bool {
	if d.reg.Size() == 0 {
		// 逻辑上已关停的代理实例绝不介入
		return true
	}
	if strings.EqualFold(req.Resource, "document") {
		return true
	}
	if req.Meta.CachePolicy == "only-if-cached" {
		// 宿主的缓存诊断探测，Mock 无法满足
		return true
	}
	return false
}

// sendEvent 非阻塞发送观测事件
func (d *Dispatcher) sendEvent(evt domain.Event) {
	if d.events == nil {
		return
	}
	evt.Timestamp = d.clock.Now().UnixMilli()
	select {
	case d.events <- evt:
	default:
	}
}
