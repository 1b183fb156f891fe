package cdp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"

	"mockrelay/internal/logger"
	"mockrelay/pkg/control"
	"mockrelay/pkg/domain"
	"mockrelay/pkg/traffic"
)

// bindingName 控制器页面通过该绑定向代理发消息，
// 代理经 __mockrelay_recv 回推
const bindingName = "__mockrelay_send"

// Dispatcher 拦截调用的处理入口
type Dispatcher interface {
	Dispatch(ctx context.Context, origin domain.SessionID, req *traffic.Request) (*traffic.Response, error)
}

// InboundHandler 控制通道入站帧的处理端
type InboundHandler interface {
	HandleRaw(ctx context.Context, from domain.SessionID, raw []byte)
}

// targetSession 单个已附加目标的连接状态
type targetSession struct {
	id     domain.SessionID
	conn   *rpcc.Conn
	client *cdp.Client
	ctx    context.Context
	cancel context.CancelFunc
}

// Manager 宿主适配层：附加浏览器目标、消费拦截事件流、承载控制通道。
// 同时实现 control.Channel、domain.SessionDirectory 与 agent.Host。
type Manager struct {
	devtoolsURL string
	dt          *devtool.DevTools
	exec        *Executor
	dispatcher  Dispatcher
	inbound     InboundHandler
	log         logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	targetsMu sync.RWMutex
	targets   map[domain.SessionID]*targetSession
}

// NewManager 创建宿主适配器
func NewManager(devtoolsURL string, exec *Executor, disp Dispatcher, inbound InboundHandler, l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		devtoolsURL: devtoolsURL,
		exec:        exec,
		dispatcher:  disp,
		inbound:     inbound,
		log:         l,
		targets:     make(map[domain.SessionID]*targetSession),
	}
}

// SetDispatcher 注入拦截调用处理端，必须在 Start 前完成
func (m *Manager) SetDispatcher(d Dispatcher) { m.dispatcher = d }

// SetInbound 注入控制帧处理端，必须在 Start 前完成
func (m *Manager) SetInbound(h InboundHandler) { m.inbound = h }

// Start 连接宿主并附加当前全部页面目标
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.dt = devtool.New(m.devtoolsURL)
	return m.AttachPages(ctx)
}

// AttachPages 附加所有尚未附加的页面目标
func (m *Manager) AttachPages(ctx context.Context) error {
	targets, err := m.dt.List(ctx)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	for _, t := range targets {
		if string(t.Type) != "page" {
			continue
		}
		id := domain.SessionID(t.ID)
		m.targetsMu.RLock()
		_, attached := m.targets[id]
		m.targetsMu.RUnlock()
		if attached {
			continue
		}
		if err := m.attachTarget(t); err != nil {
			m.log.Err(err, "附加目标失败", "target", string(t.ID), "url", t.URL)
		}
	}
	return nil
}

func (m *Manager) attachTarget(t *devtool.Target) error {
	ctx, cancel := context.WithCancel(m.ctx)
	conn, err := rpcc.DialContext(ctx, t.WebSocketDebuggerURL)
	if err != nil {
		cancel()
		return err
	}
	client := cdp.NewClient(conn)

	p := "*"
	patterns := []fetch.RequestPattern{
		{URLPattern: &p, RequestStage: fetch.RequestStageRequest},
		{URLPattern: &p, RequestStage: fetch.RequestStageResponse},
	}
	if err := client.Fetch.Enable(ctx, &fetch.EnableArgs{Patterns: patterns}); err != nil {
		cancel()
		conn.Close()
		return err
	}
	if err := client.Runtime.Enable(ctx); err != nil {
		cancel()
		conn.Close()
		return err
	}
	if err := client.Runtime.AddBinding(ctx, runtime.NewAddBindingArgs(bindingName)); err != nil {
		cancel()
		conn.Close()
		return err
	}

	ts := &targetSession{
		id:     domain.SessionID(t.ID),
		conn:   conn,
		client: client,
		ctx:    ctx,
		cancel: cancel,
	}
	m.targetsMu.Lock()
	m.targets[ts.id] = ts
	m.targetsMu.Unlock()

	go m.consumeFetch(ts)
	go m.consumeBindings(ts)

	m.log.Info("目标已附加", "target", string(ts.id), "url", t.URL)
	return nil
}

// consumeFetch 持续接收拦截事件并逐条分发处理
func (m *Manager) consumeFetch(ts *targetSession) {
	rp, err := ts.client.Fetch.RequestPaused(ts.ctx)
	if err != nil {
		m.log.Err(err, "订阅拦截事件流失败", "target", string(ts.id))
		m.removeTarget(ts, err)
		return
	}
	defer rp.Close()

	for {
		ev, err := rp.Recv()
		if err != nil {
			m.removeTarget(ts, err)
			return
		}
		if ev.ResponseStatusCode != nil {
			go m.exec.DeliverResponseStage(ts.ctx, ts.client, ev)
			continue
		}
		id := m.exec.Register(ts.client, ev)
		req := ToNeutralRequest(ev)
		go func() {
			defer m.exec.Release(id)
			if _, err := m.dispatcher.Dispatch(ts.ctx, ts.id, req); err != nil {
				if errors.Is(err, traffic.ErrNetworkFailure) {
					return // 刻意注入的网络错误，正常结局
				}
				m.log.Warn("拦截调用处理失败", "target", string(ts.id), "url", req.URL, "error", err)
			}
		}()
	}
}

// consumeBindings 接收控制器页面经绑定发来的控制帧
func (m *Manager) consumeBindings(ts *targetSession) {
	bc, err := ts.client.Runtime.BindingCalled(ts.ctx)
	if err != nil {
		m.log.Err(err, "订阅绑定调用失败", "target", string(ts.id))
		return
	}
	defer bc.Close()

	for {
		ev, err := bc.Recv()
		if err != nil {
			return
		}
		if ev.Name != bindingName {
			continue
		}
		m.inbound.HandleRaw(ts.ctx, ts.id, []byte(ev.Payload))
	}
}

// Send 实现 control.Channel：把消息投递进目标页面
func (m *Manager) Send(ctx context.Context, to domain.SessionID, msg control.Message) error {
	m.targetsMu.RLock()
	ts, ok := m.targets[to]
	m.targetsMu.RUnlock()
	if !ok {
		return fmt.Errorf("cdp: session %q not attached", string(to))
	}
	expr := fmt.Sprintf("window.__mockrelay_recv && window.__mockrelay_recv(%s)",
		strconv.Quote(string(control.Encode(msg))))
	_, err := ts.client.Runtime.Evaluate(ctx, runtime.NewEvaluateArgs(expr))
	return err
}

// Detach 实现 agent.Host：关闭全部目标连接并停止适配层
func (m *Manager) Detach(ctx context.Context) error {
	m.targetsMu.Lock()
	targets := m.targets
	m.targets = make(map[domain.SessionID]*targetSession)
	m.targetsMu.Unlock()

	for _, ts := range targets {
		m.closeTargetSession(ctx, ts)
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.log.Info("已从宿主分离", "targets", len(targets))
	return nil
}

// removeTarget 事件流中断时摘除目标
func (m *Manager) removeTarget(ts *targetSession, err error) {
	m.targetsMu.Lock()
	cur, ok := m.targets[ts.id]
	if ok && cur == ts {
		delete(m.targets, ts.id)
	}
	m.targetsMu.Unlock()
	if ok && cur == ts {
		m.log.Warn("拦截流中断，目标已摘除", "target", string(ts.id), "error", err)
		m.closeTargetSession(context.Background(), ts)
	}
}

func (m *Manager) closeTargetSession(ctx context.Context, ts *targetSession) {
	_ = ts.client.Fetch.Disable(ctx)
	ts.cancel()
	if err := ts.conn.Close(); err != nil {
		m.log.Debug("关闭目标连接失败", "target", string(ts.id), "error", err)
	}
}
