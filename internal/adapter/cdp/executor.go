package cdp

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"

	"mockrelay/internal/logger"
	"mockrelay/pkg/traffic"
)

// pausedCall 一次在途的拦截调用在宿主侧的状态
type pausedCall struct {
	client *cdp.Client
	ev     *fetch.RequestPausedReply
	// respCh 放行后等待响应阶段事件的私有通道
	respCh chan *fetch.RequestPausedReply
}

// Executor 把调度器的终结动作翻译为 Fetch 域指令。
// 放行的调用在响应阶段再次暂停，借此捕获真实响应供观测转发。
type Executor struct {
	captureTimeout time.Duration
	log            logger.Logger

	mu      sync.Mutex
	calls   map[string]*pausedCall                    // 键为 fetch RequestID
	waiters map[string]chan *fetch.RequestPausedReply // 键为 NetworkID
}

// NewExecutor 创建执行器
func NewExecutor(captureTimeout time.Duration, l logger.Logger) *Executor {
	if captureTimeout <= 0 {
		captureTimeout = 30 * time.Second
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Executor{
		captureTimeout: captureTimeout,
		log:            l,
		calls:          make(map[string]*pausedCall),
		waiters:        make(map[string]chan *fetch.RequestPausedReply),
	}
}

// Register 登记一次请求阶段的暂停事件，返回中立 ID
func (e *Executor) Register(client *cdp.Client, ev *fetch.RequestPausedReply) string {
	id := string(ev.RequestID)
	e.mu.Lock()
	e.calls[id] = &pausedCall{client: client, ev: ev}
	e.mu.Unlock()
	return id
}

// Release 移除登记，调用终结后必须执行
func (e *Executor) Release(id string) {
	e.mu.Lock()
	delete(e.calls, id)
	e.mu.Unlock()
}

func (e *Executor) lookup(id string) (*pausedCall, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pc, ok := e.calls[id]
	if !ok {
		return nil, fmt.Errorf("cdp: no paused call for id %q", id)
	}
	return pc, nil
}

// PassThrough 放行到真实网络并等待响应阶段以捕获最终响应
func (e *Executor) PassThrough(ctx context.Context, req *traffic.Request) (*traffic.Response, error) {
	pc, err := e.lookup(req.ID)
	if err != nil {
		return nil, err
	}

	args := &fetch.ContinueRequestArgs{RequestID: pc.ev.RequestID}
	// 剥离信令头后的快照整体回写
	if req.Headers.Len() > 0 {
		args.Headers = ToHeaderEntries(req.Headers)
	}

	var wait chan *fetch.RequestPausedReply
	if pc.ev.NetworkID != nil {
		wait = make(chan *fetch.RequestPausedReply, 1)
		e.mu.Lock()
		e.waiters[string(*pc.ev.NetworkID)] = wait
		e.mu.Unlock()
		defer func() {
			e.mu.Lock()
			delete(e.waiters, string(*pc.ev.NetworkID))
			e.mu.Unlock()
		}()
	}

	if err := pc.client.Fetch.ContinueRequest(ctx, args); err != nil {
		return nil, err
	}
	if wait == nil {
		// 无法关联响应阶段，调用已在网络上继续
		return traffic.NewResponse(), nil
	}

	timer := time.NewTimer(e.captureTimeout)
	defer timer.Stop()
	select {
	case respEv := <-wait:
		body := e.fetchResponseBody(ctx, pc.client, respEv.RequestID)
		resp := ToNeutralResponse(respEv, body)
		if err := pc.client.Fetch.ContinueResponse(ctx, &fetch.ContinueResponseArgs{RequestID: respEv.RequestID}); err != nil {
			e.log.Warn("响应阶段放行失败", "id", req.ID, "error", err)
		}
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("cdp: response capture timed out for %q", req.ID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Fulfill 以合成响应兑现暂停中的请求
func (e *Executor) Fulfill(ctx context.Context, req *traffic.Request, resp *traffic.Response) error {
	pc, err := e.lookup(req.ID)
	if err != nil {
		return err
	}
	args := &fetch.FulfillRequestArgs{
		RequestID:    pc.ev.RequestID,
		ResponseCode: resp.Status,
	}
	if resp.StatusText != "" {
		args.ResponsePhrase = &resp.StatusText
	}
	if resp.Headers.Len() > 0 {
		args.ResponseHeaders = ToHeaderEntries(resp.Headers)
	}
	if len(resp.Body) > 0 {
		args.Body = resp.Body
	}
	return pc.client.Fetch.FulfillRequest(ctx, args)
}

// Fail 以网络错误终结暂停中的请求
func (e *Executor) Fail(ctx context.Context, req *traffic.Request) error {
	pc, err := e.lookup(req.ID)
	if err != nil {
		return err
	}
	return pc.client.Fetch.FailRequest(ctx, &fetch.FailRequestArgs{
		RequestID:   pc.ev.RequestID,
		ErrorReason: network.ErrorReasonFailed,
	})
}

// DeliverResponseStage 把响应阶段事件递交给等待中的放行调用；
// 无人等待时直接放行该阶段
func (e *Executor) DeliverResponseStage(ctx context.Context, client *cdp.Client, ev *fetch.RequestPausedReply) {
	if ev.NetworkID != nil {
		e.mu.Lock()
		wait, ok := e.waiters[string(*ev.NetworkID)]
		e.mu.Unlock()
		if ok {
			select {
			case wait <- ev:
				return
			default:
				// 已有响应在途，按无主处理
			}
		}
	}
	if err := client.Fetch.ContinueResponse(ctx, &fetch.ContinueResponseArgs{RequestID: ev.RequestID}); err != nil {
		e.log.Debug("无主响应阶段放行失败", "requestID", string(ev.RequestID), "error", err)
	}
}

func (e *Executor) fetchResponseBody(ctx context.Context, client *cdp.Client, id fetch.RequestID) []byte {
	reply, err := client.Fetch.GetResponseBody(ctx, &fetch.GetResponseBodyArgs{RequestID: id})
	if err != nil {
		e.log.Debug("读取响应体失败", "requestID", string(id), "error", err)
		return nil
	}
	if reply.Base64Encoded {
		if b, err := base64.StdEncoding.DecodeString(reply.Body); err == nil {
			return b
		}
		return nil
	}
	return []byte(reply.Body)
}
