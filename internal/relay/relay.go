package relay

import (
	"context"
	"sync"
	"time"

	"mockrelay/internal/logger"
	"mockrelay/internal/registry"
	"mockrelay/pkg/control"
	"mockrelay/pkg/domain"
	"mockrelay/pkg/traffic"
)

// Archive 流量归档端，可选注入
type Archive interface {
	Append(ctx context.Context, session domain.SessionID, env domain.Envelope, resp *traffic.Response) error
}

// Relay 观测通知：调用有了最终响应后，尽力而为地把原始调用与响应副本
// 推给控制会话。绝不阻塞应答路径，任何发送失败只记日志。
type Relay struct {
	reg     *registry.Registry
	ch      control.Channel
	archive Archive
	log     logger.Logger
	timeout time.Duration

	wg sync.WaitGroup
}

// New 创建通知器；archive 可为 nil
func New(reg *registry.Registry, ch control.Channel, archive Archive, l logger.Logger) *Relay {
	if l == nil {
		l = logger.NewNop()
	}
	return &Relay{reg: reg, ch: ch, archive: archive, log: l, timeout: 5 * time.Second}
}

// Notify 异步发出 RESPONSE 通知。会话可能在调用进行中停用，
// 此处重新确认，已停用则静默跳过而不是发进虚空。
func (r *Relay) Notify(session domain.SessionID, env domain.Envelope, resp *traffic.Response) {
	if resp != nil {
		resp = resp.Clone()
	}
	active := r.reg.IsActive(session)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if r.archive != nil {
			if err := r.archive.Append(ctx, session, env, resp); err != nil {
				r.log.Debug("流量归档失败", "correlationId", string(env.CorrelationID), "error", err)
			}
		}
		if !active {
			r.log.Debug("会话已停用，跳过观测通知", "session", string(session))
			return
		}
		if err := r.ch.Send(ctx, session, control.EncodeResponse(env, resp)); err != nil {
			r.log.Debug("观测通知发送失败", "session", string(session), "error", err)
		}
	}()
}

// Wait 等待全部在途通知落地，关停时调用
func (r *Relay) Wait() {
	r.wg.Wait()
}
