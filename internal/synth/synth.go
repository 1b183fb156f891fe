package synth

import (
	"context"
	"net/http"

	"mockrelay/internal/logger"
	"mockrelay/pkg/traffic"
)

// Executor 宿主侧的调用执行端：放行到真实网络、以合成响应兑现、
// 或以网络错误终结。由宿主适配层实现。
type Executor interface {
	PassThrough(ctx context.Context, req *traffic.Request) (*traffic.Response, error)
	Fulfill(ctx context.Context, req *traffic.Request, resp *traffic.Response) error
	Fail(ctx context.Context, req *traffic.Request) error
}

// Synthesizer 构造每次调用的最终响应
type Synthesizer struct {
	exec Executor
	log  logger.Logger
}

// New 创建合成器
func New(exec Executor, l logger.Logger) *Synthesizer {
	if l == nil {
		l = logger.NewNop()
	}
	return &Synthesizer{exec: exec, log: l}
}

// PassThrough 放行到真实网络。出站请求先剥离内部信令头，
// 真实服务器不能看到代理的信号。
func (s *Synthesizer) PassThrough(ctx context.Context, req *traffic.Request) (*traffic.Response, error) {
	req.Headers.Del(traffic.PassThroughHeader)
	return s.exec.PassThrough(ctx, req)
}

// FromMock 按控制器给出的合成响应兑现调用。状态码 0 是刻意的网络错误
// 信号，以硬性网络失败收场而不是构造零状态响应对象。合成标记只落在
// 响应对象的带外字段上，不进头部。
func (s *Synthesizer) FromMock(ctx context.Context, req *traffic.Request, mock *traffic.Response) (*traffic.Response, error) {
	if mock == nil {
		return s.PassThrough(ctx, req)
	}
	if mock.Status == 0 {
		if err := s.exec.Fail(ctx, req); err != nil {
			s.log.Warn("网络错误注入失败", "id", req.ID, "error", err)
		}
		return nil, traffic.ErrNetworkFailure
	}

	out := mock.Clone()
	out.Synthetic = true
	if out.Headers == nil {
		out.Headers = traffic.NewHeader()
	}
	if out.StatusText == "" {
		out.StatusText = http.StatusText(out.Status)
	}
	if err := s.exec.Fulfill(ctx, req, out); err != nil {
		// 兑现失败同样降级为放行，调用永远要有着落
		s.log.Warn("合成响应兑现失败，降级放行", "id", req.ID, "error", err)
		return s.PassThrough(ctx, req)
	}
	return out, nil
}
