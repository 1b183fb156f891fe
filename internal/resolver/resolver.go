package resolver

import (
	"mockrelay/internal/logger"
	"mockrelay/internal/registry"
	"mockrelay/pkg/domain"
)

// Resolver 决定一次拦截调用应向哪个会话发起仲裁
type Resolver struct {
	dir domain.SessionDirectory
	reg *registry.Registry
	log logger.Logger
}

// New 创建解析器
func New(dir domain.SessionDirectory, reg *registry.Registry, l logger.Logger) *Resolver {
	if l == nil {
		l = logger.NewNop()
	}
	return &Resolver{dir: dir, reg: reg, log: l}
}

// Resolve 按发起会话解析仲裁会话。返回 ok=false 表示不做仲裁、直接放行。
//
// 已主动启用 Mock 的会话对自己的流量始终有裁决权；顶层上下文发出而
// 未启用的调用不受干预；其余（iframe、worker 等附带上下文）的调用归属
// 到用户当前正看着的第一个可见且已启用的会话。
func (r *Resolver) Resolve(origin domain.SessionID) (domain.SessionID, bool) {
	if r.reg.IsActive(origin) {
		return origin, true
	}

	if info, found := r.dir.GetByID(origin); found && info.TopLevel {
		r.log.Debug("顶层会话未启用 Mock，跳过仲裁", "session", string(origin))
		return "", false
	}

	for _, s := range r.dir.ListLive() {
		if s.Kind != domain.KindPage || !s.Visible {
			continue
		}
		if r.reg.IsActive(s.ID) {
			r.log.Debug("附带上下文调用归属可见会话", "origin", string(origin), "session", string(s.ID))
			return s.ID, true
		}
	}
	return "", false
}
