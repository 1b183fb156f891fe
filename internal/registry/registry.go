package registry

import (
	"sync"

	"mockrelay/internal/logger"
	"mockrelay/pkg/domain"
)

// Registry 已启用 Mock 的会话集合。只由控制通道的消息处理路径写入，
// 拦截路径仅读取。
type Registry struct {
	mu      sync.RWMutex
	active  map[domain.SessionID]struct{}
	drained chan struct{}
	log     logger.Logger
}

// New 创建空集合
func New(l logger.Logger) *Registry {
	if l == nil {
		l = logger.NewNop()
	}
	return &Registry{
		active:  make(map[domain.SessionID]struct{}),
		drained: make(chan struct{}, 1),
		log:     l,
	}
}

// Activate 幂等标记会话启用 Mock，返回插入后的集合大小
func (r *Registry) Activate(id domain.SessionID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[id]; !ok {
		r.active[id] = struct{}{}
		r.log.Info("会话启用 Mock", "session", string(id), "active", len(r.active))
	}
	return len(r.active)
}

// Deactivate 移除会话；当移除使集合变空时发出一次排空信号
func (r *Registry) Deactivate(id domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[id]; !ok {
		return
	}
	delete(r.active, id)
	r.log.Info("会话停用 Mock", "session", string(id), "active", len(r.active))
	if len(r.active) == 0 {
		select {
		case r.drained <- struct{}{}:
		default:
		}
	}
}

// IsActive 查询会话是否启用 Mock
func (r *Registry) IsActive(id domain.SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.active[id]
	return ok
}

// Size 当前启用 Mock 的会话数
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// Drained 排空信号：最后一个启用 Mock 的会话被移除时收到一次。
// 生命周期归属方据此决定是否自注销，注册表本身不做关停决策。
func (r *Registry) Drained() <-chan struct{} {
	return r.drained
}
