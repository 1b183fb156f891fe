package cdp

import (
	"strings"

	"mockrelay/pkg/domain"
)

// targetKind 把宿主目标类型归入会话类别
func targetKind(t string) domain.SessionKind {
	switch {
	case t == "page":
		return domain.KindPage
	case strings.Contains(t, "worker"):
		return domain.KindWorker
	default:
		return domain.KindOther
	}
}

// ListLive 实现 domain.SessionDirectory，按宿主枚举顺序返回存活会话。
// 页面类目标视为前台可达；已附加的页面视为对用户可见。
func (m *Manager) ListLive() []domain.SessionInfo {
	if m.dt == nil || m.ctx == nil {
		return nil
	}
	targets, err := m.dt.List(m.ctx)
	if err != nil {
		m.log.Debug("枚举宿主目标失败", "error", err)
		return nil
	}

	m.targetsMu.RLock()
	defer m.targetsMu.RUnlock()

	out := make([]domain.SessionInfo, 0, len(targets))
	for _, t := range targets {
		kind := targetKind(string(t.Type))
		id := domain.SessionID(t.ID)
		_, attached := m.targets[id]
		out = append(out, domain.SessionInfo{
			ID:       id,
			Kind:     kind,
			URL:      t.URL,
			Title:    t.Title,
			Visible:  kind == domain.KindPage && attached,
			TopLevel: kind == domain.KindPage,
		})
	}
	return out
}

// GetByID 查找单个存活会话
func (m *Manager) GetByID(id domain.SessionID) (domain.SessionInfo, bool) {
	for _, s := range m.ListLive() {
		if s.ID == id {
			return s, true
		}
	}
	return domain.SessionInfo{}, false
}
