package domain

import (
	"time"

	"mockrelay/pkg/traffic"
)

type SessionID string
type CorrelationID string

// SessionKind 宿主会话类型
type SessionKind string

const (
	KindPage   SessionKind = "page"
	KindWorker SessionKind = "worker"
	KindOther  SessionKind = "other"
)

// SessionInfo 宿主枚举出的会话快照，代理只读不持有
type SessionInfo struct {
	ID       SessionID   `json:"id"`
	Kind     SessionKind `json:"kind"`
	URL      string      `json:"url"`
	Title    string      `json:"title"`
	Visible  bool        `json:"visible"`  // 当前对用户可见
	TopLevel bool        `json:"topLevel"` // 是否为顶层导航上下文
}

// SessionDirectory 宿主会话目录，由宿主适配层注入
type SessionDirectory interface {
	// ListLive 按宿主枚举顺序返回当前存活会话
	ListLive() []SessionInfo
	// GetByID 查找单个存活会话
	GetByID(id SessionID) (SessionInfo, bool)
}

// Envelope 拦截快照 + 关联ID + 拦截时刻，贯穿仲裁与通知
type Envelope struct {
	CorrelationID CorrelationID
	InterceptedAt time.Time
	Request       *traffic.Request
}

// ReplyKind 仲裁回复类别
type ReplyKind int

const (
	// ReplyPassThrough 零值即放行，格式错误的回复天然降级
	ReplyPassThrough ReplyKind = iota
	ReplyUseMock
)

// Reply 仲裁回复
type Reply struct {
	Kind     ReplyKind
	Response *traffic.Response // 仅 ReplyUseMock 时有效
}

// PassThrough 放行回复
func PassThrough() Reply { return Reply{Kind: ReplyPassThrough} }

// UseMock 采用合成响应的回复
func UseMock(resp *traffic.Response) Reply {
	return Reply{Kind: ReplyUseMock, Response: resp}
}

// Event 对外可观测事件
type Event struct {
	Type          string        `json:"type"`
	Session       SessionID     `json:"session,omitempty"`
	CorrelationID CorrelationID `json:"correlationId,omitempty"`
	URL           string        `json:"url,omitempty"`
	Method        string        `json:"method,omitempty"`
	Status        int           `json:"status,omitempty"`
	Timestamp     int64         `json:"timestamp"`
}
