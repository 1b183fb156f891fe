package control

import (
	"context"

	"mockrelay/pkg/domain"
)

// 控制通道消息类型
const (
	TypeKeepaliveRequest       = "keepalive_request"
	TypeKeepaliveResponse      = "keepalive_response"
	TypeIntegrityCheckRequest  = "integrity_check_request"
	TypeIntegrityCheckResponse = "integrity_check_response"
	TypeMockActivate           = "mock_activate"
	TypeMockingEnabled         = "mocking_enabled"
	TypeClientClosed           = "client_closed"
	TypeRequest                = "request"  // 代理 → 控制器，要求恰好一个 decision 回复
	TypeDecision               = "decision" // 控制器 → 代理，仲裁结果
	TypeResponse               = "response" // 代理 → 控制器，尽力而为的观测通知
)

// Message 控制通道消息；Payload 为原始 JSON，按消息类型解释
type Message struct {
	Type          string
	CorrelationID domain.CorrelationID
	Payload       []byte
}

// Channel 面向单个会话的消息发送端，由宿主适配层实现
type Channel interface {
	Send(ctx context.Context, to domain.SessionID, msg Message) error
}
