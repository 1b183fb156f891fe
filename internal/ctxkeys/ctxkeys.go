package ctxkeys

// CorrelationIDKey 上下文中的调用关联ID
type CorrelationIDKey struct{}
