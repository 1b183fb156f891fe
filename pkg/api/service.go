package api

import (
	"context"

	"mockrelay/internal/config"
	"mockrelay/internal/logger"
	"mockrelay/internal/service"
	"mockrelay/internal/storage"
	"mockrelay/pkg/domain"
)

// Service 服务接口
type Service interface {
	// Start 连接宿主并开始拦截
	Start(ctx context.Context) error

	// Stop 有序关停
	Stop() error

	// Events 订阅观测事件
	Events() <-chan domain.Event

	// History 查询最近归档的调用/响应交换
	History(ctx context.Context, limit int) ([]storage.Exchange, error)
}

// NewService 创建并返回服务接口实现
func NewService(cfg *config.Config, l logger.Logger) Service {
	return service.New(cfg, l)
}
