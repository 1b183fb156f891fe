package service

import (
	"context"
	"fmt"
	"time"

	cdpadapter "mockrelay/internal/adapter/cdp"
	"mockrelay/internal/agent"
	"mockrelay/internal/arbiter"
	"mockrelay/internal/config"
	"mockrelay/internal/dispatcher"
	"mockrelay/internal/logger"
	"mockrelay/internal/registry"
	"mockrelay/internal/relay"
	"mockrelay/internal/resolver"
	"mockrelay/internal/storage"
	"mockrelay/internal/synth"
	"mockrelay/pkg/domain"
)

// Service 组装并持有代理的全部组件
type Service struct {
	cfg *config.Config
	log logger.Logger

	events  chan domain.Event
	store   *storage.Store
	manager *cdpadapter.Manager
	agent   *agent.Agent
	rel     *relay.Relay
	cancel  context.CancelFunc
}

// New 创建服务
func New(cfg *config.Config, l logger.Logger) *Service {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Service{
		cfg:    cfg,
		log:    l,
		events: make(chan domain.Event, 256),
	}
}

// Start 启动代理：打开归档、连接宿主、开始消费拦截与控制事件
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	var archive relay.Archive
	if s.cfg.Sqlite.Dsn != "" {
		store, err := storage.Open(s.cfg.Sqlite.Dsn, s.cfg.Sqlite.Prefix, s.log)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		s.store = store
		archive = store
	}

	reg := registry.New(s.log)
	exec := cdpadapter.NewExecutor(time.Duration(s.cfg.Host.ProcessTimeoutMS)*time.Millisecond, s.log)
	manager := cdpadapter.NewManager(s.cfg.Host.DevToolsURL, exec, nil, nil, s.log)

	arb := arbiter.New(manager, s.log)
	res := resolver.New(manager, reg, s.log)
	s.rel = relay.New(reg, manager, archive, s.log)

	disp := dispatcher.New(dispatcher.Config{
		Registry: reg,
		Resolver: res,
		Arbiter:  arb,
		Synth:    synth.New(exec, s.log),
		Notifier: s.rel,
		Events:   s.events,
		Logger:   s.log,
	})
	s.agent = agent.New(reg, manager, arb, manager, s.log)

	manager.SetDispatcher(disp)
	manager.SetInbound(s.agent)
	s.manager = manager

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("attach host: %w", err)
	}
	go s.agent.Run(ctx)

	s.log.Info("代理已启动",
		"devtools", s.cfg.Host.DevToolsURL,
		"version", agent.Version, "build", agent.Build)
	return nil
}

// Stop 有序关停：停止消费、等在途通知落地、断开宿主、关闭归档
func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.rel != nil {
		s.rel.Wait()
	}
	var firstErr error
	if s.manager != nil {
		if err := s.manager.Detach(context.Background()); err != nil {
			firstErr = err
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Events 观测事件流
func (s *Service) Events() <-chan domain.Event {
	return s.events
}

// History 最近归档的交换记录；未配置归档时返回空
func (s *Service) History(ctx context.Context, limit int) ([]storage.Exchange, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.Recent(ctx, limit)
}
