package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mockrelay/internal/config"
	"mockrelay/internal/logger"
	"mockrelay/pkg/api"
)

// main 是代理进程入口
func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "配置文件路径 (默认 ./mockrelay.yaml)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level:   cfg.Log.Level,
		Writers: cfg.Log.Writer,
		File:    cfg.Log.File,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := api.NewService(cfg, log)
	if err := svc.Start(ctx); err != nil {
		log.Err(err, "启动失败")
		os.Exit(1)
	}

	go func() {
		for evt := range svc.Events() {
			log.Debug("事件", "type", evt.Type, "method", evt.Method, "url", evt.URL, "status", evt.Status)
		}
	}()

	<-ctx.Done()
	log.Info("收到退出信号，开始关停")
	if err := svc.Stop(); err != nil {
		log.Err(err, "关停异常")
	}
}
