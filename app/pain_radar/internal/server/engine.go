package server

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/engine"
	prLogger "github.com/iWorld-y/pain_radar/app/pain_radar/pkg/logger"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/storage"
)

// NewStore 未配置数据库时返回 nil，结果不落库
func NewStore(c *config.Config, logger log.Logger) (storage.Store, func(), error) {
	helper := log.NewHelper(logger)
	if !c.DB.Enabled() {
		helper.Warn("database not configured, results will not be persisted")
		return nil, func() {}, nil
	}
	store, err := storage.NewStorage(context.Background(), c.DB)
	if err != nil {
		helper.Errorf("Failed to init storage: %v", err)
		return nil, nil, err
	}
	cleanup := func() {
		helper.Info("closing result storage")
		if err := store.Close(); err != nil {
			helper.Errorf("close storage: %v", err)
		}
	}
	return store, cleanup, nil
}

// NewEngine 初始化流水线日志与引擎
func NewEngine(c *config.Config, store storage.Store, logger log.Logger) (*engine.Engine, error) {
	if err := prLogger.InitLogger(c.Log.Level, c.Log.File); err != nil {
		log.NewHelper(logger).Errorf("Failed to init pipeline logger: %v", err)
		_ = prLogger.InitLogger("info", "") // 降级处理
	}
	eng, err := engine.NewEngine(context.Background(), c, store)
	if err != nil {
		log.NewHelper(logger).Errorf("Failed to init engine: %v", err)
		return nil, err
	}
	return eng, nil
}
