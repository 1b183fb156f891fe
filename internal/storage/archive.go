package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"mockrelay/internal/ctxkeys"
	ilog "mockrelay/internal/logger"
	"mockrelay/pkg/domain"
	"mockrelay/pkg/traffic"
)

// Exchange 一次观测到的调用/响应交换
type Exchange struct {
	ID              uint   `gorm:"primaryKey"`
	CorrelationID   string `gorm:"index;size:64"`
	Session         string `gorm:"index;size:64"`
	Method          string `gorm:"size:16"`
	URL             string
	RequestHeaders  string // JSON 形式的有序头部
	RequestBody     []byte
	Status          int
	StatusText      string
	ResponseHeaders string
	ResponseBody    []byte
	Synthetic       bool
	NetworkError    bool
	InterceptedAt   time.Time `gorm:"index"`
	CreatedAt       time.Time
}

// Store 流量归档，sqlite 落盘
type Store struct {
	db  *gorm.DB
	log ilog.Logger
}

// Open 打开归档数据库并自动迁移
func Open(dsn, prefix string, l ilog.Logger) (*Store, error) {
	if l == nil {
		l = ilog.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Exchange{}); err != nil {
		return nil, err
	}
	return &Store{db: db, log: l}, nil
}

// Append 归档一次交换，实现 relay.Archive
func (s *Store) Append(ctx context.Context, session domain.SessionID, env domain.Envelope, resp *traffic.Response) error {
	row := &Exchange{
		CorrelationID: string(env.CorrelationID),
		Session:       string(session),
		InterceptedAt: env.InterceptedAt,
	}
	if req := env.Request; req != nil {
		row.Method = req.Method
		row.URL = req.URL
		row.RequestBody = req.Body
		if h, err := json.Marshal(req.Headers); err == nil {
			row.RequestHeaders = string(h)
		}
	}
	if resp == nil {
		row.NetworkError = true
	} else {
		row.Status = resp.Status
		row.StatusText = resp.StatusText
		row.ResponseBody = resp.Body
		row.Synthetic = resp.Synthetic
		if h, err := json.Marshal(resp.Headers); err == nil {
			row.ResponseHeaders = string(h)
		}
	}

	ctx = context.WithValue(ctx, ctxkeys.CorrelationIDKey{}, string(env.CorrelationID))
	return s.db.WithContext(ctx).Create(row).Error
}

// Recent 按拦截时间倒序返回最近的交换记录
func (s *Store) Recent(ctx context.Context, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []Exchange
	err := s.db.WithContext(ctx).
		Order("intercepted_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// BySession 返回指定会话的交换记录
func (s *Store) BySession(ctx context.Context, session domain.SessionID, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []Exchange
	err := s.db.WithContext(ctx).
		Where("session = ?", string(session)).
		Order("intercepted_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Close 关闭底层连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
