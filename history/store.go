package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/teamflow/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultLimit  = 50
	maxLimit      = 1000
	writeAttempts = 3
)

// Record 一次团队分发的持久化记录，对应 event_history 表
type Record struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Team      string    `gorm:"size:255;not null;index:idx_event_history_team_type" json:"team"`
	EventType string    `gorm:"size:255;not null;index:idx_event_history_team_type" json:"event_type"`
	Payload   string    `gorm:"type:text;not null" json:"-"`
	Result    string    `gorm:"type:text;not null" json:"-"`
	Timestamp time.Time `gorm:"column:created_at;not null;index:idx_event_history_created_at" json:"timestamp"`
}

// TableName 指定表名
func (Record) TableName() string { return "event_history" }

// MarshalJSON 把 payload 与 result 原样嵌入为 JSON 对象
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	return json.Marshal(struct {
		plain
		Payload json.RawMessage `json:"payload"`
		Result  json.RawMessage `json:"result"`
	}{plain(r), rawOrNull(r.Payload), rawOrNull(r.Result)})
}

func rawOrNull(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage("null")
	}
	return json.RawMessage(s)
}

// Query 历史查询条件，空字段不过滤
type Query struct {
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
	Team      string `json:"team,omitempty"`
	EventType string `json:"event_type,omitempty"`
}

// QueryObserver 接收查询耗时，metrics.Collector 实现了该接口
type QueryObserver interface {
	RecordDBQuery(operation string, duration time.Duration)
}

// Option 配置 Store
type Option func(*Store)

// WithObserver 设置查询耗时观察者
func WithObserver(o QueryObserver) Option {
	return func(s *Store) { s.observer = o }
}

// Store 基于 gorm 的事件历史存储
type Store struct {
	pool     *database.PoolManager
	observer QueryObserver
	logger   *zap.Logger
}

// NewStore creates a history store on top of an open pool.
func NewStore(pool *database.PoolManager, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		pool:   pool,
		logger: logger.With(zap.String("component", "history")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InsertEvent 写入一条分发记录；死锁等可重试错误按指数退避重试
func (s *Store) InsertEvent(ctx context.Context, team, eventType string, payload map[string]any, result any) error {
	defer s.observe("insert", time.Now())

	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	rec := Record{
		Team:      team,
		EventType: eventType,
		Payload:   string(payloadJSON),
		Result:    string(resultJSON),
		Timestamp: time.Now().UTC(),
	}
	err = s.pool.WithTransactionRetry(ctx, writeAttempts, func(tx *gorm.DB) error {
		return tx.Create(&rec).Error
	})
	if err != nil {
		return fmt.Errorf("insert history for team %s: %w", team, err)
	}

	s.logger.Debug("history recorded",
		zap.Uint64("id", rec.ID),
		zap.String("team", team),
		zap.String("event_type", eventType))
	return nil
}

// FetchHistory 按时间倒序返回记录
func (s *Store) FetchHistory(ctx context.Context, q Query) ([]Record, error) {
	defer s.observe("fetch", time.Now())

	limit := clampLimit(q.Limit)

	db := s.pool.DB().WithContext(ctx).Model(&Record{})
	if q.Team != "" {
		db = db.Where("team = ?", q.Team)
	}
	if q.EventType != "" {
		db = db.Where("event_type = ?", q.EventType)
	}
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}

	var records []Record
	if err := db.Order("created_at DESC, id DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return records, nil
}

// AutoMigrate 用 gorm 建表，供未执行迁移的 SQLite 部署与测试使用
func (s *Store) AutoMigrate(ctx context.Context) error {
	return s.pool.DB().WithContext(ctx).AutoMigrate(&Record{})
}

func (s *Store) observe(op string, start time.Time) {
	if s.observer != nil {
		s.observer.RecordDBQuery(op, time.Since(start))
	}
}
