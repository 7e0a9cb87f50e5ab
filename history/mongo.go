package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"
)

const (
	mongoCollection = "event_history"
	mongoCounters   = "counters"
)

// mongoDoc event_history 集合中的文档；id 来自 counters 集合的自增序列，
// 与 SQL 存储的自增主键保持同样的排序语义
type mongoDoc struct {
	ID        uint64    `bson:"_id"`
	Team      string    `bson:"team"`
	EventType string    `bson:"event_type"`
	Payload   string    `bson:"payload"`
	Result    string    `bson:"result"`
	CreatedAt time.Time `bson:"created_at"`
}

func (d mongoDoc) record() Record {
	return Record{
		ID:        d.ID,
		Team:      d.Team,
		EventType: d.EventType,
		Payload:   d.Payload,
		Result:    d.Result,
		Timestamp: d.CreatedAt,
	}
}

// MongoStore 基于 MongoDB 的事件历史存储
type MongoStore struct {
	client   *mongo.Client
	events   *mongo.Collection
	counters *mongo.Collection
	observer QueryObserver
	logger   *zap.Logger
}

// MongoOption 配置 MongoStore
type MongoOption func(*MongoStore)

// WithMongoObserver 设置查询耗时观察者
func WithMongoObserver(o QueryObserver) MongoOption {
	return func(s *MongoStore) { s.observer = o }
}

// NewMongoStore 连接 uri 并使用 database 库。连接是惰性的，Ping 用于探活。
func NewMongoStore(uri, database string, logger *zap.Logger, opts ...MongoOption) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if database == "" {
		return nil, fmt.Errorf("mongodb history store requires a database name")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		events:   db.Collection(mongoCollection),
		counters: db.Collection(mongoCounters),
		logger:   logger.With(zap.String("component", "history"), zap.String("backend", "mongodb")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureIndexes 创建与 SQL 迁移等价的索引
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "team", Value: 1}, {Key: "event_type", Value: 1}},
			Options: options.Index().SetName("idx_event_history_team_type"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_event_history_created_at"),
		},
	})
	if err != nil {
		return fmt.Errorf("create history indexes: %w", err)
	}
	return nil
}

// InsertEvent 写入一条分发记录
func (s *MongoStore) InsertEvent(ctx context.Context, team, eventType string, payload map[string]any, result any) error {
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

	id, err := s.nextID(ctx)
	if err != nil {
		return fmt.Errorf("insert history for team %s: %w", team, err)
	}
	doc := mongoDoc{
		ID:        id,
		Team:      team,
		EventType: eventType,
		Payload:   string(payloadJSON),
		Result:    string(resultJSON),
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.events.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert history for team %s: %w", team, err)
	}

	s.logger.Debug("history recorded",
		zap.Uint64("id", id),
		zap.String("team", team),
		zap.String("event_type", eventType))
	return nil
}

// nextID 原子递增 counters 中的序列
func (s *MongoStore) nextID(ctx context.Context) (uint64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: mongoCollection}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next history id: %w", err)
	}
	return uint64(counter.Seq), nil
}

// FetchHistory 按时间倒序返回记录
func (s *MongoStore) FetchHistory(ctx context.Context, q Query) ([]Record, error) {
	defer s.observe("fetch", time.Now())

	cursor, err := s.events.Find(ctx, mongoFilter(q), mongoFindOptions(q))
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	var docs []mongoDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	records := make([]Record, 0, len(docs))
	for _, d := range docs {
		records = append(records, d.record())
	}
	return records, nil
}

// Ping 探活
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close 断开连接
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) observe(op string, start time.Time) {
	if s.observer != nil {
		s.observer.RecordDBQuery(op, time.Since(start))
	}
}

func mongoFilter(q Query) bson.D {
	filter := bson.D{}
	if q.Team != "" {
		filter = append(filter, bson.E{Key: "team", Value: q.Team})
	}
	if q.EventType != "" {
		filter = append(filter, bson.E{Key: "event_type", Value: q.EventType})
	}
	return filter
}

func mongoFindOptions(q Query) *options.FindOptionsBuilder {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(clampLimit(q.Limit)))
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}
	return opts
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return min(limit, maxLimit)
}
