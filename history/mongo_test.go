package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap/zaptest"
)

func TestMongoFilter(t *testing.T) {
	assert.Empty(t, mongoFilter(Query{}))
	assert.Equal(t, bson.D{{Key: "team", Value: "sales"}}, mongoFilter(Query{Team: "sales"}))
	assert.Equal(t,
		bson.D{{Key: "team", Value: "sales"}, {Key: "event_type", Value: "lead_created"}},
		mongoFilter(Query{Team: "sales", EventType: "lead_created"}))
}

func applyFind(t *testing.T, b *options.FindOptionsBuilder) options.FindOptions {
	t.Helper()
	var fo options.FindOptions
	for _, set := range b.List() {
		require.NoError(t, set(&fo))
	}
	return fo
}

func TestMongoFindOptions(t *testing.T) {
	tests := []struct {
		name      string
		q         Query
		wantLimit int64
		wantSkip  *int64
	}{
		{"defaults", Query{}, defaultLimit, nil},
		{"clamped", Query{Limit: 5000}, maxLimit, nil},
		{"offset", Query{Limit: 10, Offset: 20}, 10, ptr(int64(20))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fo := applyFind(t, mongoFindOptions(tt.q))
			require.NotNil(t, fo.Limit)
			assert.Equal(t, tt.wantLimit, *fo.Limit)
			assert.Equal(t, tt.wantSkip, fo.Skip)
			assert.Equal(t, bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}, fo.Sort)
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestMongoDoc_Record(t *testing.T) {
	now := time.Now().UTC()
	rec := mongoDoc{
		ID:        7,
		Team:      "sales",
		EventType: "lead_created",
		Payload:   `{"x":1}`,
		Result:    `{"status":"done"}`,
		CreatedAt: now,
	}.record()

	assert.Equal(t, uint64(7), rec.ID)
	assert.Equal(t, "sales", rec.Team)
	assert.Equal(t, "lead_created", rec.EventType)
	assert.Equal(t, now, rec.Timestamp)

	data, err := rec.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"team":"sales","event_type":"lead_created","timestamp":"`+
		now.Format(time.RFC3339Nano)+`","payload":{"x":1},"result":{"status":"done"}}`, string(data))
}

func TestNewMongoStore(t *testing.T) {
	_, err := NewMongoStore("mongodb://localhost:27017", "", zaptest.NewLogger(t))
	require.Error(t, err)

	_, err = NewMongoStore("bogus://nowhere", "teamflow", zaptest.NewLogger(t))
	require.Error(t, err)

	// 连接是惰性的，构造不需要可达的服务器
	s, err := NewMongoStore("mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=50", "teamflow", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, mongoCollection, s.events.Name())
	assert.Equal(t, mongoCounters, s.counters.Name())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, s.Ping(ctx))
	assert.NoError(t, s.Close(context.Background()))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultLimit, clampLimit(0))
	assert.Equal(t, defaultLimit, clampLimit(-3))
	assert.Equal(t, 25, clampLimit(25))
	assert.Equal(t, maxLimit, clampLimit(maxLimit+1))
}
