package activity

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const maxLineSize = 1 << 20

// Entry 活动日志中的一行
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id"`
	Summary   any       `json:"summary"`
	EventID   string    `json:"event_id,omitempty"`
}

// Logger 把活动记录以 JSONL 追加到文件，每行一个对象。
// 写入走 zap 的 JSON 编码器；Tail 直接读回文件。
type Logger struct {
	path string
	file *os.File
	out  *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewLogger opens (or creates) the JSONL file at path, creating parent
// directories as needed.
func NewLogger(path string) (*Logger, error) {
	if path == "" {
		return nil, errors.New("activity log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create activity log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open activity log: %w", err)
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(f), zapcore.InfoLevel)

	return &Logger{
		path: path,
		file: f,
		out:  zap.New(core),
	}, nil
}

// Path 返回日志文件路径
func (l *Logger) Path() string { return l.path }

// Log 追加一条记录；eventID 为空时省略该字段
func (l *Logger) Log(agentID string, summary any, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("activity log is closed")
	}

	fields := []zap.Field{
		zap.String("agent_id", agentID),
		zap.Any("summary", summary),
	}
	if eventID != "" {
		fields = append(fields, zap.String("event_id", eventID))
	}
	l.out.Info("", fields...)
	return nil
}

// Tail 返回最近 limit 条记录，旧的在前。文件不存在时返回空。
func (l *Logger) Tail(limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open activity log: %w", err)
	}
	defer f.Close()

	ring := make([][]byte, 0, limit)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if len(ring) == limit {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read activity log: %w", err)
	}

	entries := make([]Entry, 0, len(ring))
	for _, line := range ring {
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			// 截断的行直接跳过
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close 刷新并关闭文件
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	_ = l.out.Sync()
	return l.file.Close()
}
