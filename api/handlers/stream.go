package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/BaSui01/teamflow/solution"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// =============================================================================
// 📡 团队消息流（WebSocket）
// =============================================================================

// StreamHandler 把团队订阅桥接到 WebSocket 连接。
// 每个连接持有一个订阅，连接断开即退订；服务端只写不读。
type StreamHandler struct {
	orch           *solution.Orchestrator
	logger         *zap.Logger
	originPatterns []string
	pingInterval   time.Duration
	writeTimeout   time.Duration
}

// StreamOption 配置 StreamHandler
type StreamOption func(*StreamHandler)

// WithOriginPatterns 允许的跨域来源，语义同 websocket.AcceptOptions
func WithOriginPatterns(patterns ...string) StreamOption {
	return func(h *StreamHandler) { h.originPatterns = patterns }
}

// WithPingInterval 空闲时的心跳间隔
func WithPingInterval(d time.Duration) StreamOption {
	return func(h *StreamHandler) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// NewStreamHandler 创建流处理器
func NewStreamHandler(orch *solution.Orchestrator, logger *zap.Logger, opts ...StreamOption) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &StreamHandler{
		orch:         orch,
		logger:       logger.With(zap.String("handler", "stream")),
		pingInterval: 30 * time.Second,
		writeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleStream 升级为 WebSocket 并推送团队的 activity/status 消息
// @Summary 订阅团队消息
// @Tags 事件
// @Param team path string true "团队名"
// @Success 101 "Switching Protocols"
// @Router /teams/{team}/stream [get]
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	teamName := r.PathValue("team")

	// 长连接不受服务器读写超时约束
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		// Accept 已写出错误响应
		h.logger.Warn("websocket accept failed", zap.String("team", teamName), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	sub := h.orch.Subscribe(teamName)
	defer h.orch.Unsubscribe(teamName, sub)

	h.logger.Debug("stream opened", zap.String("team", teamName))

	// 客户端发来的数据帧视为协议错误；CloseRead 同时负责处理 pong
	ctx := conn.CloseRead(r.Context())

	err = h.pump(ctx, conn, sub)
	switch {
	case err == nil, errors.Is(err, solution.ErrSubscriptionClosed):
		_ = conn.Close(websocket.StatusNormalClosure, "subscription closed")
	case errors.Is(err, context.Canceled), websocket.CloseStatus(err) != -1:
		// 客户端已断开
	default:
		h.logger.Warn("stream ended", zap.String("team", teamName), zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "stream error")
	}
	h.logger.Debug("stream closed", zap.String("team", teamName), zap.Int64("dropped", sub.Dropped()))
}

func (h *StreamHandler) pump(ctx context.Context, conn *websocket.Conn, sub *solution.Subscription) error {
	for {
		msg, ok, err := sub.Next(ctx, h.pingInterval)
		if err != nil {
			return err
		}

		wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
		if ok {
			err = wsjson.Write(wctx, conn, msg)
		} else {
			err = conn.Ping(wctx)
		}
		cancel()
		if err != nil {
			return err
		}
	}
}
