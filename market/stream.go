package market

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"treasury-terminal/infrastructure/logger"
	"treasury-terminal/infrastructure/monitor"
	"treasury-terminal/instrument"
)

const (
	streamWriteWait  = 5 * time.Second
	streamPongWait   = 30 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// StreamQuote 推送给客户端的快照，附带市场惯例的展示价。
type StreamQuote struct {
	Quote
	Display string `json:"display"`
}

// StreamHandler 通过 websocket 推送行情，?symbol=10Y,5Y 可过滤品种。
type StreamHandler struct {
	svc      *Service
	reg      *instrument.Registry
	log      *logger.Logger
	mon      *monitor.Monitor
	upgrader websocket.Upgrader
}

func NewStreamHandler(svc *Service, reg *instrument.Registry, log *logger.Logger, mon *monitor.Monitor) *StreamHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &StreamHandler{
		svc: svc,
		reg: reg,
		log: log.Named("stream"),
		mon: mon,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Render 过滤并附加展示价。
func (h *StreamHandler) Render(b Batch, filter map[string]bool) map[string]StreamQuote {
	out := make(map[string]StreamQuote, len(b))
	for id, q := range b {
		if len(filter) > 0 && !filter[id] {
			continue
		}
		out[id] = StreamQuote{Quote: q, Display: h.reg.Format(q.Mid, id)}
	}
	return out
}

func parseFilter(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	filter := make(map[string]bool)
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			filter[s] = true
		}
	}
	return filter
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.mon.StreamClientConnected()
	defer h.mon.StreamClientDisconnected()

	filter := parseFilter(r.URL.Query().Get("symbol"))
	updates, cancel := h.svc.Publisher().Subscribe()
	defer cancel()

	// 读循环只处理 pong 与关闭
	closed := make(chan struct{})
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(b Batch) error {
		payload, err := json.Marshal(h.Render(b, filter))
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		return conn.WriteMessage(websocket.TextMessage, payload)
	}

	if latest := h.svc.Latest(); len(latest) > 0 {
		if err := send(latest); err != nil {
			return
		}
	}

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case b, ok := <-updates:
			if !ok {
				return
			}
			if err := send(b); err != nil {
				h.log.Debug("stream client write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
