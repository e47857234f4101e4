package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"paysync/internal/pkg/logger"
	"paysync/internal/service/payment/domain/port"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 运维内网使用，放开跨域
		return true
	},
}

// StatusStreamHub 维护所有活跃的运维端 WebSocket 连接，
// 把订单状态变更实时广播出去。它实现了 port.StatusPublisher。
type StatusStreamHub struct {
	clients    map[*streamClient]struct{}
	register   chan *streamClient
	unregister chan *streamClient
	broadcast  chan port.StatusChange
	lock       sync.RWMutex
}

func NewStatusStreamHub() *StatusStreamHub {
	return &StatusStreamHub{
		clients:    make(map[*streamClient]struct{}),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		broadcast:  make(chan port.StatusChange, 64),
	}
}

// Run 是 Hub 的主循环，随服务启动后在独立 goroutine 运行。
func (h *StatusStreamHub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			h.clients[client] = struct{}{}
			h.lock.Unlock()
		case client := <-h.unregister:
			h.lock.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.lock.Unlock()
		case change := <-h.broadcast:
			payload, err := json.Marshal(change)
			if err != nil {
				continue
			}
			h.lock.RLock()
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					// 慢消费者直接丢消息，状态流只保证最新不保证完整
				}
			}
			h.lock.RUnlock()
		case <-ctx.Done():
			return
		}
	}
}

// PublishStatusChange 实现 port.StatusPublisher。
// 广播队列满时丢弃：状态流是旁路通知，不能反压对账主流程。
func (h *StatusStreamHub) PublishStatusChange(ctx context.Context, change port.StatusChange) {
	select {
	case h.broadcast <- change:
	default:
		logger.Ctx(ctx).Warn().
			Str("order_number", change.OrderNumber).
			Msg("status stream backlog full, dropping change notification")
	}
}

// ServeWS 把 HTTP 连接升级为 WebSocket 并注册到 Hub。
func (h *StatusStreamHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &streamClient{hub: h, conn: conn, send: make(chan []byte, 16)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

type streamClient struct {
	hub  *StatusStreamHub
	conn *websocket.Conn
	send chan []byte
}

func (c *streamClient) writePump() {
	defer c.conn.Close()
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// readPump 只负责感知连接关闭，客户端消息一律忽略。
func (c *streamClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
