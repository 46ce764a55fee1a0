// internal/api/websocket.go
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该进行更严格的检查
		return true
	},
}

// StreamEvent 推送给前端的流式生成事件
type StreamEvent struct {
	Type        string `json:"type"`
	Stage       string `json:"stage"`
	Delta       string `json:"delta,omitempty"`
	Accumulated string `json:"accumulated,omitempty"`
	Current     int    `json:"current,omitempty"`
	Total       int    `json:"total,omitempty"`
	Error       string `json:"error,omitempty"`
	Done        bool   `json:"done,omitempty"`
}

// streamClient 单个WebSocket连接
type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// StreamHub 管理所有订阅流式事件的连接
// 单会话应用，所有连接收到同一份事件流
type StreamHub struct {
	mu      sync.RWMutex
	clients map[*streamClient]struct{}
}

// NewStreamHub 创建流式事件分发器
func NewStreamHub() *StreamHub {
	return &StreamHub{
		clients: make(map[*streamClient]struct{}),
	}
}

// HandleWS 升级连接并接入分发器
func (h *StreamHub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket升级失败: %v", err)
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(client)
	go h.readLoop(client)
}

// Broadcast 向所有连接推送事件。发送缓冲已满的慢连接直接丢弃该事件，
// 流式预览允许丢帧，最终结果以HTTP响应为准。
func (h *StreamHub) Broadcast(event StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// ChunkRelay 返回可直接作为onChunk回调的推送函数
func (h *StreamHub) ChunkRelay(stage string) func(delta, accumulated string) {
	return func(delta, accumulated string) {
		h.Broadcast(StreamEvent{
			Type:        "chunk",
			Stage:       stage,
			Delta:       delta,
			Accumulated: accumulated,
		})
	}
}

func (h *StreamHub) remove(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[client]; exists {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *StreamHub) writeLoop(client *streamClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *StreamHub) readLoop(client *streamClient) {
	defer h.remove(client)

	client.conn.SetReadLimit(4096)
	client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// 客户端只订阅不发言，读循环用于感知断连
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
