package web

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"keiba-odds-service/logger"
	"keiba-odds-service/services"
)

// WSMessage WebSocket消息结构
type WSMessage struct {
	Type       string      `json:"type"`
	RaceID     int64       `json:"race_id,omitempty"`
	BetType    string      `json:"bet_type,omitempty"`
	QuoteCount int         `json:"quote_count,omitempty"`
	Timestamp  int64       `json:"timestamp,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

// Client WebSocket客户端
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// raceIDs 赛事ID过滤器，空表示全部接收。
	// readPump 写、Hub.Run 读，必须持锁访问
	mu      sync.Mutex
	raceIDs map[int64]bool
}

// Hub WebSocket Hub。采集事件经 PublishOdds 广播给所有已连接客户端
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *WSMessage
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub 创建新的Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *WSMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run 运行Hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Printf("[WebSocket] Client registered. Total clients: %d", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			logger.Printf("[WebSocket] Client unregistered. Total clients: %d", len(h.clients))

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if !client.shouldReceive(message) {
					continue
				}

				select {
				case client.send <- h.marshalMessage(message):
				default:
					h.mu.RUnlock()
					h.mu.Lock()
					close(client.send)
					delete(h.clients, client)
					h.mu.Unlock()
					h.mu.RLock()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// PublishOdds 把采集事件广播给客户端（实现services.EventSink接口）
func (h *Hub) PublishOdds(event services.CollectionEvent) {
	msg := &WSMessage{
		Type:       event.Type,
		RaceID:     event.RaceID,
		BetType:    event.BetType,
		QuoteCount: event.QuoteCount,
		Timestamp:  event.CapturedAt.Unix(),
	}

	select {
	case h.broadcast <- msg:
	default:
		// 广播队列满：丢弃，绝不阻塞采集流程
	}
}

// marshalMessage 序列化消息
func (h *Hub) marshalMessage(message *WSMessage) []byte {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Errorf("[WebSocket] Failed to marshal message: %v", err)
		return []byte("{}")
	}
	return data
}

// shouldReceive 检查客户端是否应该接收消息
func (c *Client) shouldReceive(message *WSMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 没有设置过滤器时接收所有消息
	if len(c.raceIDs) == 0 {
		return true
	}
	if message.RaceID == 0 {
		return true
	}
	return c.raceIDs[message.RaceID]
}

// readPump 读取客户端消息
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Errorf("[WebSocket] Read error: %v", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump 向客户端写入消息
func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
	}()

	for {
		message, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// handleMessage 处理客户端发送的消息（设置赛事过滤器）
func (c *Client) handleMessage(message []byte) {
	var msg struct {
		Type    string  `json:"type"`
		RaceIDs []int64 `json:"race_ids"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		logger.Errorf("[WebSocket] Failed to unmarshal client message: %v", err)
		return
	}

	switch msg.Type {
	case "subscribe":
		filters := make(map[int64]bool)
		for _, id := range msg.RaceIDs {
			filters[id] = true
		}
		c.mu.Lock()
		c.raceIDs = filters
		c.mu.Unlock()
		logger.Printf("[WebSocket] Client subscribed to %d race(s)", len(filters))

	case "unsubscribe":
		c.mu.Lock()
		c.raceIDs = make(map[int64]bool)
		c.mu.Unlock()
		logger.Println("[WebSocket] Client unsubscribed")
	}
}
