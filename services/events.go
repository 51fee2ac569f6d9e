package services

import "time"

// CollectionEvent 一次成功入库的采集事件，推送给 WebSocket Hub 和 AMQP 发布器
type CollectionEvent struct {
	Type       string    `json:"type"`
	RaceID     int64     `json:"race_id"`
	BetType    string    `json:"bet_type"`
	QuoteCount int       `json:"quote_count"`
	CapturedAt time.Time `json:"captured_at"`
}

// EventSink 采集事件的消费端
type EventSink interface {
	PublishOdds(event CollectionEvent)
}
