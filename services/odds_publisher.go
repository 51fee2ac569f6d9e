package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"keiba-odds-service/logger"
)

const (
	oddsExchange   = "keiba.odds"
	oddsRoutingKey = "odds.collected"
)

// AMQPOddsPublisher 把采集事件发布到 AMQP exchange，供下游消费。
// 未配置 AMQP_URL 时处于禁用状态，PublishOdds 静默丢弃。
// 连接断开后按指数退避自动重连
type AMQPOddsPublisher struct {
	url     string
	enabled bool

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel

	done chan struct{}
}

func NewAMQPOddsPublisher(url string) *AMQPOddsPublisher {
	return &AMQPOddsPublisher{
		url:     url,
		enabled: url != "",
		done:    make(chan struct{}),
	}
}

// Start 建立连接并声明 exchange。禁用时直接返回
func (p *AMQPOddsPublisher) Start() error {
	if !p.enabled {
		logger.Println("[OddsPublisher] AMQP URL not configured, publisher disabled")
		return nil
	}

	if err := p.connect(); err != nil {
		return fmt.Errorf("initial connection failed: %w", err)
	}

	go p.monitorConnection()
	logger.Printf("[OddsPublisher] 🚀 Publishing to exchange %s", oddsExchange)
	return nil
}

func (p *AMQPOddsPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	// topic exchange：下游可按 routing key 过滤
	if err := channel.ExchangeDeclare(
		oddsExchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.channel = channel
	p.mu.Unlock()

	logger.Println("[OddsPublisher] ✅ Connected to AMQP server")
	return nil
}

// monitorConnection 监控连接状态并自动重连
func (p *AMQPOddsPublisher) monitorConnection() {
	delay := time.Second
	const maxDelay = 60 * time.Second

	for {
		p.mu.Lock()
		conn := p.conn
		p.mu.Unlock()
		if conn == nil {
			return
		}

		closeChan := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-p.done:
			return
		case err := <-closeChan:
			if err == nil {
				// 正常关闭
				return
			}
			logger.Errorf("[OddsPublisher] ⚠️  Connection lost: %v", err)
		}

		for {
			select {
			case <-p.done:
				return
			case <-time.After(delay):
			}

			logger.Printf("[OddsPublisher] 🔄 Reconnecting (delay %v)...", delay)
			if err := p.connect(); err != nil {
				logger.Errorf("[OddsPublisher] ❌ Reconnect failed: %v", err)
				delay *= 2
				if delay > maxDelay {
					delay = maxDelay
				}
				continue
			}
			delay = time.Second
			break
		}
	}
}

// PublishOdds 发布一条采集事件。禁用或断线时丢弃，不阻塞采集流程
func (p *AMQPOddsPublisher) PublishOdds(event CollectionEvent) {
	if !p.enabled {
		return
	}

	p.mu.Lock()
	channel := p.channel
	p.mu.Unlock()
	if channel == nil {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		logger.Errorf("[OddsPublisher] ❌ Failed to marshal event: %v", err)
		return
	}

	if err := channel.Publish(
		oddsExchange,
		oddsRoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	); err != nil {
		logger.Errorf("[OddsPublisher] ❌ Failed to publish event: %v", err)
	}
}

// Stop 关闭连接
func (p *AMQPOddsPublisher) Stop() {
	if !p.enabled {
		return
	}
	close(p.done)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	logger.Println("[OddsPublisher] 🛑 Stopped")
}
