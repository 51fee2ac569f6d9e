package web

import (
	"sync"
	"testing"
)

func TestClientFilterBehavior(t *testing.T) {
	c := &Client{raceIDs: make(map[int64]bool)}
	msg := &WSMessage{Type: "odds_collected", RaceID: 202644030511}
	other := &WSMessage{Type: "odds_collected", RaceID: 202644030512}

	// 无过滤器：全部接收
	if !c.shouldReceive(msg) {
		t.Error("No filter: expected receive")
	}

	c.handleMessage([]byte(`{"type":"subscribe","race_ids":[202644030511]}`))
	if !c.shouldReceive(msg) {
		t.Error("Subscribed race: expected receive")
	}
	if c.shouldReceive(other) {
		t.Error("Unsubscribed race: expected filtered out")
	}
	// 无赛事ID的系统消息不受过滤器影响
	if !c.shouldReceive(&WSMessage{Type: "connected"}) {
		t.Error("System message: expected receive")
	}

	c.handleMessage([]byte(`{"type":"unsubscribe"}`))
	if !c.shouldReceive(other) {
		t.Error("After unsubscribe: expected receive")
	}
}

func TestClientFilterConcurrentAccess(t *testing.T) {
	c := &Client{raceIDs: make(map[int64]bool)}
	msg := &WSMessage{Type: "odds_collected", RaceID: 202644030511}

	// 订阅变更（readPump侧）与广播过滤（Hub侧）并发进行
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			c.handleMessage([]byte(`{"type":"subscribe","race_ids":[202644030511,202644030512]}`))
			c.handleMessage([]byte(`{"type":"unsubscribe"}`))
		}
		close(stop)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				c.shouldReceive(msg)
			}
		}
	}()

	wg.Wait()
}
