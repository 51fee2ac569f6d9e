package services

import (
	"time"

	"keiba-odds-service/logger"
)

// JobCounter 调度器侧的任务计数
type JobCounter interface {
	ActiveJobCount() int
}

// StatsProvider 采集编排器侧的计数快照
type StatsProvider interface {
	Stats() CollectorStats
}

// PoolInspector 浏览器池的状态快照
type PoolInspector interface {
	Stats() map[string]interface{}
}

// StatusReporter 定期输出运行状态摘要，便于从日志一眼判断服务是否在干活
type StatusReporter struct {
	scheduler JobCounter
	collector StatsProvider
	pool      PoolInspector
	interval  time.Duration

	stopChan chan struct{}

	lastCollects int64
	lastQuotes   int64
}

func NewStatusReporter(scheduler JobCounter, collector StatsProvider, pool PoolInspector, interval time.Duration) *StatusReporter {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &StatusReporter{
		scheduler: scheduler,
		collector: collector,
		pool:      pool,
		interval:  interval,
		stopChan:  make(chan struct{}),
	}
}

// Start 启动定期报告
func (r *StatusReporter) Start() {
	logger.Printf("[StatusReporter] 🚀 Reporting every %v", r.interval)
	go r.run()
}

func (r *StatusReporter) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.report()
		case <-r.stopChan:
			return
		}
	}
}

// report 输出一行摘要：活动任务数、区间内采集/入库增量、累计失败与跳过、浏览器上下文数
func (r *StatusReporter) report() {
	stats := r.collector.Stats()
	collectsDelta := stats.CollectsTotal - r.lastCollects
	quotesDelta := stats.QuotesStored - r.lastQuotes
	r.lastCollects = stats.CollectsTotal
	r.lastQuotes = stats.QuotesStored

	tabs := 0
	if r.pool != nil {
		if v, ok := r.pool.Stats()["tabs_total"].(int); ok {
			tabs = v
		}
	}

	logger.Printf("[StatusReporter] 📊 jobs=%d collects=+%d quotes=+%d failed=%d skipped=%d tabs=%d",
		r.scheduler.ActiveJobCount(), collectsDelta, quotesDelta,
		stats.CollectsFailed, stats.MarketsSkipped, tabs)
}

// Stop 停止报告
func (r *StatusReporter) Stop() {
	close(r.stopChan)
	logger.Printf("[StatusReporter] 🛑 Stopped")
}
