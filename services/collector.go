package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"keiba-odds-service/logger"
	"keiba-odds-service/models"
	"keiba-odds-service/scraper"
)

const (
	marketRetryAttempts = 3
	marketRetryBackoff  = 5 * time.Second
)

// CollectorStats 采集编排器的累计计数
type CollectorStats struct {
	CollectsTotal  int64 `json:"collects_total"`
	CollectsFailed int64 `json:"collects_failed"`
	QuotesStored   int64 `json:"quotes_stored"`
	MarketsSkipped int64 `json:"markets_skipped"`
}

// OddsCollectionOrchestrator 一次完整采集的编排：按固定顺序遍历7个玩法，
// 逐玩法抓取、解析、入库。并发采集数由信号量限制，超出的调用排队等待。
// 单玩法失败重试3次；页面超时视为该赛事不开放此玩法，跳过继续
type OddsCollectionOrchestrator struct {
	store   RaceStore
	odds    OddsWriter
	scraper MarketScraper
	sinks   []EventSink

	sem *semaphore.Weighted

	// backoff 可替换，测试时去掉真实等待
	backoff func(attempt int)

	collectsTotal  atomic.Int64
	collectsFailed atomic.Int64
	quotesStored   atomic.Int64
	marketsSkipped atomic.Int64
}

func NewOddsCollectionOrchestrator(store RaceStore, odds OddsWriter, market MarketScraper, maxConcurrent int, sinks ...EventSink) *OddsCollectionOrchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	return &OddsCollectionOrchestrator{
		store:   store,
		odds:    odds,
		scraper: market,
		sinks:   sinks,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		backoff: func(attempt int) { time.Sleep(marketRetryBackoff) },
	}
}

// CollectOdds 采集指定赛事全部玩法的赔率。
// 发走时刻已过的赛事做最后一轮采集后标记 done
func (o *OddsCollectionOrchestrator) CollectOdds(ctx context.Context, raceID int64) error {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire collect slot: %w", err)
	}
	defer o.sem.Release(1)

	o.collectsTotal.Add(1)

	race, err := o.store.FindRaceByID(raceID)
	if err != nil {
		o.collectsFailed.Add(1)
		return fmt.Errorf("failed to load race %d: %w", raceID, err)
	}
	// 赛事不存在或已终了：静默跳过。缺行不是故障，不值得触发恢复例程
	if race == nil {
		logger.Printf("[Collector] ⚠️  Race %d not found, skipping", raceID)
		return nil
	}
	if race.Status == models.RaceStatusDone {
		logger.Printf("[Collector] Race %d already done, skipping", raceID)
		return nil
	}

	terminal := !race.StartTime.After(time.Now())

	logger.Printf("[Collector] 🔄 Collecting race %d (%s, terminal=%v)", raceID, race.Name, terminal)

	var firstErr error
	stored := 0
	for _, betType := range models.AllBetTypes {
		n, err := o.collectMarket(ctx, raceID, betType)
		if err != nil {
			if errors.Is(err, scraper.ErrPageTimeout) {
				// 页面打不开：该赛事不开放此玩法，跳过
				o.marketsSkipped.Add(1)
				logger.Printf("[Collector] ⚠️  Race %d %s: page timed out, skipping market", raceID, betType)
				continue
			}
			logger.Errorf("[Collector] ❌ Race %d %s: %v", raceID, betType, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stored += n
	}

	if terminal {
		if err := o.store.UpdateRaceStatus(raceID, models.RaceStatusDone); err != nil {
			logger.Errorf("[Collector] ❌ Failed to mark race %d done: %v", raceID, err)
			if firstErr == nil {
				firstErr = err
			}
		} else {
			logger.Printf("[Collector] 🏁 Race %d marked done after final collection", raceID)
		}
	}

	if firstErr != nil {
		o.collectsFailed.Add(1)
		return firstErr
	}
	logger.Printf("[Collector] ✅ Race %d: stored %d quote(s)", raceID, stored)
	return nil
}

// collectMarket 单玩法采集：抓取重试3次，成功后入库并广播事件
func (o *OddsCollectionOrchestrator) collectMarket(ctx context.Context, raceID int64, betType models.BetType) (int, error) {
	var quotes []models.OddsQuote
	var err error
	for attempt := 1; attempt <= marketRetryAttempts; attempt++ {
		quotes, err = o.scraper.ScrapeMarket(ctx, raceID, betType)
		if err == nil {
			break
		}
		if errors.Is(err, scraper.ErrPageTimeout) || errors.Is(err, context.Canceled) {
			return 0, err
		}
		if attempt < marketRetryAttempts {
			logger.Printf("[Collector] 🔄 Race %d %s: attempt %d/%d failed: %v",
				raceID, betType, attempt, marketRetryAttempts, err)
			o.backoff(attempt)
		}
	}
	if err != nil {
		return 0, fmt.Errorf("scrape failed after %d attempts: %w", marketRetryAttempts, err)
	}

	stored := 0
	capturedAt := time.Time{}
	for _, quote := range quotes {
		if err := o.storeQuote(quote); err != nil {
			logger.Errorf("[Collector] ❌ Race %d %s: failed to store quote: %v", raceID, betType, err)
			continue
		}
		stored++
		capturedAt = quote.CapturedAt
	}
	o.quotesStored.Add(int64(stored))

	if stored > 0 {
		event := CollectionEvent{
			Type:       "odds_collected",
			RaceID:     raceID,
			BetType:    string(betType),
			QuoteCount: stored,
			CapturedAt: capturedAt,
		}
		for _, sink := range o.sinks {
			sink.PublishOdds(event)
		}
	}
	return stored, nil
}

// storeQuote 按玩法路由入库。単勝走追加历史表，其余玩法按组合键 upsert
func (o *OddsCollectionOrchestrator) storeQuote(q models.OddsQuote) error {
	switch q.BetType {
	case models.BetTypeWinPlace:
		return o.storeWinPlace(q)
	case models.BetTypeWakuren:
		return o.odds.UpsertWakurenOdds(q.RaceID, q.Numbers[0], q.Numbers[1], q.Odds, q.CapturedAt)
	case models.BetTypeUmaren:
		return o.odds.UpsertUmarenOdds(q.RaceID, q.Numbers[0], q.Numbers[1], q.Odds, q.CapturedAt)
	case models.BetTypeUmatan:
		return o.odds.UpsertUmatanOdds(q.RaceID, q.Numbers[0], q.Numbers[1], q.Odds, q.CapturedAt)
	case models.BetTypeWide:
		return o.odds.UpsertWideOdds(q.RaceID, q.Numbers[0], q.Numbers[1], q.OddsMin, q.OddsMax, q.CapturedAt)
	case models.BetTypeSanrenpuku:
		return o.odds.UpsertSanrenpukuOdds(q.RaceID, q.Numbers[0], q.Numbers[1], q.Numbers[2], q.Odds, q.CapturedAt)
	case models.BetTypeSanrentan:
		return o.odds.UpsertSanrentanOdds(q.RaceID, q.Numbers[0], q.Numbers[1], q.Numbers[2], q.Odds, q.CapturedAt)
	default:
		return fmt.Errorf("unknown bet type: %s", q.BetType)
	}
}

// storeWinPlace 単勝・複勝：先解决马匹ID（不存在则登记），
// 単勝追加到历史表，複勝区间 upsert
func (o *OddsCollectionOrchestrator) storeWinPlace(q models.OddsQuote) error {
	horse, err := o.store.FindHorse(q.HorseName, q.RaceID)
	if err != nil {
		return err
	}
	var horseID int64
	if horse != nil {
		horseID = horse.ID
	} else {
		number := 0
		if len(q.Numbers) > 0 {
			number = q.Numbers[0]
		}
		horseID, err = o.store.InsertHorse(q.RaceID, number, q.HorseName)
		if err != nil {
			return err
		}
	}

	if q.Odds > 0 {
		if err := o.odds.AppendWinOdds(q.RaceID, horseID, q.Odds, q.CapturedAt); err != nil {
			return err
		}
	}
	if q.OddsMax > 0 {
		if err := o.odds.UpsertPlaceOdds(q.RaceID, horseID, q.OddsMin, q.OddsMax, q.CapturedAt); err != nil {
			return err
		}
	}
	return nil
}

// Stats 计数快照
func (o *OddsCollectionOrchestrator) Stats() CollectorStats {
	return CollectorStats{
		CollectsTotal:  o.collectsTotal.Load(),
		CollectsFailed: o.collectsFailed.Load(),
		QuotesStored:   o.quotesStored.Load(),
		MarketsSkipped: o.marketsSkipped.Load(),
	}
}
