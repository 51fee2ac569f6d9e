package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"keiba-odds-service/models"
	"keiba-odds-service/scraper"
)

// fakeMarketScraper 按玩法返回预置结果
type fakeMarketScraper struct {
	mu       sync.Mutex
	quotes   map[models.BetType][]models.OddsQuote
	errs     map[models.BetType]error
	failures map[models.BetType]int // 前N次调用返回临时错误
	attempts map[models.BetType]int
}

func newFakeMarketScraper() *fakeMarketScraper {
	return &fakeMarketScraper{
		quotes:   make(map[models.BetType][]models.OddsQuote),
		errs:     make(map[models.BetType]error),
		failures: make(map[models.BetType]int),
		attempts: make(map[models.BetType]int),
	}
}

func (f *fakeMarketScraper) ScrapeMarket(ctx context.Context, raceID int64, betType models.BetType) ([]models.OddsQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[betType]++
	if err, ok := f.errs[betType]; ok {
		return nil, err
	}
	if f.failures[betType] > 0 {
		f.failures[betType]--
		return nil, errors.New("transient scrape error")
	}
	return f.quotes[betType], nil
}

func (f *fakeMarketScraper) attemptCount(betType models.BetType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[betType]
}

// fakeOddsWriter 记录各路由的写入次数
type fakeOddsWriter struct {
	mu         sync.Mutex
	winAppends int
	placeRows  int
	pairRows   map[models.BetType]int
	tripleRows map[models.BetType]int
	wideRows   int
}

func newFakeOddsWriter() *fakeOddsWriter {
	return &fakeOddsWriter{
		pairRows:   make(map[models.BetType]int),
		tripleRows: make(map[models.BetType]int),
	}
}

func (f *fakeOddsWriter) AppendWinOdds(raceID, horseID int64, odds float64, capturedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.winAppends++
	return nil
}

func (f *fakeOddsWriter) UpsertPlaceOdds(raceID, horseID int64, oddsMin, oddsMax float64, capturedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placeRows++
	return nil
}

func (f *fakeOddsWriter) UpsertWakurenOdds(raceID int64, frame1, frame2 int, odds float64, capturedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pairRows[models.BetTypeWakuren]++
	return nil
}

func (f *fakeOddsWriter) UpsertUmarenOdds(raceID int64, horse1, horse2 int, odds float64, capturedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pairRows[models.BetTypeUmaren]++
	return nil
}

func (f *fakeOddsWriter) UpsertUmatanOdds(raceID int64, firstHorse, secondHorse int, odds float64, capturedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pairRows[models.BetTypeUmatan]++
	return nil
}

func (f *fakeOddsWriter) UpsertWideOdds(raceID int64, horse1, horse2 int, oddsMin, oddsMax float64, capturedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wideRows++
	return nil
}

func (f *fakeOddsWriter) UpsertSanrenpukuOdds(raceID int64, horse1, horse2, horse3 int, odds float64, capturedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tripleRows[models.BetTypeSanrenpuku]++
	return nil
}

func (f *fakeOddsWriter) UpsertSanrentanOdds(raceID int64, firstHorse, secondHorse, thirdHorse int, odds float64, capturedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tripleRows[models.BetTypeSanrentan]++
	return nil
}

// recordingSink 收集广播事件
type recordingSink struct {
	mu     sync.Mutex
	events []CollectionEvent
}

func (r *recordingSink) PublishOdds(event CollectionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func noBackoff(o *OddsCollectionOrchestrator) *OddsCollectionOrchestrator {
	o.backoff = func(int) {}
	return o
}

func seedAllMarkets(market *fakeMarketScraper, raceID int64) {
	now := time.Now().UTC()
	market.quotes[models.BetTypeWinPlace] = []models.OddsQuote{
		{RaceID: raceID, BetType: models.BetTypeWinPlace, HorseName: "カサマツキング", Numbers: []int{1}, Odds: 2.4, OddsMin: 1.1, OddsMax: 1.5, CapturedAt: now},
		{RaceID: raceID, BetType: models.BetTypeWinPlace, HorseName: "オグリホマレ", Numbers: []int{2}, Odds: 5.8, OddsMin: 1.8, OddsMax: 2.9, CapturedAt: now},
	}
	market.quotes[models.BetTypeWakuren] = []models.OddsQuote{
		{RaceID: raceID, BetType: models.BetTypeWakuren, Numbers: []int{1, 2}, Odds: 8.3, CapturedAt: now},
	}
	market.quotes[models.BetTypeUmaren] = []models.OddsQuote{
		{RaceID: raceID, BetType: models.BetTypeUmaren, Numbers: []int{2, 1}, Odds: 10.1, CapturedAt: now},
	}
	market.quotes[models.BetTypeUmatan] = []models.OddsQuote{
		{RaceID: raceID, BetType: models.BetTypeUmatan, Numbers: []int{2, 1}, Odds: 18.7, CapturedAt: now},
	}
	market.quotes[models.BetTypeWide] = []models.OddsQuote{
		{RaceID: raceID, BetType: models.BetTypeWide, Numbers: []int{1, 3}, OddsMin: 2.1, OddsMax: 3.4, CapturedAt: now},
	}
	market.quotes[models.BetTypeSanrenpuku] = []models.OddsQuote{
		{RaceID: raceID, BetType: models.BetTypeSanrenpuku, Numbers: []int{1, 2, 3}, Odds: 45.0, CapturedAt: now},
	}
	market.quotes[models.BetTypeSanrentan] = []models.OddsQuote{
		{RaceID: raceID, BetType: models.BetTypeSanrentan, Numbers: []int{2, 1, 3}, Odds: 120.5, CapturedAt: now},
	}
}

func TestCollectOddsRoutesAllMarkets(t *testing.T) {
	raceID := int64(2026360110_01)
	store := newFakeRaceStore()
	store.InsertRace(raceID, "帝王賞", "大井", time.Now().Add(time.Hour))
	writer := newFakeOddsWriter()
	market := newFakeMarketScraper()
	seedAllMarkets(market, raceID)
	sink := &recordingSink{}

	orch := noBackoff(NewOddsCollectionOrchestrator(store, writer, market, 3, sink))
	if err := orch.CollectOdds(context.Background(), raceID); err != nil {
		t.Fatalf("CollectOdds failed: %v", err)
	}

	if writer.winAppends != 2 {
		t.Errorf("Expected 2 win appends, got %d", writer.winAppends)
	}
	if writer.placeRows != 2 {
		t.Errorf("Expected 2 place upserts, got %d", writer.placeRows)
	}
	if writer.pairRows[models.BetTypeWakuren] != 1 || writer.pairRows[models.BetTypeUmaren] != 1 || writer.pairRows[models.BetTypeUmatan] != 1 {
		t.Errorf("Unexpected pair upserts: %v", writer.pairRows)
	}
	if writer.wideRows != 1 {
		t.Errorf("Expected 1 wide upsert, got %d", writer.wideRows)
	}
	if writer.tripleRows[models.BetTypeSanrenpuku] != 1 || writer.tripleRows[models.BetTypeSanrentan] != 1 {
		t.Errorf("Unexpected triple upserts: %v", writer.tripleRows)
	}
	// 7玩法各1条事件
	if sink.count() != 7 {
		t.Errorf("Expected 7 events, got %d", sink.count())
	}

	stats := orch.Stats()
	if stats.QuotesStored != 8 {
		t.Errorf("Expected 8 quotes stored, got %d", stats.QuotesStored)
	}
	if stats.CollectsTotal != 1 || stats.CollectsFailed != 0 {
		t.Errorf("Unexpected collect counters: %+v", stats)
	}
}

func TestCollectOddsSkipsTimedOutMarket(t *testing.T) {
	raceID := int64(2026360110_02)
	store := newFakeRaceStore()
	store.InsertRace(raceID, "一般戦", "笠松", time.Now().Add(time.Hour))
	market := newFakeMarketScraper()
	seedAllMarkets(market, raceID)
	// 枠連页面打不开：少头数赛事不开放此玩法
	market.errs[models.BetTypeWakuren] = scraper.ErrPageTimeout

	orch := noBackoff(NewOddsCollectionOrchestrator(store, newFakeOddsWriter(), market, 3))
	if err := orch.CollectOdds(context.Background(), raceID); err != nil {
		t.Fatalf("Timeout should not fail the whole collection: %v", err)
	}

	stats := orch.Stats()
	if stats.MarketsSkipped != 1 {
		t.Errorf("Expected 1 skipped market, got %d", stats.MarketsSkipped)
	}
	// 超时不重试
	if got := market.attemptCount(models.BetTypeWakuren); got != 1 {
		t.Errorf("Expected 1 attempt on timed-out market, got %d", got)
	}
	// 后续玩法照常采集
	if got := market.attemptCount(models.BetTypeSanrentan); got != 1 {
		t.Errorf("Expected remaining markets collected, sanrentan attempts=%d", got)
	}
}

func TestCollectOddsRetriesTransientErrors(t *testing.T) {
	raceID := int64(2026360110_03)
	store := newFakeRaceStore()
	store.InsertRace(raceID, "一般戦", "園田", time.Now().Add(time.Hour))
	market := newFakeMarketScraper()
	seedAllMarkets(market, raceID)
	// 前2次失败，第3次成功
	market.failures[models.BetTypeUmaren] = 2

	backoffs := 0
	orch := NewOddsCollectionOrchestrator(store, newFakeOddsWriter(), market, 3)
	orch.backoff = func(int) { backoffs++ }

	if err := orch.CollectOdds(context.Background(), raceID); err != nil {
		t.Fatalf("CollectOdds failed: %v", err)
	}
	if got := market.attemptCount(models.BetTypeUmaren); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
	if backoffs != 2 {
		t.Errorf("Expected 2 backoffs, got %d", backoffs)
	}
}

func TestCollectOddsFailsAfterRetriesExhausted(t *testing.T) {
	raceID := int64(2026360110_04)
	store := newFakeRaceStore()
	store.InsertRace(raceID, "一般戦", "高知", time.Now().Add(time.Hour))
	market := newFakeMarketScraper()
	seedAllMarkets(market, raceID)
	market.failures[models.BetTypeWide] = 10

	orch := noBackoff(NewOddsCollectionOrchestrator(store, newFakeOddsWriter(), market, 3))
	if err := orch.CollectOdds(context.Background(), raceID); err == nil {
		t.Fatal("Expected error after retries exhausted")
	}
	if got := market.attemptCount(models.BetTypeWide); got != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", got)
	}
	if stats := orch.Stats(); stats.CollectsFailed != 1 {
		t.Errorf("Expected 1 failed collect, got %d", stats.CollectsFailed)
	}
}

func TestCollectOddsTerminalPassMarksDone(t *testing.T) {
	raceID := int64(2026360110_05)
	store := newFakeRaceStore()
	// 发走时刻已过、状态仍为 upcoming：最后一轮采集后标记 done
	store.InsertRace(raceID, "終了間際", "門別", time.Now().Add(-time.Minute))
	market := newFakeMarketScraper()
	seedAllMarkets(market, raceID)

	orch := noBackoff(NewOddsCollectionOrchestrator(store, newFakeOddsWriter(), market, 3))
	if err := orch.CollectOdds(context.Background(), raceID); err != nil {
		t.Fatalf("CollectOdds failed: %v", err)
	}
	if status := store.statusOf(raceID); status != models.RaceStatusDone {
		t.Errorf("Expected status done after terminal pass, got %q", status)
	}
}

func TestCollectOddsUnknownRaceIsNoOp(t *testing.T) {
	market := newFakeMarketScraper()
	orch := noBackoff(NewOddsCollectionOrchestrator(newFakeRaceStore(), newFakeOddsWriter(), market, 3))

	// 缺行不是故障：静默返回，不触碰浏览器，也不算失败
	if err := orch.CollectOdds(context.Background(), 404); err != nil {
		t.Fatalf("Unknown race should be a no-op, got %v", err)
	}
	for _, betType := range models.AllBetTypes {
		if got := market.attemptCount(betType); got != 0 {
			t.Errorf("Unknown race: expected 0 scrapes for %s, got %d", betType, got)
		}
	}
	if stats := orch.Stats(); stats.CollectsFailed != 0 {
		t.Errorf("Unknown race should not count as failed, got %d", stats.CollectsFailed)
	}
}

func TestCollectOddsDoneRaceIsNoOp(t *testing.T) {
	raceID := int64(2026360110_06)
	store := newFakeRaceStore()
	store.InsertRace(raceID, "終了済", "佐賀", time.Now().Add(-2*time.Hour))
	store.UpdateRaceStatus(raceID, models.RaceStatusDone)
	market := newFakeMarketScraper()
	seedAllMarkets(market, raceID)
	writer := newFakeOddsWriter()

	orch := noBackoff(NewOddsCollectionOrchestrator(store, writer, market, 3))
	if err := orch.CollectOdds(context.Background(), raceID); err != nil {
		t.Fatalf("Done race should be a no-op, got %v", err)
	}

	// 终了赛事不再抓任何玩法
	for _, betType := range models.AllBetTypes {
		if got := market.attemptCount(betType); got != 0 {
			t.Errorf("Done race: expected 0 scrapes for %s, got %d", betType, got)
		}
	}
	if writer.winAppends != 0 {
		t.Errorf("Done race: expected no writes, got %d win appends", writer.winAppends)
	}
	if status := store.statusOf(raceID); status != models.RaceStatusDone {
		t.Errorf("Status should stay done, got %q", status)
	}
}
