package services

import (
	"context"
	"time"

	"keiba-odds-service/database"
	"keiba-odds-service/models"
)

// RaceStore 调度与采集依赖的赛事存储操作
type RaceStore interface {
	FindRaceByID(id int64) (*database.Race, error)
	FindRacesByStatus(status string) ([]database.Race, error)
	InsertRace(id int64, name, venue string, startTime time.Time) error
	UpdateRaceStatus(id int64, status string) error
	FindHorse(name string, raceID int64) (*database.Horse, error)
	InsertHorse(raceID int64, horseNumber int, name string) (int64, error)
}

// OddsWriter 各玩法赔率表的写入操作
type OddsWriter interface {
	AppendWinOdds(raceID, horseID int64, odds float64, capturedAt time.Time) error
	UpsertPlaceOdds(raceID, horseID int64, oddsMin, oddsMax float64, capturedAt time.Time) error
	UpsertWakurenOdds(raceID int64, frame1, frame2 int, odds float64, capturedAt time.Time) error
	UpsertUmarenOdds(raceID int64, horse1, horse2 int, odds float64, capturedAt time.Time) error
	UpsertUmatanOdds(raceID int64, firstHorse, secondHorse int, odds float64, capturedAt time.Time) error
	UpsertWideOdds(raceID int64, horse1, horse2 int, oddsMin, oddsMax float64, capturedAt time.Time) error
	UpsertSanrenpukuOdds(raceID int64, horse1, horse2, horse3 int, odds float64, capturedAt time.Time) error
	UpsertSanrentanOdds(raceID int64, firstHorse, secondHorse, thirdHorse int, odds float64, capturedAt time.Time) error
}

// MarketScraper 单个玩法的赔率抓取
type MarketScraper interface {
	ScrapeMarket(ctx context.Context, raceID int64, betType models.BetType) ([]models.OddsQuote, error)
}

// OddsCollector 调度器触发的采集入口
type OddsCollector interface {
	CollectOdds(ctx context.Context, raceID int64) error
}

// Recoverer 统一错误恢复入口（浏览器重启 + 健康检查）
type Recoverer interface {
	RecoverFromError(component string, cause error) error
}
