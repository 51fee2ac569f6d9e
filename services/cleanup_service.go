package services

import (
	"fmt"

	"keiba-odds-service/logger"
)

// OddsJanitor 历史数据清理依赖的存储操作
type OddsJanitor interface {
	DeleteOldOddsHistory(retainDays int) (int64, error)
	FindStaleRaceIDs(retainDays int) ([]int64, error)
}

// RaceJanitor 赛事级联删除
type RaceJanitor interface {
	TransactionalDeleteRaceAndChildren(raceIDs []int64) error
}

// CleanupConfig 清理配置
type CleanupConfig struct {
	RetainDaysOddsHistory int // win_odds_history 保留天数
	RetainDaysRaces       int // races 及下属全表保留天数
}

// CleanupResult 单项清理结果
type CleanupResult struct {
	Target       string
	DeletedRows  int64
	RetainedDays int
	Error        error
}

// DataCleanupService 数据清理服务。
// 単勝历史表只追加不更新，是存储占用的大头，按保留天数批量删除；
// 发走已久的赛事连同全部下属赔率表在同一事务里级联删除
type DataCleanupService struct {
	odds   OddsJanitor
	races  RaceJanitor
	config CleanupConfig
}

func NewDataCleanupService(odds OddsJanitor, races RaceJanitor, config CleanupConfig) *DataCleanupService {
	return &DataCleanupService{
		odds:   odds,
		races:  races,
		config: config,
	}
}

// ExecuteCleanup 执行数据清理
// 保留策略：
// - win_odds_history: 保留 7 天（赔率推移记录，占用空间最大）
// - races 及下属赔率表: 保留 30 天（按发走时刻判定）
func (s *DataCleanupService) ExecuteCleanup() []CleanupResult {
	results := []CleanupResult{
		s.cleanupOddsHistory(),
		s.cleanupStaleRaces(),
	}

	for _, r := range results {
		if r.Error != nil {
			logger.Errorf("[DataCleanup] ❌ %s: %v", r.Target, r.Error)
			continue
		}
		logger.Printf("[DataCleanup] ✅ %s: deleted %d row(s) older than %d day(s)",
			r.Target, r.DeletedRows, r.RetainedDays)
	}
	return results
}

func (s *DataCleanupService) cleanupOddsHistory() CleanupResult {
	result := CleanupResult{
		Target:       "win_odds_history",
		RetainedDays: s.config.RetainDaysOddsHistory,
	}

	deleted, err := s.odds.DeleteOldOddsHistory(s.config.RetainDaysOddsHistory)
	if err != nil {
		result.Error = fmt.Errorf("failed to delete old odds history: %w", err)
		return result
	}
	result.DeletedRows = deleted
	return result
}

func (s *DataCleanupService) cleanupStaleRaces() CleanupResult {
	result := CleanupResult{
		Target:       "races",
		RetainedDays: s.config.RetainDaysRaces,
	}

	raceIDs, err := s.odds.FindStaleRaceIDs(s.config.RetainDaysRaces)
	if err != nil {
		result.Error = fmt.Errorf("failed to find stale races: %w", err)
		return result
	}
	if len(raceIDs) == 0 {
		return result
	}

	if err := s.races.TransactionalDeleteRaceAndChildren(raceIDs); err != nil {
		result.Error = fmt.Errorf("failed to delete stale races: %w", err)
		return result
	}
	result.DeletedRows = int64(len(raceIDs))
	return result
}
