package services

import (
	"context"
	"sync"
	"time"

	"keiba-odds-service/logger"
	"keiba-odds-service/models"
)

// fireInterval 每个赛事任务的固定触发间隔。是否真正采集由 CadencePolicy 决定
const fireInterval = 5 * time.Minute

// raceJob 单场赛事的采集任务。持有不落库的 RaceInfo 快照和可取消的定时器
type raceJob struct {
	info     models.RaceInfo
	ticker   *time.Ticker
	stop     chan struct{}
	stopOnce sync.Once
}

func (j *raceJob) cancel() {
	j.stopOnce.Do(func() {
		j.ticker.Stop()
		close(j.stop)
	})
}

// CollectionScheduler 按赛事维护采集任务的注册表。
// 每场被跟踪的赛事对应一个5分钟间隔的定时任务，任务触发时按
// 距发走时间和重赏与否判定是否采集；发走超过宽限期后任务自我注销
type CollectionScheduler struct {
	store     RaceStore
	collector OddsCollector
	recovery  Recoverer
	policy    CadencePolicy

	mu   sync.Mutex
	jobs map[int64]*raceJob

	// nowFn 可替换，测试时注入固定时钟
	nowFn func() time.Time
}

func NewCollectionScheduler(store RaceStore, collector OddsCollector, recovery Recoverer, policy CadencePolicy) *CollectionScheduler {
	return &CollectionScheduler{
		store:     store,
		collector: collector,
		recovery:  recovery,
		policy:    policy,
		jobs:      make(map[int64]*raceJob),
		nowFn:     time.Now,
	}
}

// Schedule 为赛事创建（或替换）采集任务。
// 注册时立即尝试一次采集，除非是尚未到开采时刻的重赏赛事
func (s *CollectionScheduler) Schedule(info models.RaceInfo) {
	s.mu.Lock()
	if existing, ok := s.jobs[info.ID]; ok {
		existing.cancel()
	}
	job := &raceJob{
		info:   info,
		ticker: time.NewTicker(fireInterval),
		stop:   make(chan struct{}),
	}
	s.jobs[info.ID] = job
	s.mu.Unlock()

	logger.Printf("[Scheduler] 📅 Scheduled race %d (%s, grade=%v, start=%s)",
		info.ID, info.Name, info.IsGrade,
		info.StartTime.In(logger.JST).Format("2006/01/02 15:04 MST"))

	go s.runJob(job)
}

// runJob 任务主循环：先做注册时的立即采集，然后按固定间隔触发
func (s *CollectionScheduler) runJob(job *raceJob) {
	now := s.nowFn()
	if !job.info.IsGrade || !now.Before(CollectionStart(job.info.StartTime)) {
		s.collectOnce(job.info)
	}

	for {
		select {
		case <-job.ticker.C:
			s.fire(job.info)
		case <-job.stop:
			return
		}
	}
}

// fire 单次触发。任何错误只触发恢复例程，绝不终止任务本身——
// 下一次触发照常进行
func (s *CollectionScheduler) fire(info models.RaceInfo) {
	now := s.nowFn()
	t := info.StartTime.Sub(now)

	if t <= -FinalOddsWindow {
		s.retire(info)
		return
	}

	if !s.policy.ShouldCollect(now, info.StartTime, info.IsGrade) {
		return
	}
	s.collectOnce(info)
}

// collectOnce 执行一次采集，错误走统一恢复
func (s *CollectionScheduler) collectOnce(info models.RaceInfo) {
	if err := s.collector.CollectOdds(context.Background(), info.ID); err != nil {
		logger.Errorf("[Scheduler] ❌ Collection failed for race %d: %v", info.ID, err)
		if s.recovery != nil {
			if recErr := s.recovery.RecoverFromError("CollectionScheduler", err); recErr != nil {
				logger.Errorf("[Scheduler] ❌ Recovery failed for race %d: %v", info.ID, recErr)
			}
		}
	}
}

// retire 发走宽限期已过：最后抓一次最终赔率，补上 done 标记，注销任务
func (s *CollectionScheduler) retire(info models.RaceInfo) {
	logger.Printf("[Scheduler] 🏁 Race %d past final-odds window, retiring job", info.ID)

	s.collectOnce(info)

	// 采集器的终了处理正常时已经标记 done，这里兜底一次
	race, err := s.store.FindRaceByID(info.ID)
	if err != nil {
		logger.Errorf("[Scheduler] ⚠️  Failed to verify race %d status: %v", info.ID, err)
	} else if race != nil && race.Status == models.RaceStatusUpcoming {
		if err := s.store.UpdateRaceStatus(info.ID, models.RaceStatusDone); err != nil {
			logger.Errorf("[Scheduler] ❌ Failed to mark race %d done: %v", info.ID, err)
		}
	}

	s.Cancel(info.ID)
}

// Cancel 注销赛事的采集任务。不存在时静默返回（幂等）
func (s *CollectionScheduler) Cancel(raceID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[raceID]; ok {
		job.cancel()
		delete(s.jobs, raceID)
		logger.Printf("[Scheduler] 🛑 Canceled job for race %d (%d active)", raceID, len(s.jobs))
	}
}

// RestoreMissingJobs 对照存储里的 upcoming 赛事补齐丢失的任务（进程重启后自愈）。
// 重赏标记不落库，恢复出来的赛事一律按重赏处理（保守：采得更勤）。
// 幂等：已有任务的赛事不会被重复注册
func (s *CollectionScheduler) RestoreMissingJobs() (int, error) {
	races, err := s.store.FindRacesByStatus(models.RaceStatusUpcoming)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, race := range races {
		if s.HasJob(race.ID) {
			continue
		}
		s.Schedule(models.RaceInfo{
			ID:        race.ID,
			Name:      race.Name,
			Venue:     race.Venue,
			StartTime: race.StartTime,
			IsGrade:   true,
		})
		restored++
	}

	if restored > 0 {
		logger.Printf("[Scheduler] 🔄 Restored %d missing job(s)", restored)
	}
	return restored, nil
}

// HasJob 赛事是否有活动任务
func (s *CollectionScheduler) HasJob(raceID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[raceID]
	return ok
}

// ActiveJobCount 活动任务数
func (s *CollectionScheduler) ActiveJobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// ActiveRaceIDs 活动任务的赛事ID一览（状态页用）
func (s *CollectionScheduler) ActiveRaceIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown 注销全部任务
func (s *CollectionScheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, job := range s.jobs {
		job.cancel()
		delete(s.jobs, id)
	}
	logger.Printf("[Scheduler] 🛑 All jobs canceled")
}
