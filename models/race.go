package models

import "time"

// 赛事状态。只允许 upcoming -> done 单向转换
const (
	RaceStatusUpcoming = "upcoming"
	RaceStatusDone     = "done"
)

// RaceInfo 调度器的输入。由 RaceDiscovery 从日历页解析生成，
// 只存在于内存中（IsGrade 不落库）
type RaceInfo struct {
	ID        int64
	Name      string
	Venue     string
	StartTime time.Time // UTC
	IsGrade   bool      // 重赏标记，决定采集频率
}
