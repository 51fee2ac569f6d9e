package services

import (
	"time"

	"keiba-odds-service/logger"
)

// FinalOddsWindow 发走后继续采集最终赔率的宽限期。
// 超过后任务自我注销并把赛事标记为 done
const FinalOddsWindow = 5 * time.Minute

// CadencePolicy 采集频率策略。任务固定每5分钟触发一次，
// 由这里的纯函数决定本次触发是否真正采集，便于确定性测试
type CadencePolicy struct {
	// CollectOvernight 深夜时段（0-6点 JST）是否继续采集。
	// 旧版有夜间停采窗口但最新版已停用，保留为开关，默认一直采集
	CollectOvernight bool
}

// CollectionStart 重赏赛事的开采时刻：发走日前一天的 09:00 JST。
// 在此之前任务空转（armed, waiting）
func CollectionStart(startTime time.Time) time.Time {
	local := startTime.In(logger.JST)
	return time.Date(local.Year(), local.Month(), local.Day()-1, 9, 0, 0, 0, logger.JST)
}

// ShouldCollect 判定当前触发是否采集。
//
// T = 距发走时间:
//   - T <= 0: 一律采集（抓最终赔率）
//   - 重赏且未到开采时刻: 不采集
//   - 重赏: T<=30分 每次都采; T<=3时 分钟数为10的倍数时采;
//     T<=12时 为30的倍数时采; 更早 仅整点采
//   - 非重赏: T<=30分 为10的倍数时采; 更早 为30的倍数时采
func (p CadencePolicy) ShouldCollect(now, startTime time.Time, isGrade bool) bool {
	t := startTime.Sub(now)

	// 发走时刻已过：最终赔率，无条件采集
	if t <= 0 {
		return true
	}

	if isGrade && now.Before(CollectionStart(startTime)) {
		return false
	}

	local := now.In(logger.JST)
	if !p.CollectOvernight && local.Hour() < 6 {
		return false
	}

	minute := local.Minute()
	if isGrade {
		switch {
		case t <= 30*time.Minute:
			return true
		case t <= 3*time.Hour:
			return minute%10 == 0
		case t <= 12*time.Hour:
			return minute%30 == 0
		default:
			return minute == 0
		}
	}

	if t <= 30*time.Minute {
		return minute%10 == 0
	}
	return minute%30 == 0
}
