package services

import (
	"testing"
	"time"

	"keiba-odds-service/logger"
)

// jstTime 构造 JST 时刻的辅助
func jstTime(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, logger.JST)
}

func TestShouldCollectGradeBoundaries(t *testing.T) {
	policy := CadencePolicy{CollectOvernight: true}
	start := jstTime(2026, 8, 31, 15, 40)

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		// T=20分: 30分以内，每次触发都采
		{"T=20m always", jstTime(2026, 8, 31, 15, 20), true},
		// T=2时35分 (minute=5): 3时以内，分钟数非10的倍数，不采
		{"T=2h35m minute 5", jstTime(2026, 8, 31, 13, 5), false},
		// T=2时30分 (minute=10): 3时以内，10的倍数，采
		{"T=2h30m minute 10", jstTime(2026, 8, 31, 13, 10), true},
		// T=10时 (minute=40): 12时以内，非30的倍数，不采
		{"T=10h minute 40", jstTime(2026, 8, 31, 5, 40), false},
		// T=11时10分 (minute=30): 12时以内，30的倍数，采
		{"T=11h10m minute 30", jstTime(2026, 8, 31, 4, 30), true},
		// T=14时25分 (minute=15): 12时以上，非整点，不采
		{"T=14h25m minute 15", jstTime(2026, 8, 31, 1, 15), false},
		// T=14时40分 (minute=0): 12时以上，整点，采
		{"T=14h40m minute 0", jstTime(2026, 8, 31, 1, 0), true},
		// T=-3分: 发走后宽限期内，一律采
		{"T=-3m final", jstTime(2026, 8, 31, 15, 43), true},
	}

	for _, c := range cases {
		got := policy.ShouldCollect(c.now, start, true)
		if got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, got)
		}
	}
}

func TestShouldCollectNonGrade(t *testing.T) {
	policy := CadencePolicy{CollectOvernight: true}
	start := jstTime(2026, 8, 31, 16, 15)

	// T=45分 (minute=30): 30分以上，30的倍数，采
	if !policy.ShouldCollect(jstTime(2026, 8, 31, 15, 30), start, false) {
		t.Error("T=45m minute=30: expected collect")
	}
	// T=45分相当 (minute=25): 非30的倍数，不采
	if policy.ShouldCollect(jstTime(2026, 8, 31, 15, 25), start, false) {
		t.Error("T=50m minute=25: expected no collect")
	}
	// T=15分 (minute=0): 30分以内，10的倍数，采
	if !policy.ShouldCollect(jstTime(2026, 8, 31, 16, 0), start, false) {
		t.Error("T=15m minute=0: expected collect")
	}
	// T=10分 (minute=5): 30分以内，非10的倍数，不采
	if policy.ShouldCollect(jstTime(2026, 8, 31, 16, 5), start, false) {
		t.Error("T=10m minute=5: expected no collect")
	}
}

func TestShouldCollectGradeGate(t *testing.T) {
	policy := CadencePolicy{CollectOvernight: true}
	// 发走: 9/1 15:40 JST -> 开采时刻: 8/31 09:00 JST
	start := jstTime(2026, 9, 1, 15, 40)

	// 开采时刻之前：空转不采（即使分钟数满足节奏）
	if policy.ShouldCollect(jstTime(2026, 8, 31, 8, 0), start, true) {
		t.Error("Before collection start: expected no collect")
	}
	// 开采时刻之后：按节奏采（T>12h，整点）
	if !policy.ShouldCollect(jstTime(2026, 8, 31, 10, 0), start, true) {
		t.Error("After collection start at minute 0: expected collect")
	}
	// 非重赏不受开采时刻限制
	if !policy.ShouldCollect(jstTime(2026, 8, 31, 8, 0), start, false) {
		t.Error("Non-grade before gate at minute 0: expected collect")
	}
}

func TestShouldCollectOvernightToggle(t *testing.T) {
	suppressed := CadencePolicy{CollectOvernight: false}
	always := CadencePolicy{CollectOvernight: true}
	start := jstTime(2026, 8, 31, 20, 0)

	// 深夜3:00 (T=17h, 整点): 停采开关打开时不采
	if suppressed.ShouldCollect(jstTime(2026, 8, 31, 3, 0), start, true) {
		t.Error("Overnight suppression: expected no collect at 03:00")
	}
	if !always.ShouldCollect(jstTime(2026, 8, 31, 3, 0), start, true) {
		t.Error("Default policy: expected collect at 03:00 on the hour")
	}
	// 发走后宽限期内不受夜间停采影响
	if !suppressed.ShouldCollect(jstTime(2026, 8, 31, 20, 2), start, true) {
		t.Error("Final window should override overnight suppression")
	}
}

func TestCollectionStart(t *testing.T) {
	// 发走 9/1 15:40 JST -> 前日 09:00 JST
	start := jstTime(2026, 9, 1, 15, 40)
	got := CollectionStart(start.UTC())
	want := jstTime(2026, 8, 31, 9, 0)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
