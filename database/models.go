package database

import (
	"time"
)

// Race 赛事记录
type Race struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Venue     string    `db:"venue"`
	StartTime time.Time `db:"start_time"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Horse 出走马记录
type Horse struct {
	ID          int64     `db:"id"`
	RaceID      int64     `db:"race_id"`
	HorseNumber int       `db:"horse_number"`
	Name        string    `db:"name"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
}

// WinOddsHistory 単勝赔率历史记录
type WinOddsHistory struct {
	ID         int64     `db:"id"`
	RaceID     int64     `db:"race_id"`
	HorseID    int64     `db:"horse_id"`
	Odds       float64   `db:"odds"`
	CapturedAt time.Time `db:"captured_at"`
	CreatedAt  time.Time `db:"created_at"`
}

// PlaceOdds 複勝赔率区间（每匹马最多一行）
type PlaceOdds struct {
	ID         int64     `db:"id"`
	RaceID     int64     `db:"race_id"`
	HorseID    int64     `db:"horse_id"`
	OddsMin    float64   `db:"odds_min"`
	OddsMax    float64   `db:"odds_max"`
	CapturedAt time.Time `db:"captured_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// CombinationOdds 组合类赔率行（枠連/馬連/馬単/三連複/三連単通用读取结构）
type CombinationOdds struct {
	ID         int64     `db:"id"`
	RaceID     int64     `db:"race_id"`
	Numbers    []int     `db:"-"`
	Odds       float64   `db:"odds"`
	CapturedAt time.Time `db:"captured_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// WideOdds ワイド赔率行（区间）
type WideOdds struct {
	ID         int64     `db:"id"`
	RaceID     int64     `db:"race_id"`
	Horse1     int       `db:"horse1"`
	Horse2     int       `db:"horse2"`
	OddsMin    float64   `db:"odds_min"`
	OddsMax    float64   `db:"odds_max"`
	CapturedAt time.Time `db:"captured_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}
