package database

import (
	"database/sql"
	"fmt"
	"time"
)

// OddsStore 各投注种类赔率表的持久化操作
//
// 写入策略分两类:
//   - 単勝: 追加式历史（AppendWinOdds），每次采集都新增一行
//   - 複勝/组合类: 按键覆盖（Upsert*），每个 (race_id, 组合键) 只保留最新一行
//
// 无序组合（枠連/馬連/ワイド/三連複）在入库前统一升序归一化，
// 保证两种抓取顺序落到同一行
type OddsStore struct {
	db *sql.DB
}

func NewOddsStore(db *sql.DB) *OddsStore {
	return &OddsStore{db: db}
}

// normalizePair 无序2连的键归一化（升序）
func normalizePair(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

// normalizeTriple 无序3连的键归一化（升序）
func normalizeTriple(a, b, c int) (int, int, int) {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b, c = c, b
	}
	if a > b {
		a, b = b, a
	}
	return a, b, c
}

// AppendWinOdds 追加単勝赔率历史
func (s *OddsStore) AppendWinOdds(raceID, horseID int64, odds float64, capturedAt time.Time) error {
	query := `
		INSERT INTO win_odds_history (race_id, horse_id, odds, captured_at)
		VALUES ($1, $2, $3, $4)
	`

	return withRetry("AppendWinOdds", func() error {
		_, err := s.db.Exec(query, raceID, horseID, odds, capturedAt.UTC())
		return err
	})
}

// UpsertPlaceOdds 覆盖複勝赔率区间（每匹马最多一行）
func (s *OddsStore) UpsertPlaceOdds(raceID, horseID int64, oddsMin, oddsMax float64, capturedAt time.Time) error {
	query := `
		INSERT INTO place_odds (race_id, horse_id, odds_min, odds_max, captured_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (race_id, horse_id)
		DO UPDATE SET
			odds_min = $3,
			odds_max = $4,
			captured_at = $5,
			updated_at = $5
	`

	return withRetry("UpsertPlaceOdds", func() error {
		_, err := s.db.Exec(query, raceID, horseID, oddsMin, oddsMax, capturedAt.UTC())
		return err
	})
}

// UpsertWakurenOdds 覆盖枠連赔率（无序枠号对）
func (s *OddsStore) UpsertWakurenOdds(raceID int64, frame1, frame2 int, odds float64, capturedAt time.Time) error {
	frame1, frame2 = normalizePair(frame1, frame2)
	query := `
		INSERT INTO wakuren_odds (race_id, frame1, frame2, odds, captured_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (race_id, frame1, frame2)
		DO UPDATE SET
			odds = $4,
			captured_at = $5,
			updated_at = $5
	`

	return withRetry("UpsertWakurenOdds", func() error {
		_, err := s.db.Exec(query, raceID, frame1, frame2, odds, capturedAt.UTC())
		return err
	})
}

// UpsertUmarenOdds 覆盖馬連赔率（无序马号对）
func (s *OddsStore) UpsertUmarenOdds(raceID int64, horse1, horse2 int, odds float64, capturedAt time.Time) error {
	horse1, horse2 = normalizePair(horse1, horse2)
	query := `
		INSERT INTO umaren_odds (race_id, horse1, horse2, odds, captured_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (race_id, horse1, horse2)
		DO UPDATE SET
			odds = $4,
			captured_at = $5,
			updated_at = $5
	`

	return withRetry("UpsertUmarenOdds", func() error {
		_, err := s.db.Exec(query, raceID, horse1, horse2, odds, capturedAt.UTC())
		return err
	})
}

// UpsertUmatanOdds 覆盖馬単赔率（有序，保持抓取顺序）
func (s *OddsStore) UpsertUmatanOdds(raceID int64, firstHorse, secondHorse int, odds float64, capturedAt time.Time) error {
	query := `
		INSERT INTO umatan_odds (race_id, first_horse, second_horse, odds, captured_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (race_id, first_horse, second_horse)
		DO UPDATE SET
			odds = $4,
			captured_at = $5,
			updated_at = $5
	`

	return withRetry("UpsertUmatanOdds", func() error {
		_, err := s.db.Exec(query, raceID, firstHorse, secondHorse, odds, capturedAt.UTC())
		return err
	})
}

// UpsertWideOdds 覆盖ワイド赔率区间（无序马号对）
func (s *OddsStore) UpsertWideOdds(raceID int64, horse1, horse2 int, oddsMin, oddsMax float64, capturedAt time.Time) error {
	horse1, horse2 = normalizePair(horse1, horse2)
	query := `
		INSERT INTO wide_odds (race_id, horse1, horse2, odds_min, odds_max, captured_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (race_id, horse1, horse2)
		DO UPDATE SET
			odds_min = $4,
			odds_max = $5,
			captured_at = $6,
			updated_at = $6
	`

	return withRetry("UpsertWideOdds", func() error {
		_, err := s.db.Exec(query, raceID, horse1, horse2, oddsMin, oddsMax, capturedAt.UTC())
		return err
	})
}

// UpsertSanrenpukuOdds 覆盖三連複赔率（无序马号3连）
func (s *OddsStore) UpsertSanrenpukuOdds(raceID int64, horse1, horse2, horse3 int, odds float64, capturedAt time.Time) error {
	horse1, horse2, horse3 = normalizeTriple(horse1, horse2, horse3)
	query := `
		INSERT INTO sanrenpuku_odds (race_id, horse1, horse2, horse3, odds, captured_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (race_id, horse1, horse2, horse3)
		DO UPDATE SET
			odds = $5,
			captured_at = $6,
			updated_at = $6
	`

	return withRetry("UpsertSanrenpukuOdds", func() error {
		_, err := s.db.Exec(query, raceID, horse1, horse2, horse3, odds, capturedAt.UTC())
		return err
	})
}

// UpsertSanrentanOdds 覆盖三連単赔率（有序马号3连）
func (s *OddsStore) UpsertSanrentanOdds(raceID int64, firstHorse, secondHorse, thirdHorse int, odds float64, capturedAt time.Time) error {
	query := `
		INSERT INTO sanrentan_odds (race_id, first_horse, second_horse, third_horse, odds, captured_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (race_id, first_horse, second_horse, third_horse)
		DO UPDATE SET
			odds = $5,
			captured_at = $6,
			updated_at = $6
	`

	return withRetry("UpsertSanrentanOdds", func() error {
		_, err := s.db.Exec(query, raceID, firstHorse, secondHorse, thirdHorse, odds, capturedAt.UTC())
		return err
	})
}

// CountMarketRows 统计某场赛事各赔率表的行数（状态页用）
func (s *OddsStore) CountMarketRows(raceID int64) (map[string]int64, error) {
	tables := []string{
		"win_odds_history",
		"place_odds",
		"wakuren_odds",
		"umaren_odds",
		"umatan_odds",
		"wide_odds",
		"sanrenpuku_odds",
		"sanrentan_odds",
	}

	counts := make(map[string]int64, len(tables))
	for _, table := range tables {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE race_id = $1", table)
		var count int64
		err := withRetry("CountMarketRows", func() error {
			return s.db.QueryRow(query, raceID).Scan(&count)
		})
		if err != nil {
			return nil, err
		}
		counts[table] = count
	}
	return counts, nil
}

// DeleteOldOddsHistory 按保留天数清理単勝赔率历史
func (s *OddsStore) DeleteOldOddsHistory(retainDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retainDays)
	query := `DELETE FROM win_odds_history WHERE captured_at < $1`

	var deleted int64
	err := withRetry("DeleteOldOddsHistory", func() error {
		res, err := s.db.Exec(query, cutoff)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

// FindStaleRaceIDs 查找结束超过保留天数的赛事ID（清理用）
func (s *OddsStore) FindStaleRaceIDs(retainDays int) ([]int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retainDays)
	query := `SELECT id FROM races WHERE status = 'done' AND start_time < $1`

	var ids []int64
	err := withRetry("FindStaleRaceIDs", func() error {
		rows, err := s.db.Query(query, cutoff)
		if err != nil {
			return err
		}
		defer rows.Close()

		ids = ids[:0]
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
