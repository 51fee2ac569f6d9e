package database

import (
	"database/sql"
	"fmt"
	"time"
)

// RaceStore 赛事与出走马的持久化操作
type RaceStore struct {
	db *sql.DB
}

func NewRaceStore(db *sql.DB) *RaceStore {
	return &RaceStore{db: db}
}

// FindRaceByID 按ID查找赛事，不存在时返回 (nil, nil)
func (s *RaceStore) FindRaceByID(id int64) (*Race, error) {
	query := `
		SELECT id, name, venue, start_time, status, created_at, updated_at
		FROM races
		WHERE id = $1
	`

	var race Race
	err := withRetry("FindRaceByID", func() error {
		row := s.db.QueryRow(query, id)
		return row.Scan(&race.ID, &race.Name, &race.Venue, &race.StartTime, &race.Status, &race.CreatedAt, &race.UpdatedAt)
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &race, nil
}

// FindRacesByStatus 按状态查找赛事
func (s *RaceStore) FindRacesByStatus(status string) ([]Race, error) {
	query := `
		SELECT id, name, venue, start_time, status, created_at, updated_at
		FROM races
		WHERE status = $1
		ORDER BY id
	`

	var races []Race
	err := withRetry("FindRacesByStatus", func() error {
		rows, err := s.db.Query(query, status)
		if err != nil {
			return err
		}
		defer rows.Close()

		races = races[:0]
		for rows.Next() {
			var race Race
			if err := rows.Scan(&race.ID, &race.Name, &race.Venue, &race.StartTime, &race.Status, &race.CreatedAt, &race.UpdatedAt); err != nil {
				return err
			}
			races = append(races, race)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return races, nil
}

// InsertRace 登记赛事。已存在时静默跳过（日历会被重复扫描）
func (s *RaceStore) InsertRace(id int64, name, venue string, startTime time.Time) error {
	query := `
		INSERT INTO races (id, name, venue, start_time, status)
		VALUES ($1, $2, $3, $4, 'upcoming')
		ON CONFLICT (id) DO NOTHING
	`

	return withRetry("InsertRace", func() error {
		_, err := s.db.Exec(query, id, name, venue, startTime.UTC())
		return err
	})
}

// UpdateRaceStatus 更新赛事状态（upcoming -> done 单向）
func (s *RaceStore) UpdateRaceStatus(id int64, status string) error {
	query := `
		UPDATE races
		SET status = $2, updated_at = $3
		WHERE id = $1
	`

	return withRetry("UpdateRaceStatus", func() error {
		_, err := s.db.Exec(query, id, status, time.Now().UTC())
		return err
	})
}

// FindHorse 按名字查找某场赛事的出走马，不存在时返回 (nil, nil)
func (s *RaceStore) FindHorse(name string, raceID int64) (*Horse, error) {
	query := `
		SELECT id, race_id, horse_number, name, status, created_at
		FROM horses
		WHERE race_id = $1 AND name = $2
	`

	var horse Horse
	err := withRetry("FindHorse", func() error {
		row := s.db.QueryRow(query, raceID, name)
		return row.Scan(&horse.ID, &horse.RaceID, &horse.HorseNumber, &horse.Name, &horse.Status, &horse.CreatedAt)
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &horse, nil
}

// InsertHorse 登记出走马，返回生成的ID
func (s *RaceStore) InsertHorse(raceID int64, horseNumber int, name string) (int64, error) {
	query := `
		INSERT INTO horses (race_id, horse_number, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (race_id, name) DO UPDATE SET horse_number = $2
		RETURNING id
	`

	var id int64
	err := withRetry("InsertHorse", func() error {
		return s.db.QueryRow(query, raceID, horseNumber, name).Scan(&id)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateHorseStatus 更新出走马状态（如取消出走）
func (s *RaceStore) UpdateHorseStatus(horseID int64, status string) error {
	query := `
		UPDATE horses
		SET status = $2
		WHERE id = $1
	`

	return withRetry("UpdateHorseStatus", func() error {
		_, err := s.db.Exec(query, horseID, status)
		return err
	})
}

// TransactionalDeleteRaceAndChildren 在单个事务内删除赛事及其全部子表数据
func (s *RaceStore) TransactionalDeleteRaceAndChildren(raceIDs []int64) error {
	if len(raceIDs) == 0 {
		return nil
	}

	// 子表先删，races 最后删
	childTables := []string{
		"win_odds_history",
		"place_odds",
		"wakuren_odds",
		"umaren_odds",
		"umatan_odds",
		"wide_odds",
		"sanrenpuku_odds",
		"sanrentan_odds",
		"horses",
	}

	return withRetry("TransactionalDeleteRaceAndChildren", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		for _, id := range raceIDs {
			for _, table := range childTables {
				query := fmt.Sprintf("DELETE FROM %s WHERE race_id = $1", table)
				if _, err := tx.Exec(query, id); err != nil {
					return fmt.Errorf("failed to delete from %s: %w", table, err)
				}
			}
			if _, err := tx.Exec("DELETE FROM races WHERE id = $1", id); err != nil {
				return fmt.Errorf("failed to delete race %d: %w", id, err)
			}
		}

		return tx.Commit()
	})
}
