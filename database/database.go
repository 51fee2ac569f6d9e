package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Connect 连接到数据库
func Connect(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 设置连接池
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

// Migrate 运行数据库迁移
func Migrate(db *sql.DB) error {
	migrations := []string{
		// 赛事表。id 为定宽十进制编码（年+场码+回次+日次+R），整数排序即时间排序
		`CREATE TABLE IF NOT EXISTS races (
			id BIGINT PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			venue VARCHAR(50) NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'upcoming',
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_races_status ON races(status)`,
		`CREATE INDEX IF NOT EXISTS idx_races_start_time ON races(start_time)`,

		// 出走马表
		`CREATE TABLE IF NOT EXISTS horses (
			id BIGSERIAL PRIMARY KEY,
			race_id BIGINT NOT NULL,
			horse_number INTEGER NOT NULL DEFAULT 0,
			name VARCHAR(100) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'running',
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (race_id, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_horses_race_id ON horses(race_id)`,

		// 単勝赔率历史（追加式，保留完整变化轨迹）
		`CREATE TABLE IF NOT EXISTS win_odds_history (
			id BIGSERIAL PRIMARY KEY,
			race_id BIGINT NOT NULL,
			horse_id BIGINT NOT NULL,
			odds NUMERIC(7,1) NOT NULL,
			captured_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_win_odds_history_horse ON win_odds_history(horse_id)`,
		`CREATE INDEX IF NOT EXISTS idx_win_odds_history_race ON win_odds_history(race_id)`,

		// 複勝赔率区间（每匹马一行，最新覆盖）
		`CREATE TABLE IF NOT EXISTS place_odds (
			id BIGSERIAL PRIMARY KEY,
			race_id BIGINT NOT NULL,
			horse_id BIGINT NOT NULL,
			odds_min NUMERIC(7,1) NOT NULL,
			odds_max NUMERIC(7,1) NOT NULL,
			captured_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (race_id, horse_id)
		)`,

		// 枠連（无序枠号2连，存前已归一化 frame1 <= frame2）
		`CREATE TABLE IF NOT EXISTS wakuren_odds (
			id BIGSERIAL PRIMARY KEY,
			race_id BIGINT NOT NULL,
			frame1 INTEGER NOT NULL,
			frame2 INTEGER NOT NULL,
			odds NUMERIC(8,1) NOT NULL,
			captured_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (race_id, frame1, frame2)
		)`,

		// 馬連（无序马号2连）
		`CREATE TABLE IF NOT EXISTS umaren_odds (
			id BIGSERIAL PRIMARY KEY,
			race_id BIGINT NOT NULL,
			horse1 INTEGER NOT NULL,
			horse2 INTEGER NOT NULL,
			odds NUMERIC(8,1) NOT NULL,
			captured_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (race_id, horse1, horse2)
		)`,

		// 馬単（有序马号2连，保持抓取顺序）
		`CREATE TABLE IF NOT EXISTS umatan_odds (
			id BIGSERIAL PRIMARY KEY,
			race_id BIGINT NOT NULL,
			first_horse INTEGER NOT NULL,
			second_horse INTEGER NOT NULL,
			odds NUMERIC(8,1) NOT NULL,
			captured_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (race_id, first_horse, second_horse)
		)`,

		// ワイド（无序马号2连，区间赔率）
		`CREATE TABLE IF NOT EXISTS wide_odds (
			id BIGSERIAL PRIMARY KEY,
			race_id BIGINT NOT NULL,
			horse1 INTEGER NOT NULL,
			horse2 INTEGER NOT NULL,
			odds_min NUMERIC(8,1) NOT NULL,
			odds_max NUMERIC(8,1) NOT NULL,
			captured_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (race_id, horse1, horse2)
		)`,

		// 三連複（无序马号3连）
		`CREATE TABLE IF NOT EXISTS sanrenpuku_odds (
			id BIGSERIAL PRIMARY KEY,
			race_id BIGINT NOT NULL,
			horse1 INTEGER NOT NULL,
			horse2 INTEGER NOT NULL,
			horse3 INTEGER NOT NULL,
			odds NUMERIC(9,1) NOT NULL,
			captured_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (race_id, horse1, horse2, horse3)
		)`,

		// 三連単（有序马号3连）
		`CREATE TABLE IF NOT EXISTS sanrentan_odds (
			id BIGSERIAL PRIMARY KEY,
			race_id BIGINT NOT NULL,
			first_horse INTEGER NOT NULL,
			second_horse INTEGER NOT NULL,
			third_horse INTEGER NOT NULL,
			odds NUMERIC(9,1) NOT NULL,
			captured_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (race_id, first_horse, second_horse, third_horse)
		)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
