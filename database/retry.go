package database

import (
	"database/sql"
	"errors"
	"time"

	"keiba-odds-service/logger"
)

const dbRetryAttempts = 3

var dbRetryBackoff = 5 * time.Second

// withRetry 数据库操作的统一重试封装。固定间隔重试，吸收瞬时连接抖动。
// sql.ErrNoRows 是正常的未命中结果而非连接故障，立即原样返回，由调用方判定。
// 重试耗尽后返回最后一次的错误，由调用方决定如何降级
func withRetry(op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= dbRetryAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if attempt < dbRetryAttempts {
			logger.Printf("[DB] ⚠️  %s failed (attempt %d/%d): %v, retrying in %v", op, attempt, dbRetryAttempts, err, dbRetryBackoff)
			time.Sleep(dbRetryBackoff)
		}
	}
	logger.Errorf("[DB] ❌ %s failed after %d attempts: %v", op, dbRetryAttempts, err)
	return err
}
