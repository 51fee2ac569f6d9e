package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	// 数据库配置
	DatabaseURL string

	// 服务器配置
	Port string

	// 浏览器配置
	Headless           bool
	MaxBrowserContexts int           // 同时存在的标签页上限
	ContextIdleTimeout time.Duration // 空闲标签页回收时间
	BrowserResetHours  int           // 定期重启浏览器的间隔（小时）
	BrowserErrorLimit  int           // 累计错误达到该值时强制重启浏览器

	// 采集配置
	MaxConcurrentCollects int  // 同时进行的采集数（信号量上限）
	CollectOvernight      bool // 深夜时段（0-6点 JST）是否继续采集
	ScrapeTimeoutSec      int  // 单个盘口页面的抓取超时

	// 数据保留配置
	RetainDaysOddsHistory int // 单胜赔率历史保留天数
	RetainDaysRaces       int // 已结束赛事保留天数

	// 消息配置
	AMQPURL     string // 为空则不启用赔率事件发布
	LarkWebhook string // 为空则不启用飞书通知

	// 其他配置
	Environment string
}

func Load() *Config {
	return &Config{
		// 数据库配置
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/keiba?sslmode=disable"),

		// 服务器配置
		Port: getEnv("PORT", "8080"),

		// 浏览器配置
		Headless:           getEnvBool("HEADLESS", true),
		MaxBrowserContexts: getEnvInt("MAX_BROWSER_CONTEXTS", 3),
		ContextIdleTimeout: time.Duration(getEnvInt("CONTEXT_IDLE_MINUTES", 10)) * time.Minute,
		BrowserResetHours:  getEnvInt("BROWSER_RESET_HOURS", 12),
		BrowserErrorLimit:  getEnvInt("BROWSER_ERROR_LIMIT", 10),

		// 采集配置
		MaxConcurrentCollects: getEnvInt("MAX_CONCURRENT_COLLECTS", 3),
		CollectOvernight:      getEnvBool("COLLECT_OVERNIGHT", true),
		ScrapeTimeoutSec:      getEnvInt("SCRAPE_TIMEOUT_SEC", 35),

		// 数据保留配置
		RetainDaysOddsHistory: getEnvInt("RETAIN_DAYS_ODDS_HISTORY", 7),
		RetainDaysRaces:       getEnvInt("RETAIN_DAYS_RACES", 30),

		// 消息配置
		AMQPURL:     getEnv("AMQP_URL", ""),
		LarkWebhook: getEnv("LARK_WEBHOOK", ""),

		// 其他配置
		Environment: getEnv("ENVIRONMENT", "development"),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result int
	fmt.Sscanf(value, "%d", &result)
	if result == 0 {
		return defaultValue
	}
	return result
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return strings.EqualFold(value, "1") || strings.EqualFold(value, "true") || strings.EqualFold(value, "yes")
}
