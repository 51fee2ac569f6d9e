package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"keiba-odds-service/browser"
	"keiba-odds-service/config"
	"keiba-odds-service/database"
	"keiba-odds-service/logger"
	"keiba-odds-service/scraper"
	"keiba-odds-service/services"
	"keiba-odds-service/web"
)

func main() {
	logger.Println("Starting Keiba Odds Service...")

	// 加载配置
	cfg := config.Load()

	// 连接数据库
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// 运行数据库迁移
	if err := database.Migrate(db); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	logger.Println("Database connected and migrated")

	raceStore := database.NewRaceStore(db)
	oddsStore := database.NewOddsStore(db)

	// 创建飞书通知器
	larkNotifier := services.NewLarkNotifier(cfg.LarkWebhook)
	if err := larkNotifier.NotifyServiceStart(cfg.Environment, cfg.MaxBrowserContexts); err != nil {
		logger.Errorf("Failed to send startup notification: %v", err)
	}

	// 浏览器池 + 健康监控
	pool := browser.NewPool(browser.Config{
		Headless:    cfg.Headless,
		MaxContexts: cfg.MaxBrowserContexts,
		IdleTimeout: cfg.ContextIdleTimeout,
		ErrorLimit:  cfg.BrowserErrorLimit,
	})
	healthMonitor := browser.NewHealthMonitor(pool)

	// 抓取层
	fetcher := scraper.NewFetcher(pool, time.Duration(cfg.ScrapeTimeoutSec)*time.Second)
	marketScraper := scraper.NewMarketScraper(fetcher, "")
	discovery := scraper.NewRaceDiscovery(fetcher, raceStore, "")

	// WebSocket Hub
	wsHub := web.NewHub()
	go wsHub.Run()

	// AMQP 赔率事件发布器（未配置 AMQP_URL 时禁用）
	publisher := services.NewAMQPOddsPublisher(cfg.AMQPURL)
	if err := publisher.Start(); err != nil {
		logger.Errorf("Failed to start odds publisher: %v", err)
		larkNotifier.NotifyError("OddsPublisher", err)
	}

	// 采集编排器 + 调度器
	collector := services.NewOddsCollectionOrchestrator(
		raceStore, oddsStore, marketScraper, cfg.MaxConcurrentCollects, wsHub, publisher)
	scheduler := services.NewCollectionScheduler(
		raceStore, collector, healthMonitor,
		services.CadencePolicy{CollectOvernight: cfg.CollectOvernight})

	// 赛事发现：抓当日和次日的重赏赛事并注册采集任务
	discoverAndSchedule := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		races, err := discovery.GetTodayGradeRaces(ctx)
		if err != nil {
			logger.Errorf("[Main] ❌ Race discovery failed: %v", err)
			larkNotifier.NotifyError("RaceDiscovery", err)
			if recErr := healthMonitor.RecoverFromError("RaceDiscovery", err); recErr != nil {
				logger.Errorf("[Main] ❌ Recovery failed: %v", recErr)
			}
			return
		}

		for _, race := range races {
			if err := raceStore.InsertRace(race.ID, race.Name, race.Venue, race.StartTime); err != nil {
				logger.Errorf("[Main] ❌ Failed to persist race %d: %v", race.ID, err)
				continue
			}
			scheduler.Schedule(race)
		}
		logger.Printf("[Main] ✅ Discovery round done: %d race(s) scheduled", len(races))
	}

	// 状态报告器 (10分钟间隔)
	statusReporter := services.NewStatusReporter(scheduler, collector, pool, 10*time.Minute)
	statusReporter.Start()

	// 数据清理服务
	cleanupService := services.NewDataCleanupService(oddsStore, raceStore, services.CleanupConfig{
		RetainDaysOddsHistory: cfg.RetainDaysOddsHistory,
		RetainDaysRaces:       cfg.RetainDaysRaces,
	})

	// 定时任务（JST）
	c := cron.New(cron.WithLocation(logger.JST))

	// 每天 06:30 与 12:00 扫描赛程
	c.AddFunc("30 6 * * *", discoverAndSchedule)
	c.AddFunc("0 12 * * *", discoverAndSchedule)

	// 每15分钟对照数据库补齐丢失任务
	c.AddFunc("*/15 * * * *", func() {
		if _, err := scheduler.RestoreMissingJobs(); err != nil {
			logger.Errorf("[Main] ❌ Job restore failed: %v", err)
		}
	})

	// 每5分钟浏览器健康检查
	c.AddFunc("*/5 * * * *", func() {
		if err := healthMonitor.HealthCheck(); err != nil {
			logger.Errorf("[Main] ❌ Health check failed: %v", err)
			larkNotifier.NotifyError("HealthMonitor", err)
		}
	})

	// 定期重启浏览器，防止长时间运行的内存泄漏
	c.AddFunc(fmt.Sprintf("0 */%d * * *", cfg.BrowserResetHours), func() {
		logger.Println("[Main] 🔄 Periodic browser reset")
		if err := pool.Reset(); err != nil {
			logger.Errorf("[Main] ❌ Periodic reset failed: %v", err)
			larkNotifier.NotifyError("BrowserPool", err)
			return
		}
		larkNotifier.NotifyBrowserReset("PeriodicReset",
			fmt.Sprintf("scheduled reset every %d hour(s)", cfg.BrowserResetHours))
	})

	// 每天 04:30 清理过期数据（深夜赛事最少的时段）
	c.AddFunc("30 4 * * *", func() {
		cleanupService.ExecuteCleanup()
	})

	// 每天 22:00 发送采集摘要
	c.AddFunc("0 22 * * *", func() {
		if err := larkNotifier.NotifyDailySummary(collector.Stats(), scheduler.ActiveJobCount()); err != nil {
			logger.Errorf("[Main] Failed to send daily summary: %v", err)
		}
	})

	c.Start()
	logger.Println("Cron jobs registered (JST)")

	// 启动时先对照数据库恢复任务，再立即跑一轮发现
	if _, err := scheduler.RestoreMissingJobs(); err != nil {
		logger.Errorf("[Main] ❌ Initial job restore failed: %v", err)
	}
	go discoverAndSchedule()

	// 启动Web服务器
	server := web.NewServer(cfg, db, scheduler, collector, pool, wsHub)
	go func() {
		if err := server.Start(); err != nil {
			logger.Errorf("Web server error: %v", err)
			larkNotifier.NotifyError("Web Server", err)
		}
	}()

	logger.Printf("Web server started on port %s", cfg.Port)
	logger.Println("Service is running. Press Ctrl+C to stop.")

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("Shutting down service...")

	// 清理资源
	c.Stop()
	statusReporter.Stop()
	scheduler.Shutdown()
	publisher.Stop()
	server.Stop()
	pool.Shutdown()

	logger.Println("Service stopped")
}
