package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"keiba-odds-service/logger"
)

// HealthMonitor 浏览器健康检查与统一恢复入口。
// 其他组件遇到未预期错误时一律走 RecoverFromError：整体重启 + 健康检查，
// 两步都成功才算恢复成功
type HealthMonitor struct {
	pool         *Pool
	probeTimeout time.Duration

	// probe 可替换，测试时注入假的探测
	probe func() error
}

func NewHealthMonitor(pool *Pool) *HealthMonitor {
	m := &HealthMonitor{
		pool:         pool,
		probeTimeout: 20 * time.Second,
	}
	m.probe = m.probeNavigate
	return m
}

// probeNavigate 轻量探测：借一个标签页导航到空白页
func (m *HealthMonitor) probeNavigate() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.probeTimeout)
	defer cancel()

	tab, err := m.pool.AcquireContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire context for probe: %w", err)
	}
	defer m.pool.ReleaseContext(tab)

	runCtx, runCancel := context.WithTimeout(tab.Ctx(), m.probeTimeout)
	defer runCancel()
	if err := chromedp.Run(runCtx, chromedp.Navigate("about:blank")); err != nil {
		return fmt.Errorf("probe navigation failed: %w", err)
	}
	return nil
}

// HealthCheck 浏览器不存在时先启动（视为健康）；存在时做探测导航，
// 失败则尝试整体重启并返回重启结果
func (m *HealthMonitor) HealthCheck() error {
	if !m.pool.HasBrowser() {
		logger.Printf("[HealthMonitor] No browser running, initializing...")
		if err := m.pool.EnsureBrowser(); err != nil {
			return fmt.Errorf("browser initialization failed: %w", err)
		}
		return nil
	}

	if err := m.probe(); err != nil {
		logger.Errorf("[HealthMonitor] ❌ Probe failed: %v, resetting browser", err)
		if resetErr := m.pool.Reset(); resetErr != nil {
			return fmt.Errorf("reset after failed probe: %w", resetErr)
		}
		logger.Printf("[HealthMonitor] ✅ Browser reset after failed probe")
		return nil
	}
	return nil
}

// RecoverFromError 统一恢复例程：重启浏览器后做健康检查
func (m *HealthMonitor) RecoverFromError(component string, cause error) error {
	logger.Errorf("[HealthMonitor] 🔄 Recovery triggered by %s: %v", component, cause)

	if err := m.pool.Reset(); err != nil {
		logger.Errorf("[HealthMonitor] ❌ Recovery reset failed: %v", err)
		return fmt.Errorf("recovery reset failed: %w", err)
	}
	if err := m.HealthCheck(); err != nil {
		logger.Errorf("[HealthMonitor] ❌ Recovery health check failed: %v", err)
		return fmt.Errorf("recovery health check failed: %w", err)
	}

	logger.Printf("[HealthMonitor] ✅ Recovery complete (triggered by %s)", component)
	return nil
}
