package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"keiba-odds-service/logger"
)

// Config 浏览器池配置
type Config struct {
	Headless    bool
	MaxContexts int           // 同时存在的标签页上限
	IdleTimeout time.Duration // 空闲标签页回收时间
	ErrorLimit  int           // 累计错误达到该值时强制重启浏览器
	UserAgent   string
}

// DefaultUserAgent 默认 UA，贴近普通桌面浏览器
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36"

// acquireWait 池满时等待重试的间隔
const acquireWait = 500 * time.Millisecond

// Tab 从池中借出的标签页上下文
type Tab struct {
	ctx      context.Context
	cancel   context.CancelFunc
	inUse    bool
	lastUsed time.Time
}

// Ctx 返回可用于 chromedp.Run 的上下文
func (t *Tab) Ctx() context.Context {
	return t.ctx
}

// Pool 管理单个 headless 浏览器进程及其标签页池。
// 标签页按需创建、空闲复用、超时回收；整体重启（Reset）是唯一的
// 浏览器级恢复手段，可重入安全
type Pool struct {
	config Config

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	browserCtx    context.Context
	tabs          []*Tab
	errorCount    int

	resetting bool
	resetDone chan struct{}

	sweepStop chan struct{}
	sweepOnce sync.Once

	// launch 可替换，测试时注入假的浏览器启动
	launch func() (context.Context, context.CancelFunc, context.CancelFunc, error)
	newTab func(parent context.Context) (context.Context, context.CancelFunc)
}

// NewPool 创建浏览器池（浏览器进程延迟到首次使用时启动）
func NewPool(config Config) *Pool {
	if config.MaxContexts <= 0 {
		config.MaxContexts = 3
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 10 * time.Minute
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	p := &Pool{
		config:    config,
		sweepStop: make(chan struct{}),
	}
	p.launch = p.launchBrowser
	p.newTab = func(parent context.Context) (context.Context, context.CancelFunc) {
		return chromedp.NewContext(parent)
	}
	return p
}

// launchBrowser 启动 headless 浏览器并做一次启动自检
func (p *Pool) launchBrowser() (context.Context, context.CancelFunc, context.CancelFunc, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(p.config.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// 启动自检，失败说明浏览器根本起不来
	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return nil, nil, nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	return browserCtx, browserCancel, allocCancel, nil
}

// ensureBrowserLocked 浏览器不存在时启动（调用方必须持有锁）
func (p *Pool) ensureBrowserLocked() error {
	if p.browserCtx != nil {
		return nil
	}

	logger.Printf("[BrowserPool] 🚀 Launching browser (headless=%v)...", p.config.Headless)
	browserCtx, browserCancel, allocCancel, err := p.launch()
	if err != nil {
		return err
	}
	p.browserCtx = browserCtx
	p.browserCancel = browserCancel
	p.allocCancel = allocCancel
	logger.Printf("[BrowserPool] ✅ Browser launched")

	// 首次启动后开始空闲回收
	p.sweepOnce.Do(func() {
		go p.sweepIdle()
	})
	return nil
}

// HasBrowser 浏览器进程是否已启动
func (p *Pool) HasBrowser() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.browserCtx != nil
}

// EnsureBrowser 浏览器不存在时启动
func (p *Pool) EnsureBrowser() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensureBrowserLocked()
}

// AcquireContext 借出一个标签页：优先复用空闲页，池未满时新建，
// 池满时等待重试直到 ctx 超时
func (p *Pool) AcquireContext(ctx context.Context) (*Tab, error) {
	for {
		p.mu.Lock()

		if p.resetting {
			// 重启进行中，等它结束再借
			done := p.resetDone
			p.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := p.ensureBrowserLocked(); err != nil {
			p.mu.Unlock()
			return nil, err
		}

		// 复用空闲标签页
		for _, tab := range p.tabs {
			if !tab.inUse {
				tab.inUse = true
				p.mu.Unlock()
				return tab, nil
			}
		}

		// 池未满时新建
		if len(p.tabs) < p.config.MaxContexts {
			tabCtx, tabCancel := p.newTab(p.browserCtx)
			tab := &Tab{
				ctx:      tabCtx,
				cancel:   tabCancel,
				inUse:    true,
				lastUsed: time.Now(),
			}
			p.tabs = append(p.tabs, tab)
			p.mu.Unlock()
			logger.Printf("[BrowserPool] New tab context created (%d/%d)", len(p.tabs), p.config.MaxContexts)
			return tab, nil
		}

		p.mu.Unlock()

		// 池已满，等待后重试
		select {
		case <-time.After(acquireWait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// ReleaseContext 归还标签页
func (p *Pool) ReleaseContext(tab *Tab) {
	if tab == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	tab.inUse = false
	tab.lastUsed = time.Now()
}

// RecordError 记录一次浏览器相关错误。累计超过阈值时触发整体重启
func (p *Pool) RecordError() {
	p.mu.Lock()
	p.errorCount++
	count := p.errorCount
	limit := p.config.ErrorLimit
	p.mu.Unlock()

	if limit > 0 && count >= limit {
		logger.Printf("[BrowserPool] ⚠️  Error count reached %d, forcing browser reset", count)
		go func() {
			if err := p.Reset(); err != nil {
				logger.Errorf("[BrowserPool] ❌ Forced reset failed: %v", err)
			}
		}()
	}
}

// Reset 整体重启：关闭全部标签页和浏览器进程后重新启动。
// 重入安全——已有重启进行中时等待其完成，不会并发启动两个浏览器
func (p *Pool) Reset() error {
	p.mu.Lock()
	if p.resetting {
		done := p.resetDone
		p.mu.Unlock()
		<-done
		return nil
	}
	p.resetting = true
	p.resetDone = make(chan struct{})
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.resetting = false
		close(p.resetDone)
		p.mu.Unlock()
	}()

	logger.Printf("[BrowserPool] 🔄 Resetting browser...")
	p.teardown()

	p.mu.Lock()
	err := p.ensureBrowserLocked()
	p.errorCount = 0
	p.mu.Unlock()

	if err != nil {
		logger.Errorf("[BrowserPool] ❌ Browser relaunch failed: %v", err)
		return err
	}
	logger.Printf("[BrowserPool] ✅ Browser reset complete")
	return nil
}

// teardown 关闭全部标签页和浏览器进程
func (p *Pool) teardown() {
	p.mu.Lock()
	tabs := p.tabs
	browserCancel := p.browserCancel
	allocCancel := p.allocCancel
	p.tabs = nil
	p.browserCtx = nil
	p.browserCancel = nil
	p.allocCancel = nil
	p.mu.Unlock()

	for _, tab := range tabs {
		tab.cancel()
	}
	if browserCancel != nil {
		browserCancel()
	}
	if allocCancel != nil {
		allocCancel()
	}
}

// Shutdown 停止空闲回收并关闭浏览器
func (p *Pool) Shutdown() {
	close(p.sweepStop)
	p.teardown()
	logger.Printf("[BrowserPool] 🛑 Shut down")
}

// sweepIdle 定期关闭超时未用的空闲标签页，限制资源增长
func (p *Pool) sweepIdle() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.closeIdleTabs()
		case <-p.sweepStop:
			return
		}
	}
}

func (p *Pool) closeIdleTabs() {
	cutoff := time.Now().Add(-p.config.IdleTimeout)

	p.mu.Lock()
	var kept []*Tab
	var closed []*Tab
	for _, tab := range p.tabs {
		if !tab.inUse && tab.lastUsed.Before(cutoff) {
			closed = append(closed, tab)
		} else {
			kept = append(kept, tab)
		}
	}
	p.tabs = kept
	p.mu.Unlock()

	for _, tab := range closed {
		tab.cancel()
	}
	if len(closed) > 0 {
		logger.Printf("[BrowserPool] Closed %d idle tab context(s)", len(closed))
	}
}

// Stats 池当前状态（状态页用）
func (p *Pool) Stats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	inUse := 0
	for _, tab := range p.tabs {
		if tab.inUse {
			inUse++
		}
	}
	return map[string]interface{}{
		"browser_running": p.browserCtx != nil,
		"tabs_total":      len(p.tabs),
		"tabs_in_use":     inUse,
		"max_contexts":    p.config.MaxContexts,
		"error_count":     p.errorCount,
		"resetting":       p.resetting,
	}
}
