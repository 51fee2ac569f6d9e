package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"keiba-odds-service/browser"
)

// ErrPageTimeout 超时类错误。对盘口页面来说意味着"该赛事不提供此玩法"，
// 调用方据此跳过而不是反复重试
var ErrPageTimeout = errors.New("page load timed out")

// Fetcher 通过浏览器池抓取渲染后的页面 HTML
type Fetcher struct {
	pool    *browser.Pool
	timeout time.Duration
}

func NewFetcher(pool *browser.Pool, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 35 * time.Second
	}
	return &Fetcher{pool: pool, timeout: timeout}
}

// FetchHTML 借一个标签页导航到目标地址，等 body 就绪后取整页 HTML
func (f *Fetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	tab, err := f.pool.AcquireContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to acquire browser context: %w", err)
	}
	defer f.pool.ReleaseContext(tab)

	runCtx, cancel := context.WithTimeout(tab.Ctx(), f.timeout)
	defer cancel()

	headers := network.Headers{
		"Accept-Language": "ja,en-US;q=0.8",
		"Cache-Control":   "no-cache",
	}

	var html string
	err = chromedp.Run(runCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "timeout") {
			return "", fmt.Errorf("%w: %s", ErrPageTimeout, url)
		}
		// 非超时错误计入浏览器错误统计，积累到阈值会触发整体重启
		f.pool.RecordError()
		return "", fmt.Errorf("navigation failed for %s: %w", url, err)
	}

	return html, nil
}
