package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"keiba-odds-service/logger"
)

// LarkNotifier 飞书机器人通知器。未配置 webhook 时禁用，所有方法静默返回
type LarkNotifier struct {
	webhookURL string
	client     *http.Client
	enabled    bool
}

// NewLarkNotifier 创建飞书通知器
func NewLarkNotifier(webhookURL string) *LarkNotifier {
	enabled := webhookURL != ""
	if enabled {
		logger.Printf("[LarkNotifier] Initialized with webhook")
	} else {
		logger.Printf("[LarkNotifier] Disabled (no webhook URL)")
	}

	return &LarkNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		enabled:    enabled,
	}
}

// LarkMessage 飞书消息结构
type LarkMessage struct {
	MsgType string      `json:"msg_type"`
	Content interface{} `json:"content"`
}

// LarkTextContent 文本消息内容
type LarkTextContent struct {
	Text string `json:"text"`
}

// LarkPostContent 富文本消息内容
type LarkPostContent struct {
	Post LarkPost `json:"post"`
}

type LarkPost struct {
	ZhCn LarkPostLang `json:"zh_cn"`
}

type LarkPostLang struct {
	Title   string          `json:"title"`
	Content [][]LarkElement `json:"content"`
}

type LarkElement struct {
	Tag  string `json:"tag"`
	Text string `json:"text,omitempty"`
	Href string `json:"href,omitempty"`
}

// SendText 发送文本消息
func (n *LarkNotifier) SendText(text string) error {
	if !n.enabled {
		return nil
	}

	message := LarkMessage{
		MsgType: "text",
		Content: LarkTextContent{
			Text: text,
		},
	}

	return n.send(message)
}

// SendRichText 发送富文本消息
func (n *LarkNotifier) SendRichText(title string, content [][]LarkElement) error {
	if !n.enabled {
		return nil
	}

	message := LarkMessage{
		MsgType: "post",
		Content: LarkPostContent{
			Post: LarkPost{
				ZhCn: LarkPostLang{
					Title:   title,
					Content: content,
				},
			},
		},
	}

	return n.send(message)
}

// send 发送消息
func (n *LarkNotifier) send(message LarkMessage) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	resp, err := n.client.Post(n.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

// NotifyServiceStart 通知服务启动
func (n *LarkNotifier) NotifyServiceStart(environment string, maxContexts int) error {
	content := [][]LarkElement{
		{
			{Tag: "text", Text: "🚀 服务启动\n"},
		},
		{
			{Tag: "text", Text: fmt.Sprintf("环境: %s\n", environment)},
		},
		{
			{Tag: "text", Text: fmt.Sprintf("浏览器上下文上限: %d\n", maxContexts)},
		},
		{
			{Tag: "text", Text: fmt.Sprintf("时间: %s", time.Now().In(logger.JST).Format("2006-01-02 15:04:05"))},
		},
	}

	return n.SendRichText("Keiba Odds Service Started", content)
}

// NotifyBrowserReset 通知浏览器重启
func (n *LarkNotifier) NotifyBrowserReset(component, reason string) error {
	content := [][]LarkElement{
		{
			{Tag: "text", Text: "🔄 浏览器重启\n"},
		},
		{
			{Tag: "text", Text: fmt.Sprintf("触发组件: %s\n", component)},
		},
		{
			{Tag: "text", Text: fmt.Sprintf("原因: %s\n", reason)},
		},
		{
			{Tag: "text", Text: fmt.Sprintf("时间: %s", time.Now().In(logger.JST).Format("2006-01-02 15:04:05"))},
		},
	}

	return n.SendRichText("Browser Reset", content)
}

// NotifyDailySummary 通知每日采集摘要
func (n *LarkNotifier) NotifyDailySummary(stats CollectorStats, activeJobs int) error {
	content := [][]LarkElement{
		{
			{Tag: "text", Text: "📊 每日采集摘要\n"},
		},
		{
			{Tag: "text", Text: fmt.Sprintf("累计采集: %d（失败 %d）\n", stats.CollectsTotal, stats.CollectsFailed)},
		},
		{
			{Tag: "text", Text: fmt.Sprintf("入库报价: %d 条\n", stats.QuotesStored)},
		},
		{
			{Tag: "text", Text: fmt.Sprintf("跳过玩法: %d 次\n", stats.MarketsSkipped)},
		},
		{
			{Tag: "text", Text: fmt.Sprintf("活动任务: %d\n", activeJobs)},
		},
		{
			{Tag: "text", Text: fmt.Sprintf("时间: %s", time.Now().In(logger.JST).Format("2006-01-02 15:04:05"))},
		},
	}

	return n.SendRichText("Daily Collection Summary", content)
}

// NotifyError 通知严重错误
func (n *LarkNotifier) NotifyError(component string, err error) error {
	text := fmt.Sprintf("❌ [%s] %v\n时间: %s",
		component, err, time.Now().In(logger.JST).Format("2006-01-02 15:04:05"))
	return n.SendText(text)
}
