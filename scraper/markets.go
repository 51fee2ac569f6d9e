package scraper

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"keiba-odds-service/logger"
	"keiba-odds-service/models"
)

// DefaultBaseURL 地方竞马赔率站点
const DefaultBaseURL = "https://www.keiba.go.jp"

// marketPaths 各玩法对应的页面路径段
var marketPaths = map[models.BetType]string{
	models.BetTypeWinPlace:   "tanfuku",
	models.BetTypeWakuren:    "wakuren",
	models.BetTypeUmaren:     "umaren",
	models.BetTypeUmatan:     "umatan",
	models.BetTypeWide:       "wide",
	models.BetTypeSanrenpuku: "sanrenfuku",
	models.BetTypeSanrentan:  "sanrentan",
}

// MarketScraper 抓取并解析单个玩法的赔率页面
type MarketScraper struct {
	fetcher *Fetcher
	baseURL string
	now     func() time.Time
}

func NewMarketScraper(fetcher *Fetcher, baseURL string) *MarketScraper {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &MarketScraper{
		fetcher: fetcher,
		baseURL: baseURL,
		now:     time.Now,
	}
}

// ScrapeMarket 抓取指定赛事指定玩法的全部赔率。
// 页面超时返回 ErrPageTimeout（视为该赛事不开放此玩法）
func (m *MarketScraper) ScrapeMarket(ctx context.Context, raceID int64, betType models.BetType) ([]models.OddsQuote, error) {
	path, ok := marketPaths[betType]
	if !ok {
		return nil, fmt.Errorf("unknown bet type: %s", betType)
	}

	url := fmt.Sprintf("%s/keiba/odds/%s/%d", m.baseURL, path, raceID)
	html, err := m.fetcher.FetchHTML(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse odds page: %w", err)
	}

	capturedAt := m.now().UTC()
	var quotes []models.OddsQuote
	switch betType {
	case models.BetTypeWinPlace:
		quotes = parseWinPlaceTable(doc, raceID, capturedAt)
	case models.BetTypeWide:
		quotes = parseBandPairTable(doc, raceID, betType, capturedAt)
	case models.BetTypeWakuren, models.BetTypeUmaren, models.BetTypeUmatan:
		quotes = parseCombinationTable(doc, raceID, betType, 2, capturedAt)
	case models.BetTypeSanrenpuku, models.BetTypeSanrentan:
		quotes = parseCombinationTable(doc, raceID, betType, 3, capturedAt)
	}

	logger.Printf("[MarketScraper] Race %d %s: parsed %d quote(s)", raceID, betType, len(quotes))
	return quotes, nil
}

var (
	// 组合键，如 "3-7"、"3→7"、"1-2-5"
	combinationPattern = regexp.MustCompile(`^\d{1,2}(?:\s*[-→>]\s*\d{1,2}){1,2}$`)
	// 赔率区间，如 "1.2 - 3.4"
	bandPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*[-～]\s*(\d+(?:\.\d+)?)$`)
)

// parseOdds 解析单值赔率。"---" 等占位符返回 false
func parseOdds(text string) (float64, bool) {
	text = strings.TrimSpace(strings.ReplaceAll(text, ",", ""))
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// parseBand 解析区间赔率 "1.2 - 3.4"
func parseBand(text string) (float64, float64, bool) {
	matches := bandPattern.FindStringSubmatch(strings.TrimSpace(text))
	if matches == nil {
		return 0, 0, false
	}
	lo, err1 := strconv.ParseFloat(matches[1], 64)
	hi, err2 := strconv.ParseFloat(matches[2], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// parseCombination 解析组合键 "3-7" / "3→7" / "1-2-5"
func parseCombination(text string, want int) ([]int, bool) {
	text = strings.TrimSpace(text)
	if !combinationPattern.MatchString(text) {
		return nil, false
	}
	parts := regexp.MustCompile(`[-→>]`).Split(text, -1)
	if len(parts) != want {
		return nil, false
	}
	numbers := make([]int, 0, want)
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			return nil, false
		}
		numbers = append(numbers, n)
	}
	return numbers, true
}

// parseWinPlaceTable 解析単勝・複勝页面。
// 每行: 馬番 | 馬名 | 単勝オッズ | 複勝オッズ区间
func parseWinPlaceTable(doc *goquery.Document, raceID int64, capturedAt time.Time) []models.OddsQuote {
	var quotes []models.OddsQuote

	doc.Find("table.oddsTable tbody tr, table.odds-table tbody tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}

		number, err := strconv.Atoi(strings.TrimSpace(cells.Eq(0).Text()))
		if err != nil || number <= 0 {
			return
		}
		name := strings.TrimSpace(cells.Eq(1).Text())
		if name == "" {
			return
		}

		quote := models.OddsQuote{
			RaceID:     raceID,
			BetType:    models.BetTypeWinPlace,
			HorseName:  name,
			Numbers:    []int{number},
			CapturedAt: capturedAt,
		}

		win, winOK := parseOdds(cells.Eq(2).Text())
		lo, hi, bandOK := parseBand(cells.Eq(3).Text())
		if !winOK && !bandOK {
			return
		}
		if winOK {
			quote.Odds = win
		}
		if bandOK {
			quote.OddsMin = lo
			quote.OddsMax = hi
		}
		quotes = append(quotes, quote)
	})

	return quotes
}

// parseCombinationTable 解析单值组合赔率页面（枠連/馬連/馬単/三連複/三連単）。
// 每行: 組み合わせ | オッズ
func parseCombinationTable(doc *goquery.Document, raceID int64, betType models.BetType, want int, capturedAt time.Time) []models.OddsQuote {
	var quotes []models.OddsQuote

	doc.Find("table.oddsTable tbody tr, table.odds-table tbody tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}

		numbers, ok := parseCombination(cells.Eq(0).Text(), want)
		if !ok {
			return
		}
		odds, ok := parseOdds(cells.Eq(1).Text())
		if !ok {
			return
		}

		quotes = append(quotes, models.OddsQuote{
			RaceID:     raceID,
			BetType:    betType,
			Numbers:    numbers,
			Odds:       odds,
			CapturedAt: capturedAt,
		})
	})

	return quotes
}

// parseBandPairTable 解析ワイド页面（组合 + 区间赔率）。
// 每行: 組み合わせ | 最低オッズ〜最高オッズ
func parseBandPairTable(doc *goquery.Document, raceID int64, betType models.BetType, capturedAt time.Time) []models.OddsQuote {
	var quotes []models.OddsQuote

	doc.Find("table.oddsTable tbody tr, table.odds-table tbody tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}

		numbers, ok := parseCombination(cells.Eq(0).Text(), 2)
		if !ok {
			return
		}
		lo, hi, ok := parseBand(cells.Eq(1).Text())
		if !ok {
			return
		}

		quotes = append(quotes, models.OddsQuote{
			RaceID:     raceID,
			BetType:    betType,
			Numbers:    numbers,
			OddsMin:    lo,
			OddsMax:    hi,
			CapturedAt: capturedAt,
		})
	})

	return quotes
}
