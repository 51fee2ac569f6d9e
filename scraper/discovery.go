package scraper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"keiba-odds-service/logger"
	"keiba-odds-service/models"
)

// RaceRegistry 发现流程需要的最小存储接口
type RaceRegistry interface {
	InsertRace(id int64, name, venue string, startTime time.Time) error
	UpdateRaceStatus(id int64, status string) error
}

// RaceDiscovery 扫描开催日历，提取重赏赛事构建 RaceInfo。
// 已发走的赛事作为副作用直接在存储中标记为 done，不再返回
type RaceDiscovery struct {
	fetcher *Fetcher
	store   RaceRegistry
	baseURL string
	now     func() time.Time
}

func NewRaceDiscovery(fetcher *Fetcher, store RaceRegistry, baseURL string) *RaceDiscovery {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &RaceDiscovery{
		fetcher: fetcher,
		store:   store,
		baseURL: baseURL,
		now:     time.Now,
	}
}

// meetingEntry 日历页上的单个开催
type meetingEntry struct {
	Venue      string
	VenueCode  int
	MeetingNum int
	DayNum     int
}

// raceEntry 开催页上的单场赛事
type raceEntry struct {
	RaceNum    int
	Name       string
	IsGrade    bool
	StartHHMM  string // "15:40"
	PostPassed bool
}

// GetTodayGradeRaces 扫描今明两天的开催，返回全部重赏赛事
func (d *RaceDiscovery) GetTodayGradeRaces(ctx context.Context) ([]models.RaceInfo, error) {
	jst := logger.JST
	today := d.now().In(jst)

	var result []models.RaceInfo
	for _, date := range []time.Time{today, today.AddDate(0, 0, 1)} {
		races, err := d.discoverDate(ctx, date)
		if err != nil {
			// 明天的日历可能还没出，单日失败不致命
			logger.Errorf("[RaceDiscovery] ⚠️  Failed to discover %s: %v", date.Format("2006-01-02"), err)
			continue
		}
		result = append(result, races...)
	}

	logger.Printf("[RaceDiscovery] Found %d grade race(s) for today/tomorrow", len(result))
	return result, nil
}

// discoverDate 扫描单日日历及其各开催的出走表
func (d *RaceDiscovery) discoverDate(ctx context.Context, date time.Time) ([]models.RaceInfo, error) {
	jst := logger.JST
	dateStr := date.In(jst).Format("20060102")

	calendarURL := fmt.Sprintf("%s/keiba/calendar/%s", d.baseURL, dateStr)
	html, err := d.fetcher.FetchHTML(ctx, calendarURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch calendar: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	meetings := parseCalendar(doc)
	var result []models.RaceInfo

	for _, meeting := range meetings {
		races, err := d.discoverMeeting(ctx, date, meeting)
		if err != nil {
			logger.Errorf("[RaceDiscovery] ⚠️  Failed to discover meeting %s: %v", meeting.Venue, err)
			continue
		}
		result = append(result, races...)
	}
	return result, nil
}

// discoverMeeting 扫描单个开催的出走表
func (d *RaceDiscovery) discoverMeeting(ctx context.Context, date time.Time, meeting meetingEntry) ([]models.RaceInfo, error) {
	jst := logger.JST
	dateJST := date.In(jst)
	dateStr := dateJST.Format("20060102")

	listURL := fmt.Sprintf("%s/keiba/racelist/%s/%02d", d.baseURL, dateStr, meeting.VenueCode)
	html, err := d.fetcher.FetchHTML(ctx, listURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch race list: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse race list: %w", err)
	}

	entries := parseRaceList(doc)
	var result []models.RaceInfo

	for _, entry := range entries {
		raceID := models.BuildRaceID(dateJST.Year(), meeting.VenueCode, meeting.MeetingNum, meeting.DayNum, entry.RaceNum)

		startTime, err := combineDateAndTime(dateJST, entry.StartHHMM, jst)
		if err != nil {
			logger.Errorf("[RaceDiscovery] ⚠️  Race %d: bad start time %q: %v", raceID, entry.StartHHMM, err)
			continue
		}

		if entry.PostPassed {
			// 页面已显示发走済：直接落库标记为 done，不进调度
			if err := d.store.InsertRace(raceID, entry.Name, meeting.Venue, startTime); err != nil {
				logger.Errorf("[RaceDiscovery] ❌ Failed to register passed race %d: %v", raceID, err)
				continue
			}
			if err := d.store.UpdateRaceStatus(raceID, models.RaceStatusDone); err != nil {
				logger.Errorf("[RaceDiscovery] ❌ Failed to mark race %d done: %v", raceID, err)
			}
			continue
		}

		if !entry.IsGrade {
			continue
		}

		result = append(result, models.RaceInfo{
			ID:        raceID,
			Name:      entry.Name,
			Venue:     meeting.Venue,
			StartTime: startTime,
			IsGrade:   true,
		})
	}
	return result, nil
}

// combineDateAndTime 把 JST 日期和 "15:40" 形式的发走时刻合成 UTC 时间。
// 时区换算只在这里做一次，后续比较一律使用 UTC
func combineDateAndTime(date time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(hhmm), ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("malformed time: %q", hhmm)
	}
	hour, err1 := strconv.Atoi(parts[0])
	minute, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("malformed time: %q", hhmm)
	}

	local := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc)
	return local.UTC(), nil
}

// parseCalendar 解析日历页的开催一览
func parseCalendar(doc *goquery.Document) []meetingEntry {
	var meetings []meetingEntry

	doc.Find("div.meeting, li.meeting").Each(func(i int, sel *goquery.Selection) {
		venueCode, err1 := strconv.Atoi(strings.TrimSpace(sel.AttrOr("data-venue-code", "")))
		meetingNum, err2 := strconv.Atoi(strings.TrimSpace(sel.AttrOr("data-meeting", "")))
		dayNum, err3 := strconv.Atoi(strings.TrimSpace(sel.AttrOr("data-day", "")))
		if err1 != nil || err2 != nil || err3 != nil {
			return
		}

		venue := strings.TrimSpace(sel.Find(".venue-name").First().Text())
		if venue == "" {
			venue = strings.TrimSpace(sel.Text())
		}
		if venue == "" || venueCode <= 0 {
			return
		}

		meetings = append(meetings, meetingEntry{
			Venue:      venue,
			VenueCode:  venueCode,
			MeetingNum: meetingNum,
			DayNum:     dayNum,
		})
	})

	return meetings
}

// parseRaceList 解析开催页的赛事一览
func parseRaceList(doc *goquery.Document) []raceEntry {
	var entries []raceEntry

	doc.Find("tr.race-row").Each(func(i int, row *goquery.Selection) {
		numText := strings.TrimSpace(row.Find(".race-num").First().Text())
		numText = strings.TrimSuffix(numText, "R")
		raceNum, err := strconv.Atoi(numText)
		if err != nil || raceNum <= 0 {
			return
		}

		name := strings.TrimSpace(row.Find(".race-name").First().Text())
		startTime := strings.TrimSpace(row.Find(".start-time").First().Text())
		if name == "" || startTime == "" {
			return
		}

		// 重赏标记：行内グレード图标或行 class 带 grade
		isGrade := row.Find(".grade-mark").Length() > 0 ||
			strings.Contains(row.AttrOr("class", ""), "grade")

		// 発走済マーク
		postPassed := row.Find(".finished").Length() > 0 ||
			strings.Contains(row.Text(), "発走済")

		entries = append(entries, raceEntry{
			RaceNum:    raceNum,
			Name:       name,
			IsGrade:    isGrade,
			StartHHMM:  startTime,
			PostPassed: postPassed,
		})
	})

	return entries
}
