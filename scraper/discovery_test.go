package scraper

import (
	"testing"
	"time"

	"keiba-odds-service/logger"
)

func TestParseCalendar(t *testing.T) {
	html := `
	<div class="meeting" data-venue-code="44" data-meeting="3" data-day="5">
		<span class="venue-name">大井</span>
	</div>
	<div class="meeting" data-venue-code="30" data-meeting="10" data-day="1">
		<span class="venue-name">船橋</span>
	</div>
	<div class="meeting"><span class="venue-name">属性欠失</span></div>`

	meetings := parseCalendar(mustDoc(t, html))

	if len(meetings) != 2 {
		t.Fatalf("Expected 2 meetings, got %d", len(meetings))
	}
	if meetings[0].Venue != "大井" || meetings[0].VenueCode != 44 || meetings[0].MeetingNum != 3 || meetings[0].DayNum != 5 {
		t.Errorf("Unexpected first meeting: %+v", meetings[0])
	}
}

func TestParseRaceList(t *testing.T) {
	html := `
	<table><tbody>
		<tr class="race-row">
			<td class="race-num">10R</td>
			<td class="race-name">オープン特別</td>
			<td class="start-time">15:10</td>
		</tr>
		<tr class="race-row grade">
			<td class="race-num">11R</td>
			<td class="race-name">東京大賞典<span class="grade-mark">GI</span></td>
			<td class="start-time">15:40</td>
		</tr>
		<tr class="race-row">
			<td class="race-num">1R</td>
			<td class="race-name">C2組</td>
			<td class="start-time">10:05</td>
			<td class="finished">発走済</td>
		</tr>
	</tbody></table>`

	entries := parseRaceList(mustDoc(t, html))

	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[0].IsGrade {
		t.Error("Expected 10R to not be a grade race")
	}
	if !entries[1].IsGrade {
		t.Error("Expected 11R to be a grade race")
	}
	if entries[1].StartHHMM != "15:40" {
		t.Errorf("Expected start time 15:40, got %s", entries[1].StartHHMM)
	}
	if !entries[2].PostPassed {
		t.Error("Expected 1R to be post-passed")
	}
	if entries[1].PostPassed {
		t.Error("Expected 11R to not be post-passed")
	}
}

func TestCombineDateAndTime(t *testing.T) {
	jst := logger.JST
	date := time.Date(2026, 8, 31, 0, 0, 0, 0, jst)

	got, err := combineDateAndTime(date, "15:40", jst)
	if err != nil {
		t.Fatalf("combineDateAndTime failed: %v", err)
	}

	// 15:40 JST == 06:40 UTC
	want := time.Date(2026, 8, 31, 6, 40, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if got.Location() != time.UTC {
		t.Errorf("Expected UTC location, got %v", got.Location())
	}

	if _, err := combineDateAndTime(date, "2540", jst); err == nil {
		t.Error("Expected error for malformed time")
	}
}
