package scraper

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"keiba-odds-service/models"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("Failed to parse test HTML: %v", err)
	}
	return doc
}

func TestParseWinPlaceTable(t *testing.T) {
	html := `
	<table class="oddsTable"><tbody>
		<tr><td>1</td><td>サンライズホープ</td><td>2.4</td><td>1.1 - 1.3</td></tr>
		<tr><td>2</td><td>キタノブレイブ</td><td>15.8</td><td>3.2 - 5.6</td></tr>
		<tr><td>3</td><td>トウカイメロディ</td><td>---</td><td>---</td></tr>
	</tbody></table>`

	quotes := parseWinPlaceTable(mustDoc(t, html), 202644030511, time.Now())

	if len(quotes) != 2 {
		t.Fatalf("Expected 2 quotes, got %d", len(quotes))
	}
	if quotes[0].HorseName != "サンライズホープ" {
		t.Errorf("Expected horse name 'サンライズホープ', got '%s'", quotes[0].HorseName)
	}
	if quotes[0].Odds != 2.4 {
		t.Errorf("Expected win odds 2.4, got %v", quotes[0].Odds)
	}
	if quotes[0].OddsMin != 1.1 || quotes[0].OddsMax != 1.3 {
		t.Errorf("Expected place band 1.1-1.3, got %v-%v", quotes[0].OddsMin, quotes[0].OddsMax)
	}
	if quotes[1].Numbers[0] != 2 {
		t.Errorf("Expected horse number 2, got %d", quotes[1].Numbers[0])
	}
}

func TestParseCombinationTable(t *testing.T) {
	html := `
	<table class="oddsTable"><tbody>
		<tr><td>1-2</td><td>8.3</td></tr>
		<tr><td>7-12</td><td>142.6</td></tr>
		<tr><td>bad</td><td>1.0</td></tr>
	</tbody></table>`

	quotes := parseCombinationTable(mustDoc(t, html), 202644030511, models.BetTypeUmaren, 2, time.Now())

	if len(quotes) != 2 {
		t.Fatalf("Expected 2 quotes, got %d", len(quotes))
	}
	if quotes[1].Numbers[0] != 7 || quotes[1].Numbers[1] != 12 {
		t.Errorf("Expected combination 7-12, got %v", quotes[1].Numbers)
	}
	if quotes[1].Odds != 142.6 {
		t.Errorf("Expected odds 142.6, got %v", quotes[1].Odds)
	}
}

func TestParseCombinationTableOrdered(t *testing.T) {
	html := `
	<table class="oddsTable"><tbody>
		<tr><td>5→2→9</td><td>1254.0</td></tr>
	</tbody></table>`

	quotes := parseCombinationTable(mustDoc(t, html), 202644030511, models.BetTypeSanrentan, 3, time.Now())

	if len(quotes) != 1 {
		t.Fatalf("Expected 1 quote, got %d", len(quotes))
	}
	want := []int{5, 2, 9}
	for i, n := range want {
		if quotes[0].Numbers[i] != n {
			t.Errorf("Expected ordered combination %v, got %v", want, quotes[0].Numbers)
			break
		}
	}
}

func TestParseBandPairTable(t *testing.T) {
	html := `
	<table class="oddsTable"><tbody>
		<tr><td>3-8</td><td>2.1 - 4.5</td></tr>
	</tbody></table>`

	quotes := parseBandPairTable(mustDoc(t, html), 202644030511, models.BetTypeWide, time.Now())

	if len(quotes) != 1 {
		t.Fatalf("Expected 1 quote, got %d", len(quotes))
	}
	if quotes[0].OddsMin != 2.1 || quotes[0].OddsMax != 4.5 {
		t.Errorf("Expected band 2.1-4.5, got %v-%v", quotes[0].OddsMin, quotes[0].OddsMax)
	}
}

func TestParseCombination(t *testing.T) {
	cases := []struct {
		text string
		want int
		ok   bool
	}{
		{"3-7", 2, true},
		{"3→7", 2, true},
		{"1-2-5", 3, true},
		{"3-7", 3, false},
		{"0-7", 2, false},
		{"abc", 2, false},
	}

	for _, c := range cases {
		_, ok := parseCombination(c.text, c.want)
		if ok != c.ok {
			t.Errorf("parseCombination(%q, %d): expected ok=%v, got %v", c.text, c.want, c.ok, ok)
		}
	}
}
