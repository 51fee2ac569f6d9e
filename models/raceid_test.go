package models

import "testing"

func TestBuildRaceID(t *testing.T) {
	// 2026年 場码44 第3回 第5日 第11R
	got := BuildRaceID(2026, 44, 3, 5, 11)
	want := int64(202644030511)
	if got != want {
		t.Errorf("Expected %d, got %d", want, got)
	}
}

func TestRaceIDRoundTrip(t *testing.T) {
	cases := []struct {
		year, venue, meeting, day, race int
	}{
		{2026, 44, 3, 5, 11},
		{2026, 1, 1, 1, 1},
		{1999, 99, 99, 99, 99},
		{2030, 20, 12, 8, 12},
	}

	for _, c := range cases {
		id := BuildRaceID(c.year, c.venue, c.meeting, c.day, c.race)
		year, venue, meeting, day, race, err := ParseRaceID(id)
		if err != nil {
			t.Fatalf("ParseRaceID(%d) failed: %v", id, err)
		}
		if year != c.year || venue != c.venue || meeting != c.meeting || day != c.day || race != c.race {
			t.Errorf("Round trip mismatch for %d: got %d/%d/%d/%d/%d",
				id, year, venue, meeting, day, race)
		}
	}
}

func TestParseRaceIDRejectsOutOfRange(t *testing.T) {
	for _, id := range []int64{0, -1, 189999999999, 10000000000000} {
		if _, _, _, _, _, err := ParseRaceID(id); err == nil {
			t.Errorf("Expected error for id %d", id)
		}
	}
}

func TestRaceIDSortsChronologically(t *testing.T) {
	// 同一日内按场、回、日、R递增；跨年按年份递增
	earlier := BuildRaceID(2026, 44, 3, 5, 1)
	later := BuildRaceID(2026, 44, 3, 5, 12)
	nextYear := BuildRaceID(2027, 1, 1, 1, 1)

	if !(earlier < later && later < nextYear) {
		t.Errorf("Expected %d < %d < %d", earlier, later, nextYear)
	}
}
