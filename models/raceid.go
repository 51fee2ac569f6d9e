package models

import "fmt"

// 赛事ID编码: YEAR(4) ++ VENUE(2) ++ MEETING(2) ++ DAY(2) ++ RACE(2)
// 定宽十进制，按整数比较即可按时间顺序排序
// 例: 2026年 场码44 第3回 第5日 第11R -> 2026440305 11 -> 202644030511

// BuildRaceID 按定宽十进制拼装赛事ID
func BuildRaceID(year, venueCode, meetingNum, dayNum, raceNum int) int64 {
	return int64(year)*1_0000_0000 +
		int64(venueCode)*1_00_00_00 +
		int64(meetingNum)*1_00_00 +
		int64(dayNum)*1_00 +
		int64(raceNum)
}

// ParseRaceID 拆解赛事ID各字段
func ParseRaceID(id int64) (year, venueCode, meetingNum, dayNum, raceNum int, err error) {
	if id < 1900_00_00_00_00 || id > 9999_99_99_99_99 {
		return 0, 0, 0, 0, 0, fmt.Errorf("invalid race id: %d", id)
	}
	raceNum = int(id % 100)
	id /= 100
	dayNum = int(id % 100)
	id /= 100
	meetingNum = int(id % 100)
	id /= 100
	venueCode = int(id % 100)
	id /= 100
	year = int(id)
	return year, venueCode, meetingNum, dayNum, raceNum, nil
}
