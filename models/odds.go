package models

import "time"

// BetType 投注种类标签
type BetType string

const (
	BetTypeWinPlace   BetType = "win_place"  // 単勝・複勝（同一页面）
	BetTypeWakuren    BetType = "wakuren"    // 枠連（无序枠号2连）
	BetTypeUmaren     BetType = "umaren"     // 馬連（无序马号2连）
	BetTypeUmatan     BetType = "umatan"     // 馬単（有序马号2连）
	BetTypeWide       BetType = "wide"       // ワイド（无序马号2连，区间赔率）
	BetTypeSanrenpuku BetType = "sanrenpuku" // 三連複（无序马号3连）
	BetTypeSanrentan  BetType = "sanrentan"  // 三連単（有序马号3连）
)

// AllBetTypes 一次采集遍历的固定顺序
var AllBetTypes = []BetType{
	BetTypeWinPlace,
	BetTypeWakuren,
	BetTypeUmaren,
	BetTypeUmatan,
	BetTypeWide,
	BetTypeSanrenpuku,
	BetTypeSanrentan,
}

// OddsQuote 单条赔率报价。MarketScraper 产出，采集编排器按 BetType 路由入库
//
// 各字段的使用约定:
//   - win_place: HorseName + Numbers[0]=马号, Odds=単勝, OddsMin/OddsMax=複勝区间
//   - wakuren/umaren/umatan: Numbers[0..1], Odds
//   - wide: Numbers[0..1], OddsMin/OddsMax
//   - sanrenpuku/sanrentan: Numbers[0..2], Odds
type OddsQuote struct {
	RaceID     int64
	BetType    BetType
	HorseName  string
	Numbers    []int // 马号或枠号，1-3个
	Odds       float64
	OddsMin    float64
	OddsMax    float64
	CapturedAt time.Time
}
