package domain

import "github.com/shopspring/decimal"

// DefaultCurrencyScale 預設精度：小數點後 2 位 (最小單位為分)
const DefaultCurrencyScale int32 = 2

// FormatAmount 將最小貨幣單位轉為顯示用字串，例如 12345 (scale 2) -> "123.45"
func FormatAmount(minor int64, scale int32) string {
	if scale < 0 {
		scale = 0
	}
	return decimal.New(minor, -scale).StringFixed(scale)
}
