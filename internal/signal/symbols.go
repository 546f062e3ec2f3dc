package signal

import (
	"regexp"
	"strings"
)

// knownBases базовые активы, которые распознаются даже без тега и котировки
var knownBases = []string{
	"BTC", "ETH", "BNB", "ADA", "DOT", "LINK", "XRP", "DOGE", "SOL", "MATIC",
	"LTC", "BCH", "XLM", "ETC", "TRX", "AVAX", "UNI", "ATOM", "FIL", "ALGO",
	"NEAR", "FTM", "SAND", "MANA", "ENJ", "AAVE", "MKR",
}

var quoteAssets = []string{"USDT", "USDC", "BUSD", "BTC", "ETH"}

var (
	tagRe        = regexp.MustCompile(`#([A-Za-z0-9]+)`)
	labelPairRe  = regexp.MustCompile(`(?i)\b(?:symbol|pair|coin)\s*[:=\-]\s*([A-Za-z0-9]+(?:/[A-Za-z0-9]+)?)`)
	stablePairRe = regexp.MustCompile(`\b([A-Z0-9]{2,12}?)/?(USDT|USDC|BUSD)\b`)
	crossPairRe  = regexp.MustCompile(`\b([A-Z0-9]{2,12})/(BTC|ETH)\b`)
)

// NormalizeSymbol приводит символ к виду BTCUSDT
func NormalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	symbol = strings.TrimPrefix(symbol, "#")
	symbol = strings.ReplaceAll(symbol, "/", "")
	if symbol == "" {
		return ""
	}
	if isKnownBase(symbol) || !hasQuoteSuffix(symbol) {
		return symbol + "USDT"
	}
	return symbol
}

func isKnownBase(symbol string) bool {
	for _, b := range knownBases {
		if symbol == b {
			return true
		}
	}
	return false
}

// hasQuoteSuffix требует непустую базу перед котировкой
func hasQuoteSuffix(symbol string) bool {
	for _, q := range quoteAssets {
		if len(symbol) > len(q) && strings.HasSuffix(symbol, q) {
			return true
		}
	}
	return false
}

type symbolExtractor func(text string) (string, bool)

// symbolFromTag #BTCUSDT или #BTC; неизвестные теги вроде #signal пропускаются
func symbolFromTag(text string) (string, bool) {
	for _, m := range tagRe.FindAllStringSubmatch(text, -1) {
		sym := strings.ToUpper(m[1])
		if hasQuoteSuffix(sym) || isKnownBase(sym) {
			return NormalizeSymbol(sym), true
		}
	}
	return "", false
}

func symbolFromLabel(text string) (string, bool) {
	m := labelPairRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return NormalizeSymbol(m[1]), true
}

func symbolFromPairToken(text string) (string, bool) {
	if m := stablePairRe.FindStringSubmatch(text); m != nil {
		return m[1] + m[2], true
	}
	if m := crossPairRe.FindStringSubmatch(text); m != nil {
		return m[1] + m[2], true
	}
	return "", false
}

func symbolFromKnownTable(text string) (string, bool) {
	upper := strings.ToUpper(text)
	for _, b := range knownBases {
		if strings.Contains(upper, b) {
			return b + "USDT", true
		}
	}
	return "", false
}
