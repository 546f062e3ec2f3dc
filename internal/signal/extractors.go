package signal

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillm/signalbot/internal/domain"
)

const (
	tagLookahead = 200
	minPlausible = 0.1
	maxPlausible = 1e6
)

var (
	rangeEntryRe   = regexp.MustCompile(`(?i)\b(?:entry|buy|price)\b[^\d]{0,12}?` + number + `\s*-\s*` + number)
	labeledEntryRe = regexp.MustCompile(`(?i)\b(?:entry|price|buy|sell)\b[^\d]{0,12}?` + number)
	atEntryRe      = regexp.MustCompile(`@\s*` + number)

	leverageLabelRe  = regexp.MustCompile(`(?i)\b(?:leverage|lev)\b\s*[:=\-]?\s*[x×]?\s*(\d+)`)
	leverageSuffixRe = regexp.MustCompile(`(?i)\b(\d{1,3})\s*x\b`)
	scalpRe          = regexp.MustCompile(`(?i)\bscalp`)

	longWordsRe  = regexp.MustCompile(`(?i)\b(?:long|buy|bullish)\b`)
	shortWordsRe = regexp.MustCompile(`(?i)\b(?:short|sell|bearish)\b`)

	stopLossRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bstop[-\s]?loss\b\s*[:=\-]?\s*` + number),
		regexp.MustCompile(`(?i)\bSL\b\s*[:=\-]?\s*` + number),
		regexp.MustCompile(`(?i)\bstop\b\s*[:=\-]?\s*` + number),
	}

	targetRe = regexp.MustCompile(`(?i)\b(?:target|tp|take[-\s]?profit)\s*(\d)(?:\s*[:=\-)]\s*|\s+)` + number)

	confidenceRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:confidence|conf|accuracy|win\s*rate)\b\s*[:=\-]?\s*` + number + `\s*%`),
		regexp.MustCompile(`(?i)` + number + `\s*%\s*confidence`),
	}
	validityRe = regexp.MustCompile(`(?i)\b(?:validity|valid|expires?(?:\s+in)?)\b\s*[:=\-]?\s*(\d+)\s*(?:h|hours?)\b`)
)

var (
	longEmoji  = []string{"📈", "🚀", "🟢", "⬆", "🔺"}
	shortEmoji = []string{"📉", "🔴", "🛬", "⬇", "🔻"}
)

// entryFromRange Entry: P1-P2, берётся середина диапазона
func entryFromRange(text string) (match, bool) {
	idx := rangeEntryRe.FindStringSubmatchIndex(text)
	if idx == nil {
		return match{}, false
	}
	low := parseFloat(text[idx[2]:idx[3]])
	high := parseFloat(text[idx[4]:idx[5]])
	if low <= 0 || high <= 0 {
		return match{}, false
	}
	return match{value: (low + high) / 2, span: span{idx[0], idx[1]}}, true
}

func entryFromLabel(text string) (match, bool) {
	return firstGroup(labeledEntryRe, text)
}

func entryFromAt(text string) (match, bool) {
	return firstGroup(atEntryRe, text)
}

// entryAfterTag первое крупное число сразу за #тегом
func entryAfterTag(text string) (match, bool) {
	loc := tagRe.FindStringIndex(text)
	if loc == nil {
		return match{}, false
	}
	end := loc[1] + tagLookahead
	if end > len(text) {
		end = len(text)
	}
	window := text[loc[1]:end]
	idx := largeNumRe.FindStringIndex(window)
	if idx == nil {
		return match{}, false
	}
	v := parseFloat(window[idx[0]:idx[1]])
	if v <= 0 {
		return match{}, false
	}
	return match{value: v, span: span{loc[1] + idx[0], loc[1] + idx[1]}}, true
}

func entryAnyLarge(text string) (match, bool) {
	for _, idx := range largeNumRe.FindAllStringIndex(text, -1) {
		v := parseFloat(text[idx[0]:idx[1]])
		if v > minPlausible && v < maxPlausible {
			return match{value: v, span: span{idx[0], idx[1]}}, true
		}
	}
	return match{}, false
}

func leverageFromLabel(text string) (match, bool) {
	return firstGroup(leverageLabelRe, text)
}

func leverageFromSuffix(text string) (match, bool) {
	return firstGroup(leverageSuffixRe, text)
}

// voteDirection считает индикаторы long/short; при равенстве long
func voteDirection(text string) string {
	longVotes := len(longWordsRe.FindAllStringIndex(text, -1))
	shortVotes := len(shortWordsRe.FindAllStringIndex(text, -1))
	for _, e := range longEmoji {
		longVotes += strings.Count(text, e)
	}
	for _, e := range shortEmoji {
		shortVotes += strings.Count(text, e)
	}
	if shortVotes > longVotes {
		return domain.DirectionShort
	}
	return domain.DirectionLong
}

func stopFromLabel(text string) (match, bool) {
	for _, re := range stopLossRes {
		if m, ok := firstGroup(re, text); ok {
			return m, true
		}
	}
	return match{}, false
}

// explicitTargets раскладывает "Target k: P" по индексам k-1
func explicitTargets(text string) ([]float64, []span) {
	slots := make([]float64, 4)
	var spans []span
	for _, idx := range targetRe.FindAllStringSubmatchIndex(text, -1) {
		k, err := strconv.Atoi(text[idx[2]:idx[3]])
		if err != nil || k < 1 || k > len(slots) {
			continue
		}
		v := parseFloat(text[idx[4]:idx[5]])
		if v <= 0 {
			continue
		}
		spans = append(spans, span{idx[0], idx[1]})
		if slots[k-1] == 0 {
			slots[k-1] = v
		}
	}
	return slots, spans
}

func confidenceFromLabel(text string) (match, bool) {
	for _, re := range confidenceRes {
		if m, ok := firstGroup(re, text); ok {
			return m, true
		}
	}
	return match{}, false
}

func validityFromLabel(text string) (match, bool) {
	return firstGroup(validityRe, text)
}

// firstOf применяет стратегии по порядку, побеждает первая сработавшая
func firstOf(text string, strategies []priceExtractor) (match, bool) {
	for _, fn := range strategies {
		if m, ok := fn(text); ok {
			return m, true
		}
	}
	return match{}, false
}
