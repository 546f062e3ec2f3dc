package signal

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const number = `(\d+(?:\.\d+)?)`

var (
	numberRe   = regexp.MustCompile(`\d+(?:\.\d+)?`)
	largeNumRe = regexp.MustCompile(`\d{3,}(?:\.\d+)?`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// span участок текста, занятый распознанным полем
type span struct {
	start, end int
}

// match результат одной стратегии извлечения
type match struct {
	value float64
	span  span
}

type priceExtractor func(text string) (match, bool)

// clean схлопывает пробелы и приводит тире и запятые к единому виду
func clean(text string) string {
	text = strings.NewReplacer("–", "-", "—", "-", ",", ".").Replace(text)
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

// parseFloat безопасно парсит число, 0 при ошибке
func parseFloat(s string) float64 {
	val, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return val
}

// firstGroup возвращает первую группу первого совпадения вместе с его позицией
func firstGroup(re *regexp.Regexp, text string) (match, bool) {
	idx := re.FindStringSubmatchIndex(text)
	if idx == nil || idx[2] < 0 {
		return match{}, false
	}
	v := parseFloat(text[idx[2]:idx[3]])
	if v <= 0 {
		return match{}, false
	}
	return match{value: v, span: span{idx[0], idx[1]}}, true
}

// mask заменяет занятые участки пробелами, сохраняя позиции
func mask(text string, spans []span) string {
	b := []byte(text)
	for _, s := range spans {
		for i := s.start; i < s.end && i < len(b); i++ {
			b[i] = ' '
		}
	}
	return string(b)
}

// roundPrice отсекает шум float после синтеза уровней
func roundPrice(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(8).Float64()
	return f
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
