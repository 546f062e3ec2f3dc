package signal

import (
	"sort"

	"github.com/kirillm/signalbot/internal/domain"
)

// Config параметры разбора сигналов
type Config struct {
	MaxLeverage        int
	DefaultLeverage    int
	ScalpLeverage      int
	TargetStep         float64 // шаг синтеза недостающих целей, доля
	CandidateRange     float64 // окно поиска целей-кандидатов от входа, доля
	DefaultStopPercent float64 // стоп по умолчанию, доля от входа
	DefaultConfidence  float64
	DefaultValidity    int // часы
	MinTargets         int
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{
		MaxLeverage:        20,
		DefaultLeverage:    3,
		ScalpLeverage:      5,
		TargetStep:         0.015,
		CandidateRange:     0.2,
		DefaultStopPercent: 0.02,
		DefaultConfidence:  75,
		DefaultValidity:    24,
		MinTargets:         2,
	}
}

// Interpreter превращает свободный текст сигнала в TradeIntent
type Interpreter struct {
	cfg     Config
	symbols []symbolExtractor
	entries []priceExtractor
}

// NewInterpreter создаёт интерпретатор; нулевые поля конфига заменяются значениями по умолчанию
func NewInterpreter(cfg Config) *Interpreter {
	def := DefaultConfig()
	if cfg.MaxLeverage <= 0 {
		cfg.MaxLeverage = def.MaxLeverage
	}
	if cfg.DefaultLeverage <= 0 {
		cfg.DefaultLeverage = def.DefaultLeverage
	}
	if cfg.ScalpLeverage <= 0 {
		cfg.ScalpLeverage = def.ScalpLeverage
	}
	if cfg.TargetStep <= 0 {
		cfg.TargetStep = def.TargetStep
	}
	if cfg.CandidateRange <= 0 {
		cfg.CandidateRange = def.CandidateRange
	}
	if cfg.DefaultStopPercent <= 0 {
		cfg.DefaultStopPercent = def.DefaultStopPercent
	}
	if cfg.DefaultConfidence <= 0 {
		cfg.DefaultConfidence = def.DefaultConfidence
	}
	if cfg.DefaultValidity <= 0 {
		cfg.DefaultValidity = def.DefaultValidity
	}
	if cfg.MinTargets <= 0 {
		cfg.MinTargets = def.MinTargets
	}

	return &Interpreter{
		cfg:     cfg,
		symbols: []symbolExtractor{symbolFromTag, symbolFromLabel, symbolFromPairToken, symbolFromKnownTable},
		entries: []priceExtractor{entryFromRange, entryFromLabel, entryFromAt, entryAfterTag, entryAnyLarge},
	}
}

// Parse разбирает сигнал. При неполных данных возвращает *domain.ParseError.
func (in *Interpreter) Parse(text string) (*domain.TradeIntent, error) {
	cleaned := clean(text)
	intent := &domain.TradeIntent{RawText: text}
	var used []span

	for _, fn := range in.symbols {
		if sym, ok := fn(cleaned); ok {
			intent.Symbol = sym
			break
		}
	}

	if m, ok := firstOf(cleaned, in.entries); ok {
		intent.EntryPrice = m.value
		used = append(used, m.span)
	}

	lev, levSpan := in.leverage(cleaned)
	intent.Leverage = lev
	if levSpan != nil {
		used = append(used, *levSpan)
	}

	intent.Direction = voteDirection(cleaned)
	long := intent.Direction == domain.DirectionLong

	stopLabeled := false
	if m, ok := stopFromLabel(cleaned); ok {
		intent.StopLoss = m.value
		stopLabeled = true
		used = append(used, m.span)
	} else if intent.EntryPrice > 0 {
		if long {
			intent.StopLoss = roundPrice(intent.EntryPrice * (1 - in.cfg.DefaultStopPercent))
		} else {
			intent.StopLoss = roundPrice(intent.EntryPrice * (1 + in.cfg.DefaultStopPercent))
		}
	}

	intent.Confidence = in.cfg.DefaultConfidence
	if m, ok := confidenceFromLabel(cleaned); ok {
		intent.Confidence = m.value
		if intent.Confidence > 100 {
			intent.Confidence = 100
		}
		used = append(used, m.span)
	}

	intent.ValidityHours = in.cfg.DefaultValidity
	if m, ok := validityFromLabel(cleaned); ok {
		intent.ValidityHours = int(m.value)
		used = append(used, m.span)
	}

	var ladder []float64
	if intent.EntryPrice > 0 {
		ladder = in.targets(cleaned, intent.EntryPrice, long, used)
	}

	var missing, invalid []string
	if intent.Symbol == "" {
		missing = append(missing, "symbol")
	}
	if intent.EntryPrice <= 0 {
		missing = append(missing, "entry_price")
	}
	if intent.Direction != domain.DirectionLong && intent.Direction != domain.DirectionShort {
		invalid = append(invalid, "direction")
	}
	if intent.StopLoss <= 0 {
		missing = append(missing, "stop_loss")
	} else if stopLabeled && intent.EntryPrice > 0 && !stopOnLossSide(intent.StopLoss, intent.EntryPrice, long) {
		invalid = append(invalid, "stop_loss")
	}
	if len(ladder) < in.cfg.MinTargets {
		missing = append(missing, "targets")
	}
	if len(missing) > 0 || len(invalid) > 0 {
		return nil, &domain.ParseError{Missing: missing, Invalid: invalid}
	}

	intent.Targets = in.extend(ladder, long)
	intent.RiskReward = riskReward(intent.EntryPrice, intent.StopLoss, intent.Targets[0], long)
	return intent, nil
}

// leverage явное плечо или эвристика по ключевому слову, в пределах [1, MaxLeverage]
func (in *Interpreter) leverage(text string) (int, *span) {
	for _, fn := range []priceExtractor{leverageFromLabel, leverageFromSuffix} {
		if m, ok := fn(text); ok && m.value >= 1 {
			s := m.span
			return in.clampLeverage(int(m.value)), &s
		}
	}
	if scalpRe.MatchString(text) {
		return in.clampLeverage(in.cfg.ScalpLeverage), nil
	}
	return in.clampLeverage(in.cfg.DefaultLeverage), nil
}

func (in *Interpreter) clampLeverage(lev int) int {
	if lev < 1 {
		return 1
	}
	if lev > in.cfg.MaxLeverage {
		return in.cfg.MaxLeverage
	}
	return lev
}

// targets собирает лестницу: явные цели, кандидаты из текста, синтез, нормализация
func (in *Interpreter) targets(text string, entry float64, long bool, used []span) []float64 {
	slots, spans := explicitTargets(text)
	used = append(used, spans...)
	for _, loc := range tagRe.FindAllStringIndex(text, -1) {
		used = append(used, span{loc[0], loc[1]})
	}

	if countFilled(slots) < len(slots) {
		in.fillCandidates(slots, mask(text, used), entry, long)
	}

	step := in.cfg.TargetStep
	for i := range slots {
		if slots[i] > 0 {
			continue
		}
		if prev := lastFilled(slots[:i]); prev > 0 {
			slots[i] = roundPrice(prev * (1 + sign(long)*step))
		} else {
			slots[i] = roundPrice(entry * (1 + sign(long)*float64(i+1)*step))
		}
	}

	return normalizeLadder(slots, entry, long)
}

// fillCandidates дописывает в пустые ячейки числа из текста с выгодной стороны от входа
func (in *Interpreter) fillCandidates(slots []float64, text string, entry float64, long bool) {
	var candidates []float64
	for _, idx := range numberRe.FindAllStringIndex(text, -1) {
		v := parseFloat(text[idx[0]:idx[1]])
		if long && v > entry && v <= entry*(1+in.cfg.CandidateRange) {
			candidates = append(candidates, v)
		}
		if !long && v < entry && v >= entry*(1-in.cfg.CandidateRange) {
			candidates = append(candidates, v)
		}
	}
	sortLadder(candidates, long)

	next := 0
	for i := range slots {
		if slots[i] > 0 {
			continue
		}
		for next < len(candidates) && contains(slots, candidates[next]) {
			next++
		}
		if next >= len(candidates) {
			return
		}
		slots[i] = candidates[next]
		next++
	}
}

// extend достраивает лестницу до четырёх уровней шагом от последнего
func (in *Interpreter) extend(ladder []float64, long bool) []float64 {
	out := append([]float64(nil), ladder...)
	for len(out) < domain.TargetCount {
		last := out[len(out)-1]
		out = append(out, roundPrice(last*(1+sign(long)*in.cfg.TargetStep)))
	}
	return out
}

// normalizeLadder убирает дубли и цели с проигрышной стороны, сортирует от входа
func normalizeLadder(levels []float64, entry float64, long bool) []float64 {
	var out []float64
	for _, v := range levels {
		if v <= 0 || contains(out, v) {
			continue
		}
		if (long && v <= entry) || (!long && v >= entry) {
			continue
		}
		out = append(out, v)
	}
	sortLadder(out, long)
	if len(out) > domain.TargetCount {
		out = out[:domain.TargetCount]
	}
	return out
}

func sortLadder(levels []float64, long bool) {
	if long {
		sort.Float64s(levels)
		return
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(levels)))
}

func riskReward(entry, stop, target float64, long bool) float64 {
	var risk, reward float64
	if long {
		risk, reward = entry-stop, target-entry
	} else {
		risk, reward = stop-entry, entry-target
	}
	if risk <= 0 {
		return 1.0
	}
	return round2(reward / risk)
}

func stopOnLossSide(stop, entry float64, long bool) bool {
	if long {
		return stop < entry
	}
	return stop > entry
}

func sign(long bool) float64 {
	if long {
		return 1
	}
	return -1
}

func countFilled(slots []float64) int {
	n := 0
	for _, v := range slots {
		if v > 0 {
			n++
		}
	}
	return n
}

func lastFilled(slots []float64) float64 {
	for i := len(slots) - 1; i >= 0; i-- {
		if slots[i] > 0 {
			return slots[i]
		}
	}
	return 0
}

func contains(levels []float64, v float64) bool {
	for _, l := range levels {
		if l == v {
			return true
		}
	}
	return false
}
