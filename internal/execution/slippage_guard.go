package execution

import (
	"fmt"
	"math"

	"github.com/kirillm/signalbot/internal/domain"
)

// SlippageGuard отклоняет сигналы, цена входа которых далеко от рынка
type SlippageGuard struct {
	thresholdPercent float64
}

// NewSlippageGuard создает guard. Порог 0 отключает проверку.
func NewSlippageGuard(thresholdPercent float64) *SlippageGuard {
	return &SlippageGuard{thresholdPercent: thresholdPercent}
}

// Check сравнивает цену сигнала с рыночной
func (sg *SlippageGuard) Check(marketPrice, signalPrice float64) error {
	if sg.thresholdPercent <= 0 || marketPrice <= 0 {
		return nil
	}
	if signalPrice <= 0 {
		return fmt.Errorf("invalid signal price: %.2f", signalPrice)
	}

	slippage := Slippage(marketPrice, signalPrice)
	if slippage > sg.thresholdPercent {
		return fmt.Errorf("%w: %.2f%% (threshold: %.2f%%)", domain.ErrSlippageTooHigh, slippage, sg.thresholdPercent)
	}
	return nil
}

// Threshold возвращает текущий порог
func (sg *SlippageGuard) Threshold() float64 {
	return sg.thresholdPercent
}

// Slippage отклонение в процентах от ожидаемой цены
func Slippage(actual, expected float64) float64 {
	if expected <= 0 {
		return 0
	}
	return math.Abs((actual - expected) / expected * 100.0)
}
