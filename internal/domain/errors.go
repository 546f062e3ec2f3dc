package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound возвращается когда запись не найдена
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput возвращается при некорректных входных данных
	ErrInvalidInput = errors.New("invalid input")

	// ErrTradeExists возвращается при попытке открыть вторую активную сделку по символу
	ErrTradeExists = errors.New("active trade already exists")

	// ErrInvalidSignal возвращается при неполном или некорректном сигнале
	ErrInvalidSignal = errors.New("invalid signal")

	// ErrUnauthorized возвращается при ошибке авторизации
	ErrUnauthorized = errors.New("unauthorized")

	// ErrPriceUnavailable возвращается когда цена недоступна ни из одного источника
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrKillSwitchActive возвращается когда открытие сделок заблокировано
	ErrKillSwitchActive = errors.New("kill switch is active")

	// ErrSlippageTooHigh возвращается при слишком большом отклонении цены сигнала от рынка
	ErrSlippageTooHigh = errors.New("slippage too high")

	// ErrExchangeAPI возвращается при ошибке API биржи
	ErrExchangeAPI = errors.New("exchange API error")

	// ErrDatabaseConnection возвращается при ошибке подключения к БД
	ErrDatabaseConnection = errors.New("database connection error")
)

// ParseError сообщает, каких полей не хватило сигналу
type ParseError struct {
	Missing []string
	Invalid []string
}

func (e *ParseError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid: "+strings.Join(e.Invalid, ", "))
	}
	return "signal validation failed, " + strings.Join(parts, "; ")
}

func (e *ParseError) Unwrap() error { return ErrInvalidSignal }

// TransientFetchError цена не получена после всех попыток
type TransientFetchError struct {
	Symbol   string
	Attempts int
	Err      error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("fetch price for %s failed after %d attempts: %v", e.Symbol, e.Attempts, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// DataIntegrityError поле сделки отсутствует или некорректно
type DataIntegrityError struct {
	Symbol string
	Field  string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("trade %s: invalid field %s", e.Symbol, e.Field)
}

// ActionExecutionError не удалось сохранить результат действия
type ActionExecutionError struct {
	Symbol string
	Action string
	Err    error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("apply %s for %s: %v", e.Action, e.Symbol, e.Err)
}

func (e *ActionExecutionError) Unwrap() error { return e.Err }

// CriticalLoopError неожиданная ошибка внутри цикла мониторинга
type CriticalLoopError struct {
	Err error
}

func (e *CriticalLoopError) Error() string {
	return fmt.Sprintf("monitoring cycle failed: %v", e.Err)
}

func (e *CriticalLoopError) Unwrap() error { return e.Err }
