package execution

import (
	"sync"
	"time"

	"github.com/kirillm/signalbot/pkg/utils"
)

// KillSwitch аварийная остановка открытия новых сделок.
// Мониторинг уже открытых позиций продолжает работать.
type KillSwitch struct {
	mu          sync.RWMutex
	active      bool
	activatedAt time.Time
	reason      string
	logger      *utils.Logger
}

// KillSwitchStatus снимок состояния
type KillSwitchStatus struct {
	Active      bool      `json:"active"`
	Reason      string    `json:"reason,omitempty"`
	ActivatedAt time.Time `json:"activated_at,omitempty"`
}

// NewKillSwitch создает новый kill switch
func NewKillSwitch(logger *utils.Logger) *KillSwitch {
	return &KillSwitch{logger: logger}
}

// Activate активирует kill switch
func (ks *KillSwitch) Activate(reason string) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	ks.active = true
	ks.activatedAt = time.Now()
	ks.reason = reason

	ks.logger.Warn("🚨 KILL SWITCH ACTIVATED: %s", reason)
}

// Deactivate снимает блокировку
func (ks *KillSwitch) Deactivate() {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	ks.active = false
	ks.reason = ""
	ks.activatedAt = time.Time{}

	ks.logger.Info("✅ Kill switch deactivated")
}

// IsActive проверяет активен ли kill switch
func (ks *KillSwitch) IsActive() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.active
}

// Status возвращает текущее состояние
func (ks *KillSwitch) Status() KillSwitchStatus {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return KillSwitchStatus{Active: ks.active, Reason: ks.reason, ActivatedAt: ks.activatedAt}
}
