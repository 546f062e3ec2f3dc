package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillm/signalbot/internal/domain"
)

// limiterIdleTTL через сколько неактивный limiter удаляется
const limiterIdleTTL = 5 * time.Minute

// AuthManager управляет правами доступа и rate limiting
type AuthManager struct {
	adminIDs        map[int64]bool
	whitelist       map[int64]bool
	rateLimiters    map[int64]*userLimiter
	perSecond       rate.Limit
	burst           int
	mu              sync.RWMutex
	enableWhitelist bool
	now             func() time.Time
}

// userLimiter token bucket пользователя
type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewAuthManager создает менеджер авторизации из списков ID через запятую.
// requestsPerSecond задает лимит сообщений от одного пользователя.
func NewAuthManager(adminIDsStr, whitelistStr string, requestsPerSecond int) *AuthManager {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}
	am := &AuthManager{
		adminIDs:     parseIDs(adminIDsStr),
		whitelist:    parseIDs(whitelistStr),
		rateLimiters: make(map[int64]*userLimiter),
		perSecond:    rate.Limit(requestsPerSecond),
		burst:        requestsPerSecond,
		now:          time.Now,
	}
	am.enableWhitelist = strings.TrimSpace(whitelistStr) != ""
	return am
}

func parseIDs(s string) map[int64]bool {
	ids := make(map[int64]bool)
	for _, idStr := range strings.Split(s, ",") {
		idStr = strings.TrimSpace(idStr)
		if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
			ids[id] = true
		}
	}
	return ids
}

// IsAdmin проверяет, является ли пользователь администратором
func (am *AuthManager) IsAdmin(userID int64) bool {
	am.mu.RLock()
	defer am.mu.RUnlock()

	// Если список админов пуст, разрешаем всем
	if len(am.adminIDs) == 0 {
		return true
	}
	return am.adminIDs[userID]
}

// IsAllowed проверяет, разрешен ли доступ пользователю
func (am *AuthManager) IsAllowed(userID int64) bool {
	am.mu.RLock()
	defer am.mu.RUnlock()

	if !am.enableWhitelist {
		return true
	}
	// Админы всегда разрешены
	if am.adminIDs[userID] {
		return true
	}
	return am.whitelist[userID]
}

// CheckRateLimit проверяет rate limit для пользователя
func (am *AuthManager) CheckRateLimit(userID int64) error {
	am.mu.Lock()
	defer am.mu.Unlock()

	now := am.now()
	ul, exists := am.rateLimiters[userID]
	if !exists {
		ul = &userLimiter{limiter: rate.NewLimiter(am.perSecond, am.burst)}
		am.rateLimiters[userID] = ul
	}
	ul.lastSeen = now

	r := ul.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return fmt.Errorf("rate limit exceeded, please wait %v", delay.Round(time.Millisecond))
	}
	return nil
}

// RequireAdmin возвращает ошибку, если пользователь не администратор
func (am *AuthManager) RequireAdmin(userID int64) error {
	if !am.IsAdmin(userID) {
		return fmt.Errorf("admin permission required: %w", domain.ErrUnauthorized)
	}
	return nil
}

// AddAdmin добавляет администратора
func (am *AuthManager) AddAdmin(userID int64) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.adminIDs[userID] = true
}

// RemoveAdmin удаляет администратора
func (am *AuthManager) RemoveAdmin(userID int64) {
	am.mu.Lock()
	defer am.mu.Unlock()
	delete(am.adminIDs, userID)
}

// AddToWhitelist добавляет пользователя в whitelist
func (am *AuthManager) AddToWhitelist(userID int64) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.whitelist[userID] = true
}

// RemoveFromWhitelist удаляет пользователя из whitelist
func (am *AuthManager) RemoveFromWhitelist(userID int64) {
	am.mu.Lock()
	defer am.mu.Unlock()
	delete(am.whitelist, userID)
}

// GetAdminIDs возвращает список ID администраторов
func (am *AuthManager) GetAdminIDs() []int64 {
	am.mu.RLock()
	defer am.mu.RUnlock()

	ids := make([]int64, 0, len(am.adminIDs))
	for id := range am.adminIDs {
		ids = append(ids, id)
	}
	return ids
}

// CleanupRateLimiters очищает старые rate limiters (вызывать периодически)
func (am *AuthManager) CleanupRateLimiters() {
	am.mu.Lock()
	defer am.mu.Unlock()

	now := am.now()
	for userID, ul := range am.rateLimiters {
		if now.Sub(ul.lastSeen) > limiterIdleTTL {
			delete(am.rateLimiters, userID)
		}
	}
}
