package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kirillm/signalbot/internal/domain"
	"github.com/kirillm/signalbot/pkg/utils"
)

// maxMessageLength лимит Telegram на длину сообщения
const maxMessageLength = 4096

// Sender отправка сообщений, реализуется *tgbotapi.BotAPI
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// SignalParser разбор текста сигнала
type SignalParser interface {
	Parse(text string) (*domain.TradeIntent, error)
}

// TradeOpener открытие сделки по сигналу
type TradeOpener interface {
	Open(ctx context.Context, intent *domain.TradeIntent) (*domain.Trade, error)
}

// Bot принимает сигналы и команды из Telegram
type Bot struct {
	api         *tgbotapi.BotAPI
	sender      Sender
	logger      *utils.Logger
	router      *Router
	authManager *AuthManager
	formatter   *Formatter
	parser      SignalParser
	opener      TradeOpener
}

// NewBot подключается к Telegram API
func NewBot(token string, logger *utils.Logger, router *Router, auth *AuthManager, formatter *Formatter, parser SignalParser, opener TradeOpener) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	logger.Info("Telegram bot authorized: @%s", api.Self.UserName)

	b := newBot(api, logger, router, auth, formatter, parser, opener)
	b.api = api
	return b, nil
}

func newBot(sender Sender, logger *utils.Logger, router *Router, auth *AuthManager, formatter *Formatter, parser SignalParser, opener TradeOpener) *Bot {
	return &Bot{
		sender:      sender,
		logger:      logger,
		router:      router,
		authManager: auth,
		formatter:   formatter,
		parser:      parser,
		opener:      opener,
	}
}

// API клиент для уведомлений
func (b *Bot) API() *tgbotapi.BotAPI {
	return b.api
}

// Start обрабатывает обновления до отмены контекста
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	cleanup := time.NewTicker(limiterIdleTTL)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Stopping Telegram bot...")
			b.api.StopReceivingUpdates()
			return
		case <-cleanup.C:
			b.authManager.CleanupRateLimiters()
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				go b.handleMessage(ctx, update.Message)
			}
		}
	}
}

// handleMessage обрабатывает входящее сообщение
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || strings.TrimSpace(message.Text) == "" {
		return
	}
	chatID := message.Chat.ID
	reply := b.Respond(ctx, message.From.ID, message.Text)
	b.SendMessage(chatID, reply)
}

// Respond готовит ответ на текст пользователя: команду или сигнал
func (b *Bot) Respond(ctx context.Context, userID int64, text string) string {
	b.logger.Info("Received message from user %d: %.80s", userID, text)

	if !b.authManager.IsAllowed(userID) {
		b.logger.Warn("Unauthorized access attempt from user ID: %d", userID)
		return b.formatter.T("access_denied")
	}
	if err := b.authManager.CheckRateLimit(userID); err != nil {
		return b.formatter.FormatError(err)
	}

	if strings.HasPrefix(strings.TrimSpace(text), "/") {
		response, err := b.router.HandleCommand(ctx, userID, text)
		if err != nil {
			b.logger.Error("Command error: %v", err)
		}
		return response
	}

	return b.handleSignal(ctx, text)
}

// handleSignal разбирает сигнал и открывает сделку
func (b *Bot) handleSignal(ctx context.Context, text string) string {
	intent, err := b.parser.Parse(text)
	if err != nil {
		b.logger.Warn("Signal rejected: %v", err)
		return b.formatter.FormatRejected(err)
	}

	trade, err := b.opener.Open(ctx, intent)
	if err != nil {
		b.logger.Warn("Failed to open %s: %v", intent.Symbol, err)
		return b.formatter.FormatRejected(err)
	}
	return b.formatter.FormatOpened(intent, trade)
}

// SendMessage отправляет сообщение, разбивая длинный текст
func (b *Bot) SendMessage(chatID int64, text string) {
	if text == "" {
		return
	}
	for _, part := range splitMessage(text, maxMessageLength) {
		if _, err := b.sender.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			b.logger.Error("Failed to send telegram message to chat %d: %v", chatID, err)
		}
	}
}
