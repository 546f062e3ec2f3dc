package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sink доставляет уведомления в заданные чаты
type Sink struct {
	sender  Sender
	chatIDs []int64
}

// NewSink создает sink для notify.Dispatcher
func NewSink(sender Sender, chatIDs ...int64) *Sink {
	return &Sink{sender: sender, chatIDs: chatIDs}
}

// Send отправляет текст во все чаты, ожидание ограничено ctx
func (s *Sink) Send(ctx context.Context, text string) error {
	if len(s.chatIDs) == 0 {
		return errors.New("no telegram chats configured")
	}

	done := make(chan error, 1)
	go func() {
		var errs []error
		for _, chatID := range s.chatIDs {
			for _, part := range splitMessage(text, maxMessageLength) {
				if _, err := s.sender.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
					errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
					break
				}
			}
		}
		done <- errors.Join(errs...)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
