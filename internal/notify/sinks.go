package notify

import (
	"context"
	"strings"

	"github.com/kirillm/signalbot/pkg/utils"
)

// LogSink пишет уведомления в лог; используется как fallback и в dry-run без бота
type LogSink struct {
	logger *utils.Logger
}

func NewLogSink(logger *utils.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(_ context.Context, text string) error {
	s.logger.Warn("[NOTIFICATION] %s", strings.ReplaceAll(text, "\n", " | "))
	return nil
}
