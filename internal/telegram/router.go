package telegram

import (
	"context"
	"fmt"
)

// CommandHandler представляет обработчик команды
type CommandHandler func(ctx context.Context, args *CommandArgs) (string, error)

// Router маршрутизирует команды к обработчикам
type Router struct {
	handlers      map[string]CommandHandler
	authManager   *AuthManager
	formatter     *Formatter
	adminCommands map[string]bool
}

// NewRouter создает новый роутер
func NewRouter(authManager *AuthManager, formatter *Formatter) *Router {
	return &Router{
		handlers:      make(map[string]CommandHandler),
		authManager:   authManager,
		formatter:     formatter,
		adminCommands: make(map[string]bool),
	}
}

// RegisterHandler регистрирует обработчик команды
func (r *Router) RegisterHandler(command CommandType, handler CommandHandler) {
	r.handlers[string(command)] = handler
}

// RegisterAdminHandler регистрирует обработчик с требованием админских прав
func (r *Router) RegisterAdminHandler(command CommandType, handler CommandHandler) {
	r.adminCommands[string(command)] = true
	r.handlers[string(command)] = handler
}

// HandleCommand обрабатывает команду. Ответ пригоден для отправки и при ошибке.
func (r *Router) HandleCommand(ctx context.Context, userID int64, text string) (string, error) {
	args, err := ParseCommand(text)
	if err != nil {
		return r.formatter.FormatError(err), nil
	}

	// Проверяем права для админских команд
	if r.adminCommands[args.Command] {
		if err := r.authManager.RequireAdmin(userID); err != nil {
			return r.formatter.T("admin_required"), nil
		}
	}

	handler, exists := r.handlers[args.Command]
	if !exists {
		return r.formatter.FormatError(fmt.Errorf("unknown command: %s", args.Command)), nil
	}

	response, err := handler(ctx, args)
	if err != nil {
		return r.formatter.FormatError(err), err
	}
	return response, nil
}

// IsAdminCommand проверяет, является ли команда админской
func (r *Router) IsAdminCommand(command string) bool {
	return r.adminCommands[command]
}
