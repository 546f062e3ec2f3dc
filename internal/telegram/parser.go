package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillm/signalbot/internal/signal"
)

// CommandArgs представляет распарсенные аргументы команды
type CommandArgs struct {
	Command string
	Symbol  string
	Count   int
	Action  string // on/off/status для panicstop
	Raw     []string
}

// CommandType представляет тип команды
type CommandType string

const (
	// Info commands
	CmdStart   CommandType = "start"
	CmdHelp    CommandType = "help"
	CmdStatus  CommandType = "status"
	CmdTrades  CommandType = "trades"
	CmdHistory CommandType = "history"

	// Trade management
	CmdCancel CommandType = "cancel"

	// Admin commands
	CmdPanicStop CommandType = "panicstop"
)

// defaultHistoryCount сколько сделок показывает /history без аргумента
const defaultHistoryCount = 10

// ParseCommand парсит команду и аргументы
func ParseCommand(text string) (*CommandArgs, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil, fmt.Errorf("not a command")
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	// /status@SignalBot в группах
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	cmd = normalizeCommand(cmd)

	args := &CommandArgs{
		Command: cmd,
		Raw:     parts[1:],
	}

	switch CommandType(cmd) {
	case CmdStart, CmdHelp, CmdStatus, CmdTrades:
		// Команды без параметров
		return args, nil

	case CmdHistory:
		// /history [N]
		args.Count = defaultHistoryCount
		if len(parts) >= 2 {
			n, err := strconv.Atoi(parts[1])
			if err != nil || n <= 0 || n > 100 {
				return nil, fmt.Errorf("usage: /history [1-100]")
			}
			args.Count = n
		}
		return args, nil

	case CmdCancel:
		// /cancel SYMBOL
		if len(parts) < 2 {
			return nil, fmt.Errorf("usage: /cancel SYMBOL")
		}
		args.Symbol = signal.NormalizeSymbol(parts[1])
		return args, nil

	case CmdPanicStop:
		// /panicstop [on|off]
		if len(parts) >= 2 {
			args.Action = normalizeAction(parts[1])
			if args.Action != "on" && args.Action != "off" {
				return nil, fmt.Errorf("usage: /panicstop [on|off]")
			}
		} else {
			// Без параметра - показать статус
			args.Action = "status"
		}
		return args, nil

	default:
		return nil, fmt.Errorf("unknown command: %s", cmd)
	}
}

// normalizeCommand нормализует команду (поддержка русского языка)
func normalizeCommand(cmd string) string {
	cmd = strings.ToLower(strings.TrimSpace(cmd))

	ruToEn := map[string]string{
		"старт":   "start",
		"помощь":  "help",
		"статус":  "status",
		"сделки":  "trades",
		"история": "history",
		"отмена":  "cancel",
		"стоп":    "panicstop",
	}

	if enCmd, ok := ruToEn[cmd]; ok {
		return enCmd
	}
	return cmd
}

// normalizeAction нормализует действие (on/off)
func normalizeAction(action string) string {
	action = strings.ToLower(strings.TrimSpace(action))

	actionMap := map[string]string{
		"вкл":       "on",
		"включить":  "on",
		"да":        "on",
		"yes":       "on",
		"выкл":      "off",
		"выключить": "off",
		"нет":       "off",
		"no":        "off",
	}

	if normalized, ok := actionMap[action]; ok {
		return normalized
	}
	return action
}
