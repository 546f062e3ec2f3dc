package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillm/signalbot/internal/config"
	"github.com/kirillm/signalbot/internal/signal"
)

// Version подставляется при сборке через -ldflags
var Version = "dev"

// NewRootCmd создает корневую команду
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "signalbot",
		Short: "Signal bot - trade signals with automatic risk management",
		Long: `signalbot reads trading signals from Telegram, opens positions and
watches them with a risk engine: stop-loss, take-profit ladder, breakeven,
trailing stop, time exit and volatility protection.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newParseCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	return rootCmd
}

// newRunCmd запускает бота, мониторинг и API
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot, the monitoring loop and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.Log.Level = "debug"
			}
			return run(cmd.Context(), cfg)
		},
	}
}

// newParseCmd разбирает сигнал без открытия сделки
func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse [TEXT]",
		Short: "Parse a signal and print the trade intent as JSON",
		Long: `Parse a free-form signal message and print the resulting trade intent.
The text is taken from the argument or, if omitted, from stdin.
Example: signalbot parse "BTCUSDT LONG entry 50000 SL 49000 TP1 51000 TP2 52000"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := signalText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			cfg, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			interpreter := signal.NewInterpreter(interpreterConfig(cfg))

			intent, err := interpreter.Parse(text)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(intent)
		},
	}
}

// newVersionCmd выводит версию
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "signalbot %s\n", Version)
		},
	}
}

func signalText(in io.Reader, args []string) (string, error) {
	text := ""
	if len(args) == 1 {
		text = args[0]
	} else {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("signal text is empty")
	}
	return text, nil
}

func interpreterConfig(cfg *config.Config) signal.Config {
	sc := signal.DefaultConfig()
	sc.MaxLeverage = cfg.Trading.MaxLeverage
	sc.DefaultLeverage = cfg.Trading.DefaultLeverage
	sc.TargetStep = cfg.Trading.TargetStep
	return sc
}
