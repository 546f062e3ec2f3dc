package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kirillm/signalbot/internal/api"
	"github.com/kirillm/signalbot/internal/config"
	"github.com/kirillm/signalbot/internal/exchange"
	"github.com/kirillm/signalbot/internal/execution"
	"github.com/kirillm/signalbot/internal/monitor"
	"github.com/kirillm/signalbot/internal/notify"
	"github.com/kirillm/signalbot/internal/risk"
	"github.com/kirillm/signalbot/internal/signal"
	"github.com/kirillm/signalbot/internal/storage"
	"github.com/kirillm/signalbot/internal/telegram"
	"github.com/kirillm/signalbot/pkg/utils"
)

const shutdownTimeout = 10 * time.Second

func newLogger(cfg config.LogConfig) *utils.Logger {
	if cfg.File == "" {
		return utils.NewLogger(cfg.Level)
	}
	return utils.NewFileLogger(cfg.Level, utils.FileOptions{
		Path:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
	})
}

func openStorage(cfg config.DatabaseConfig) (storage.Store, error) {
	return storage.Open(storage.Options{
		Driver:          cfg.Driver,
		DSN:             cfg.DSN(),
		SQLitePath:      cfg.SQLitePath,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
}

// newExchange собирает источник цен с резервом и исполнителя ордеров.
// В режиме DRY_RUN ордера исполняются бумажным клиентом по живым ценам.
func newExchange(cfg *config.Config, logger *utils.Logger) (*exchange.PriceFailover, exchange.OrderPlacer) {
	bybit := exchange.NewBybitClient(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.BaseURL)

	prices := exchange.NewPriceFailover(bybit, logger)
	prices.AddFallbackSource(exchange.NewBinancePriceClient(cfg.Exchange.BinanceURL))

	if cfg.Trading.DryRun {
		logger.Warn("DRY_RUN enabled: orders are simulated")
		return prices, exchange.NewPaperClient(prices)
	}
	return prices, bybit
}

func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := ossignal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg.Log)
	logger.Info("Starting signalbot %s", Version)

	store, err := openStorage(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	params, err := risk.LoadParams(cfg.Risk.ParamsFile, cfg.Risk.Profile)
	if err != nil {
		return fmt.Errorf("failed to load risk params: %w", err)
	}
	states := risk.NewMemoryStateStore(risk.HistoryCapacity)
	engine := risk.NewEngine(params, states, logger)

	prices, orders := newExchange(cfg, logger)
	killSwitch := execution.NewKillSwitch(logger)
	executor := execution.NewExecutor(store, orders, prices, killSwitch, execution.Config{
		AmountPerTrade:     cfg.Trading.AmountPerTrade,
		RiskPercent:        cfg.Trading.RiskPercent,
		MaxSlippagePercent: cfg.Trading.MaxSlippagePercent,
	}, logger)

	formatter := telegram.NewFormatter(telegram.Lang(cfg.Telegram.Lang))
	auth := telegram.NewAuthManager(cfg.Telegram.Admins, cfg.Telegram.Whitelist, cfg.Telegram.RateLimit)
	router := telegram.NewRouter(auth, formatter)
	interpreter := signal.NewInterpreter(interpreterConfig(cfg))

	bot, err := telegram.NewBot(cfg.Telegram.BotToken, logger, router, auth, formatter, interpreter, executor)
	if err != nil {
		return err
	}

	fallback := notify.NewLogSink(logger)
	var sink notify.Sink = fallback
	if cfg.Telegram.ChatID != 0 {
		sink = telegram.NewSink(bot.API(), cfg.Telegram.ChatID)
	} else {
		logger.Warn("TELEGRAM_CHAT_ID not set, notifications go to the log only")
	}
	dispatcher := notify.NewDispatcher(sink, fallback, notify.Config{
		Workers:     cfg.Notify.Workers,
		QueueSize:   cfg.Notify.QueueSize,
		MinInterval: cfg.Notify.MinInterval,
		SendTimeout: cfg.Notify.SendTimeout,
	}, logger)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	mcfg := monitor.DefaultConfig()
	mcfg.Interval = cfg.Monitor.Interval
	mcfg.MaxRetries = cfg.Monitor.MaxRetries
	mcfg.RetryDelay = cfg.Monitor.RetryDelay
	// оценка риска только по живым ценам
	loop := monitor.NewLoop(engine, store, prices.Live(), dispatcher, mcfg, logger)

	handlers := telegram.NewHandlers(store, loop, killSwitch, loop, dispatcher, formatter, cfg.Trading.DryRun)
	handlers.Register(router)

	server := api.NewServer(logger, api.Deps{
		Trades:     store,
		Events:     store,
		States:     states,
		Monitor:    loop,
		Delivery:   dispatcher,
		KillSwitch: killSwitch,
		DryRun:     cfg.Trading.DryRun,
	}, cfg.APIPort)

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("monitor loop: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		bot.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	dispatcher.Notify(formatter.T("bot_started"))

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errCh:
		logger.Error("Fatal error: %v", runErr)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown: %v", err)
	}
	wg.Wait()

	logger.Info("signalbot stopped")
	return runErr
}
