package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillm/signalbot/pkg/utils"
	"golang.org/x/time/rate"
)

// Sink канал доставки уведомлений
type Sink interface {
	Send(ctx context.Context, text string) error
}

// Config параметры доставки
type Config struct {
	Workers      int
	QueueSize    int
	MinInterval  time.Duration // минимальный интервал между отправками
	SendTimeout  time.Duration // таймаут, передаваемый в Sink через context
	OuterTimeout time.Duration // жёсткий предел ожидания для Sink, игнорирующего context
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{
		Workers:      2,
		QueueSize:    100,
		MinInterval:  time.Second,
		SendTimeout:  10 * time.Second,
		OuterTimeout: 15 * time.Second,
	}
}

// Stats счётчики доставки
type Stats struct {
	Sent     int64 `json:"sent"`
	Failed   int64 `json:"failed"`
	Fallback int64 `json:"fallback"`
	Pending  int   `json:"pending"`
}

// Dispatcher доставляет уведомления пулом воркеров с ограничением частоты.
// Неудачные отправки уходят в fallback, уведомления не теряются молча.
type Dispatcher struct {
	sink     Sink
	fallback Sink
	cfg      Config
	logger   *utils.Logger
	limiter  *rate.Limiter
	queue    chan string

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup

	sent         atomic.Int64
	failed       atomic.Int64
	fallbackUsed atomic.Int64
}

// NewDispatcher создаёт диспетчер; fallback обязателен
func NewDispatcher(sink, fallback Sink, cfg Config, logger *utils.Logger) *Dispatcher {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.OuterTimeout < cfg.SendTimeout {
		cfg.OuterTimeout = cfg.SendTimeout + cfg.SendTimeout/2
	}

	return &Dispatcher{
		sink:     sink,
		fallback: fallback,
		cfg:      cfg,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		queue:    make(chan string, cfg.QueueSize),
	}
}

// Start запускает воркеры. Повторный вызов ничего не делает.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	d.logger.Info("Notification dispatcher started with %d workers", d.cfg.Workers)
}

// Notify ставит уведомление в очередь, не блокируя вызывающего
func (d *Dispatcher) Notify(text string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.useFallback(text, fmt.Errorf("dispatcher stopped"))
		return
	}
	select {
	case d.queue <- text:
	default:
		d.useFallback(text, fmt.Errorf("queue full"))
	}
}

// Stop закрывает очередь и дожидается доставки оставшихся уведомлений
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		for text := range d.queue {
			d.useFallback(text, fmt.Errorf("dispatcher never started"))
		}
		return
	}
	d.wg.Wait()
	d.logger.Info("Notification dispatcher stopped: sent=%d failed=%d", d.sent.Load(), d.failed.Load())
}

// Stats текущие счётчики
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Sent:     d.sent.Load(),
		Failed:   d.failed.Load(),
		Fallback: d.fallbackUsed.Load(),
		Pending:  len(d.queue),
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for text := range d.queue {
		d.deliver(ctx, text)
	}
	d.logger.Debug("Notification worker %d exited", id)
}

func (d *Dispatcher) deliver(ctx context.Context, text string) {
	if err := d.limiter.Wait(ctx); err != nil {
		d.useFallback(text, err)
		return
	}

	if err := d.send(ctx, text); err != nil {
		d.failed.Add(1)
		d.logger.Warn("Notification delivery failed: %v", err)
		d.useFallback(text, err)
		return
	}
	d.sent.Add(1)
}

// send ограничивает отправку двумя таймаутами: через context и жёстким ожиданием
func (d *Dispatcher) send(ctx context.Context, text string) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.sink.Send(sendCtx, text)
	}()

	timer := time.NewTimer(d.cfg.OuterTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("send timed out after %s", d.cfg.OuterTimeout)
	}
}

func (d *Dispatcher) useFallback(text string, cause error) {
	d.fallbackUsed.Add(1)
	if d.fallback == nil {
		d.logger.Error("Notification lost (%v): %s", cause, text)
		return
	}
	// исходный context к этому моменту может быть отменён
	fctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()
	if err := d.fallback.Send(fctx, text); err != nil {
		d.logger.Error("Fallback notification failed (%v, original error %v): %s", err, cause, text)
	}
}
