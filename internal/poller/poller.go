// Package poller coordinates fire-and-forget backend recommendation jobs
// with client-side completion polling.
//
// A refresh job is started with a cost precheck and a single-flight guard,
// then observed by refetching the limit snapshot until its fingerprint
// changes or a wall-clock timeout expires. The trigger call and the poll
// loop race to decide the terminal outcome exactly once.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/api"
	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/notify"
)

const (
	DefaultCost     = 1
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = 60 * time.Second
)

const balanceKey = "wallet"

var (
	ErrInsufficientBalance = errors.New("insufficient balance for refresh job")
	ErrRefreshInFlight     = errors.New("a refresh job is already running for this budget")
)

// errTerminal cancels the sibling goroutine once an outcome has been claimed.
var errTerminal = errors.New("terminal outcome reached")

type Outcome int

const (
	OutcomeUpdated Outcome = iota
	OutcomeTimedOut
	OutcomeTriggerFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUpdated:
		return "updated"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeTriggerFailed:
		return "trigger_failed"
	}
	return "unknown"
}

// Result is the terminal state of one refresh job.
type Result struct {
	Outcome Outcome
	Elapsed time.Duration
	Err     error
}

// Client is the slice of the API client the poller depends on.
type Client interface {
	GetLimits(ctx context.Context, budgetID string) (core.LimitSet, error)
	TriggerLimitRefresh(ctx context.Context, budgetID string) error
	Balance(ctx context.Context) (int64, error)
}

// Caches holds the injected snapshot and balance caches the poller reads
// before the network and invalidates on success. Only the poll-success path
// and the snapshot-fetch path write to them.
type Caches struct {
	Snapshots cache.Cache[core.LimitSet]
	Balances  cache.Cache[int64]
}

// Options tune one job type. Zero values fall back to the defaults.
type Options struct {
	Cost     int64
	Interval time.Duration
	Timeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Cost == 0 {
		o.Cost = DefaultCost
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// CanAfford is the pure affordability precheck.
func CanAfford(balance, cost int64) bool {
	return balance >= cost
}

// Poller runs refresh jobs. One Poller serves many budgets; at most one job
// per budget is in flight at a time.
type Poller struct {
	client   Client
	caches   Caches
	notifier notify.Notifier
	now      func() time.Time

	mu     sync.Mutex
	active map[string]struct{}
}

type PollerOption func(*Poller)

// WithClock overrides the wall clock used for the timeout check.
func WithClock(now func() time.Time) PollerOption {
	return func(p *Poller) { p.now = now }
}

func New(client Client, caches Caches, notifier notify.Notifier, opts ...PollerOption) *Poller {
	p := &Poller{
		client:   client,
		caches:   caches,
		notifier: notifier,
		now:      time.Now,
		active:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Active reports whether a job is in flight for the budget.
func (p *Poller) Active(budgetID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[budgetID]
	return ok
}

func (p *Poller) acquire(budgetID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.active[budgetID]; ok {
		return false
	}
	p.active[budgetID] = struct{}{}
	return true
}

func (p *Poller) release(budgetID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, budgetID)
}

// Start begins a refresh job in the background. Precheck and single-flight
// rejections are returned synchronously; the terminal outcome is delivered
// through the notifier. Cancelling ctx tears the job down silently.
func (p *Poller) Start(ctx context.Context, budgetID string, opts Options) error {
	opts = opts.withDefaults()

	if err := p.precheck(ctx, budgetID, opts); err != nil {
		return err
	}
	if !p.acquire(budgetID) {
		return ErrRefreshInFlight
	}

	go func() {
		defer p.release(budgetID)
		p.run(ctx, budgetID, opts)
	}()
	return nil
}

// Run executes a refresh job and blocks until its terminal state. It applies
// the same precheck and single-flight rules as Start.
func (p *Poller) Run(ctx context.Context, budgetID string, opts Options) (Result, error) {
	opts = opts.withDefaults()

	if err := p.precheck(ctx, budgetID, opts); err != nil {
		return Result{}, err
	}
	if !p.acquire(budgetID) {
		return Result{}, ErrRefreshInFlight
	}
	defer p.release(budgetID)

	return p.run(ctx, budgetID, opts)
}

// precheck enforces affordability before any job-related network call. On
// failure it emits the long-duration notice and nothing else happens.
func (p *Poller) precheck(ctx context.Context, budgetID string, opts Options) error {
	balance, err := p.balance(ctx)
	if err != nil {
		return fmt.Errorf("read balance before refresh: %w", err)
	}
	if !CanAfford(balance, opts.Cost) {
		slog.InfoContext(ctx, "Refresh rejected by affordability precheck",
			"budget_id", budgetID, "balance", balance, "cost", opts.Cost)
		p.notifier.Notify(ctx, notify.ExtendedError("Saldo insufficiente per richiedere l'aggiornamento dei limiti"))
		return ErrInsufficientBalance
	}
	return nil
}

func (p *Poller) balance(ctx context.Context) (int64, error) {
	if p.caches.Balances != nil {
		if balance, ok := p.caches.Balances.Get(balanceKey); ok {
			return balance, nil
		}
	}
	balance, err := p.client.Balance(ctx)
	if err != nil {
		return 0, err
	}
	if p.caches.Balances != nil {
		p.caches.Balances.Set(balanceKey, balance)
	}
	return balance, nil
}

// snapshot returns the current limit set, preferring the injected cache.
func (p *Poller) snapshot(ctx context.Context, budgetID string) (core.LimitSet, error) {
	if p.caches.Snapshots != nil {
		if snap, ok := p.caches.Snapshots.Get(budgetID); ok {
			return snap, nil
		}
	}
	snap, err := p.client.GetLimits(ctx, budgetID)
	if err != nil {
		return core.LimitSet{}, err
	}
	if p.caches.Snapshots != nil {
		p.caches.Snapshots.Set(budgetID, snap)
	}
	return snap, nil
}

func (p *Poller) run(ctx context.Context, budgetID string, opts Options) (Result, error) {
	start := p.now()

	initial, err := p.snapshot(ctx, budgetID)
	if err != nil {
		result := Result{Outcome: OutcomeTriggerFailed, Err: err, Elapsed: p.now().Sub(start)}
		p.finish(ctx, budgetID, result)
		return result, nil
	}
	initialSig := initial.Fingerprint()

	slog.InfoContext(ctx, "Refresh job started",
		"budget_id", budgetID, "cost", opts.Cost,
		"interval", opts.Interval, "timeout", opts.Timeout)

	// First writer wins; the buffered channel is the compare-and-set guard.
	terminal := make(chan Result, 1)
	claim := func(r Result) bool {
		select {
		case terminal <- r:
			return true
		default:
			return false
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	// Fire-and-forget trigger. Its rejection terminates the job regardless
	// of where the poll loop is.
	g.Go(func() error {
		if err := p.client.TriggerLimitRefresh(gctx, budgetID); err != nil {
			if claim(Result{Outcome: OutcomeTriggerFailed, Err: err, Elapsed: p.now().Sub(start)}) {
				return errTerminal
			}
		}
		return nil
	})

	// Poll loop. Ticks are serialized; the timeout is wall-clock elapsed,
	// re-checked every tick, so delayed ticks never fire it early.
	g.Go(func() error {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				snap, err := p.client.GetLimits(gctx, budgetID)
				if err != nil {
					slog.WarnContext(gctx, "Poll fetch failed, will retry",
						"budget_id", budgetID, "error", err)
				} else if sig := snap.Fingerprint(); sig != "" && sig != initialSig {
					if p.caches.Snapshots != nil {
						p.caches.Snapshots.Set(budgetID, snap)
					}
					if p.caches.Balances != nil {
						// The job spent currency; force a refetch.
						p.caches.Balances.Delete(balanceKey)
					}
					if claim(Result{Outcome: OutcomeUpdated, Elapsed: p.now().Sub(start)}) {
						return errTerminal
					}
					return nil
				}
				if p.now().Sub(start) > opts.Timeout {
					if claim(Result{Outcome: OutcomeTimedOut, Elapsed: p.now().Sub(start)}) {
						return errTerminal
					}
					return nil
				}
			}
		}
	})

	_ = g.Wait() // errTerminal only exists to cancel the sibling

	select {
	case result := <-terminal:
		p.finish(ctx, budgetID, result)
		return result, nil
	default:
		// Torn down before any outcome: cleanup path, no notification.
		slog.DebugContext(ctx, "Refresh job cancelled", "budget_id", budgetID)
		return Result{}, ctx.Err()
	}
}

// finish logs the terminal state and emits exactly one notice.
func (p *Poller) finish(ctx context.Context, budgetID string, result Result) {
	slog.InfoContext(ctx, "Refresh job finished",
		"budget_id", budgetID,
		"outcome", result.Outcome.String(),
		"elapsed_ms", result.Elapsed.Milliseconds(),
		"error", result.Err)

	switch result.Outcome {
	case OutcomeUpdated:
		p.notifier.Notify(ctx, notify.Success("Limiti di spesa aggiornati"))
	case OutcomeTimedOut:
		p.notifier.Notify(ctx, notify.Error("L'aggiornamento sta impiegando troppo tempo, riprova più tardi"))
	case OutcomeTriggerFailed:
		message := "Errore durante l'aggiornamento dei limiti"
		if apiErr, ok := api.AsError(result.Err); ok && apiErr.Message != "" {
			message = apiErr.Message
		}
		if api.IsInsufficientBalance(result.Err) {
			p.notifier.Notify(ctx, notify.ExtendedError(message))
			return
		}
		p.notifier.Notify(ctx, notify.Error(message))
	}
}
