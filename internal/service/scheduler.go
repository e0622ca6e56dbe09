package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"restack-guard/internal/model"
	"restack-guard/internal/upstream"
)

// State is the session state of the scanner.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated   State = "authenticated"
	StateScanning        State = "scanning"
)

var (
	// ErrNotAuthenticated is returned when an operation needs tokens first.
	ErrNotAuthenticated = errors.New("scanner is not authenticated")
	// ErrAlreadyScanning is returned by Start while scanning.
	ErrAlreadyScanning = errors.New("scanner is already scanning")
	// ErrCycleInProgress is returned by RunNow while a cycle is in flight.
	ErrCycleInProgress = errors.New("a scan cycle is already in progress")
)

// TokenProvider acquires fresh bearer tokens for both upstream services.
type TokenProvider interface {
	AcquireApexToken(ctx context.Context) (string, error)
	AcquireLoadEntryToken(ctx context.Context) (string, error)
	Close() error
}

// Notifier receives newly detected actions and scanner-down events.
type Notifier interface {
	Notify(ctx context.Context, action model.Action) error
	NotifyDown(ctx context.Context, reason string) error
}

// CycleRunner runs one scan cycle. *Orchestrator implements it.
type CycleRunner interface {
	RunCycle(ctx context.Context, subDepts []int, apexToken, loadEntryToken string) (*model.CycleResult, error)
}

// SchedulerConfig holds configuration for the scan scheduler.
type SchedulerConfig struct {
	SubDepts []int

	// Interval between cycle starts.
	// Default: 10 seconds
	Interval time.Duration

	// CycleTimeout bounds the upstream calls of one cycle.
	// Default: 2 minutes
	CycleTimeout time.Duration

	// AuthTimeout bounds a token acquisition.
	// Default: 1 minute
	AuthTimeout time.Duration

	// NotifyTimeout bounds delivery of one cycle's actions or a scanner-down
	// event. Delivery never shares the cycle's context.
	// Default: 30 seconds
	NotifyTimeout time.Duration
}

// Stats are the cumulative counters exposed to the dashboard.
type Stats struct {
	TotalCycles       int64         `json:"totalCycles"`
	SuccessfulCycles  int64         `json:"successfulCycles"`
	ErrorCount        int64         `json:"errorCount"`
	LastError         string        `json:"lastError,omitempty"`
	LastCycleAt       time.Time     `json:"lastCycleAt,omitempty"`
	LastCycleDuration time.Duration `json:"lastCycleDurationNs"`
	ActionsDispatched int64         `json:"actionsDispatched"`
	Reauthentications int64         `json:"reauthentications"`
}

// Status is a read-only snapshot of the scheduler.
type Status struct {
	State           State         `json:"state"`
	SubDepts        []int         `json:"subDepts"`
	Interval        time.Duration `json:"intervalNs"`
	CycleInProgress bool          `json:"cycleInProgress"`
	HaltReason      string        `json:"haltReason,omitempty"`
	Stats           Stats         `json:"stats"`
}

// Scheduler owns the token pair and runs scan cycles on a fixed interval.
// Cycles never overlap: a tick that fires while a cycle is in flight is
// dropped.
type Scheduler struct {
	runner   CycleRunner
	provider TokenProvider
	notifier Notifier
	config   SchedulerConfig

	mu             sync.Mutex
	state          State
	apexToken      string
	loadEntryToken string
	ticker         *time.Ticker
	stopCh         chan struct{}
	haltReason     string
	stats          Stats
	lastResult     *model.CycleResult

	inProgress atomic.Bool
	wg         sync.WaitGroup
}

// NewScheduler creates a new scan scheduler in the unauthenticated state.
func NewScheduler(runner CycleRunner, provider TokenProvider, notifier Notifier, config SchedulerConfig) *Scheduler {
	if config.Interval == 0 {
		config.Interval = 10 * time.Second
	}
	if config.CycleTimeout == 0 {
		config.CycleTimeout = 2 * time.Minute
	}
	if config.AuthTimeout == 0 {
		config.AuthTimeout = time.Minute
	}
	if config.NotifyTimeout == 0 {
		config.NotifyTimeout = 30 * time.Second
	}

	return &Scheduler{
		runner:   runner,
		provider: provider,
		notifier: notifier,
		config:   config,
		state:    StateUnauthenticated,
	}
}

// Authenticate acquires both tokens. On success an unauthenticated scheduler
// becomes authenticated; a scanning one keeps scanning with the new tokens.
func (s *Scheduler) Authenticate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.AuthTimeout)
	defer cancel()

	apex, err := s.provider.AcquireApexToken(ctx)
	if err != nil {
		return fmt.Errorf("acquire apex token: %w", err)
	}
	loadEntry, err := s.provider.AcquireLoadEntryToken(ctx)
	if err != nil {
		return fmt.Errorf("acquire load-entry token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.apexToken = apex
	s.loadEntryToken = loadEntry
	if s.state == StateUnauthenticated {
		s.state = StateAuthenticated
	}
	s.haltReason = ""

	log.Printf("[Scheduler] Authenticated against both upstream services")
	return nil
}

// Start runs one cycle immediately and then one per interval.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateUnauthenticated:
		return ErrNotAuthenticated
	case StateScanning:
		return ErrAlreadyScanning
	}

	s.state = StateScanning
	s.haltReason = ""
	s.ticker = time.NewTicker(s.config.Interval)
	s.stopCh = make(chan struct{})

	log.Printf("[Scheduler] Started - Interval: %v, SubDepts: %v", s.config.Interval, s.config.SubDepts)

	s.wg.Add(1)
	go s.run(s.ticker, s.stopCh)
	return nil
}

// run is the main scheduling loop.
func (s *Scheduler) run(ticker *time.Ticker, stopCh chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.trigger()

	for {
		select {
		case <-ticker.C:
			s.trigger()
		case <-stopCh:
			log.Printf("[Scheduler] Stopped")
			return
		}
	}
}

// trigger starts a cycle in the background unless one is already running.
func (s *Scheduler) trigger() {
	if !s.inProgress.CompareAndSwap(false, true) {
		log.Printf("[Scheduler] Previous cycle still running, skipping tick")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inProgress.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), s.config.CycleTimeout)
		defer cancel()
		s.runCycle(ctx)
	}()
}

// RunNow runs one cycle synchronously, outside the timer. The cycle is
// detached from ctx: a caller that goes away does not abort it.
func (s *Scheduler) RunNow(ctx context.Context) (*model.CycleResult, error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state == StateUnauthenticated {
		return nil, ErrNotAuthenticated
	}

	if !s.inProgress.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer s.inProgress.Store(false)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.CycleTimeout)
	defer cancel()
	return s.runCycle(ctx)
}

// runCycle runs one cycle, records it and dispatches its actions. The caller
// must hold the in-progress flag.
func (s *Scheduler) runCycle(ctx context.Context) (*model.CycleResult, error) {
	s.mu.Lock()
	apexToken, loadEntryToken := s.apexToken, s.loadEntryToken
	subDepts := append([]int(nil), s.config.SubDepts...)
	s.stats.TotalCycles++
	s.mu.Unlock()

	start := time.Now()
	result, err := s.runner.RunCycle(ctx, subDepts, apexToken, loadEntryToken)
	elapsed := time.Since(start)

	s.mu.Lock()
	s.stats.LastCycleAt = start
	s.stats.LastCycleDuration = elapsed
	if result != nil {
		s.lastResult = result
	}
	switch {
	case err != nil:
		s.stats.ErrorCount++
		s.stats.LastError = err.Error()
	case result.Failed():
		s.stats.ErrorCount++
		s.stats.LastError = failureSummary(result.Failures)
	default:
		s.stats.SuccessfulCycles++
	}
	s.mu.Unlock()

	if result != nil {
		s.dispatch(result.Actions)
	}

	if err != nil {
		if upstream.IsAuthExpired(err) {
			log.Printf("[Scheduler] Cycle hit expired credentials: %v", err)
			s.reauthenticate(err)
		} else {
			log.Printf("[Scheduler] Cycle failed: %v", err)
		}
		return result, err
	}
	return result, nil
}

// dispatch delivers actions on its own context. Voids behind them have
// already happened, so a cancelled or expired cycle must not drop them.
func (s *Scheduler) dispatch(actions []model.Action) {
	if len(actions) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.config.NotifyTimeout)
	defer cancel()

	for _, a := range actions {
		if err := s.notifier.Notify(ctx, a); err != nil {
			log.Printf("[Scheduler] Failed to notify %s for PO %s: %v", a.Type, a.PONumber, err)
			continue
		}
		s.mu.Lock()
		s.stats.ActionsDispatched++
		s.mu.Unlock()
	}
}

// reauthenticate refreshes the token set named by the auth-expiry error, or
// both when the error does not say. On failure scanning halts.
func (s *Scheduler) reauthenticate(cause error) {
	authCtx, cancel := context.WithTimeout(context.Background(), s.config.AuthTimeout)
	defer cancel()

	refreshApex, refreshLoadEntry := true, true
	if src, ok := upstream.ExpiredSource(cause); ok {
		refreshApex = src == upstream.SourceApex
		refreshLoadEntry = src == upstream.SourceLoadEntry
	}

	var apex, loadEntry string
	var err error
	if refreshApex {
		if apex, err = s.provider.AcquireApexToken(authCtx); err != nil {
			s.halt(fmt.Sprintf("re-authentication of apex token failed: %v", err))
			return
		}
	}
	if refreshLoadEntry {
		if loadEntry, err = s.provider.AcquireLoadEntryToken(authCtx); err != nil {
			s.halt(fmt.Sprintf("re-authentication of load-entry token failed: %v", err))
			return
		}
	}

	s.mu.Lock()
	if refreshApex {
		s.apexToken = apex
	}
	if refreshLoadEntry {
		s.loadEntryToken = loadEntry
	}
	s.stats.Reauthentications++
	s.mu.Unlock()

	log.Printf("[Scheduler] Re-authenticated (apex=%t, load-entry=%t); next tick retries", refreshApex, refreshLoadEntry)
}

// halt stops scanning after an unrecoverable auth failure and reports it.
func (s *Scheduler) halt(reason string) {
	s.mu.Lock()
	wasScanning := s.state == StateScanning
	s.stopLocked()
	s.haltReason = reason
	s.stats.LastError = reason
	s.mu.Unlock()

	log.Printf("[Scheduler] Halted: %s", reason)
	if !wasScanning {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.NotifyTimeout)
	defer cancel()
	if err := s.notifier.NotifyDown(ctx, reason); err != nil {
		log.Printf("[Scheduler] Failed to send scanner-down notification: %v", err)
	}
}

// Stop prevents further cycles. An in-flight cycle runs to completion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.state != StateScanning {
		return
	}
	s.ticker.Stop()
	close(s.stopCh)
	s.ticker = nil
	s.stopCh = nil
	s.state = StateAuthenticated
}

// Shutdown stops scanning, waits for an in-flight cycle and releases the
// token provider.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("[Scheduler] Shutdown timed out waiting for in-flight cycle")
	}
	return s.provider.Close()
}

// Status returns a snapshot of state and counters.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		State:           s.state,
		SubDepts:        append([]int(nil), s.config.SubDepts...),
		Interval:        s.config.Interval,
		CycleInProgress: s.inProgress.Load(),
		HaltReason:      s.haltReason,
		Stats:           s.stats,
	}
}

// LastResult returns the latest cycle snapshot, or nil before the first cycle.
func (s *Scheduler) LastResult() *model.CycleResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

func failureSummary(failures []model.SubDeptFailure) string {
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("subdept %d %s: %s", f.SubDept, f.Stage, f.Error))
	}
	return strings.Join(parts, "; ")
}
