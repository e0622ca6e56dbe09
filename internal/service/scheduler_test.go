package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"restack-guard/internal/cache"
	"restack-guard/internal/model"
	"restack-guard/internal/opclock"
	"restack-guard/internal/upstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu     sync.Mutex
	calls  int
	tokens [][2]string
	run    func(ctx context.Context) (*model.CycleResult, error)
}

func (r *fakeRunner) RunCycle(ctx context.Context, subDepts []int, apexToken, loadEntryToken string) (*model.CycleResult, error) {
	r.mu.Lock()
	r.calls++
	r.tokens = append(r.tokens, [2]string{apexToken, loadEntryToken})
	run := r.run
	r.mu.Unlock()
	if run != nil {
		return run(ctx)
	}
	return &model.CycleResult{}, nil
}

func (r *fakeRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *fakeRunner) Tokens() [][2]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]string(nil), r.tokens...)
}

type fakeProvider struct {
	mu             sync.Mutex
	apexCalls      int
	loadEntryCalls int
	apexErr        error
	loadEntryErr   error
	closed         bool
}

func (p *fakeProvider) AcquireApexToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.apexCalls++
	if p.apexErr != nil {
		return "", p.apexErr
	}
	return "apex-" + string(rune('0'+p.apexCalls)), nil
}

func (p *fakeProvider) AcquireLoadEntryToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadEntryCalls++
	if p.loadEntryErr != nil {
		return "", p.loadEntryErr
	}
	return "le-" + string(rune('0'+p.loadEntryCalls)), nil
}

func (p *fakeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakeProvider) set(apexErr, loadEntryErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.apexErr, p.loadEntryErr = apexErr, loadEntryErr
}

type fakeNotifier struct {
	mu      sync.Mutex
	actions []model.Action
	downs   []string
	failFor string
}

func (n *fakeNotifier) Notify(ctx context.Context, a model.Action) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if a.PONumber == n.failFor {
		return errors.New("webhook unreachable")
	}
	n.actions = append(n.actions, a)
	return nil
}

func (n *fakeNotifier) NotifyDown(ctx context.Context, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.downs = append(n.downs, reason)
	return nil
}

func (n *fakeNotifier) Downs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.downs...)
}

func newTestScheduler(r *fakeRunner, p *fakeProvider, n *fakeNotifier) *Scheduler {
	return NewScheduler(r, p, n, SchedulerConfig{
		SubDepts: []int{85, 86},
		Interval: time.Hour,
	})
}

func TestScheduler_StartRequiresAuthentication(t *testing.T) {
	s := newTestScheduler(&fakeRunner{}, &fakeProvider{}, &fakeNotifier{})

	assert.ErrorIs(t, s.Start(), ErrNotAuthenticated)
	_, err := s.RunNow(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, StateUnauthenticated, s.Status().State)
}

func TestScheduler_AuthenticateFailureStaysUnauthenticated(t *testing.T) {
	p := &fakeProvider{}
	p.set(nil, errors.New("bad credentials"))
	s := newTestScheduler(&fakeRunner{}, p, &fakeNotifier{})

	err := s.Authenticate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load-entry")
	assert.Equal(t, StateUnauthenticated, s.Status().State)
}

func TestScheduler_StartStopLifecycle(t *testing.T) {
	r := &fakeRunner{}
	p := &fakeProvider{}
	s := newTestScheduler(r, p, &fakeNotifier{})

	require.NoError(t, s.Authenticate(context.Background()))
	assert.Equal(t, StateAuthenticated, s.Status().State)

	require.NoError(t, s.Start())
	assert.Equal(t, StateScanning, s.Status().State)
	assert.ErrorIs(t, s.Start(), ErrAlreadyScanning)

	// The first cycle runs immediately rather than after one interval.
	assert.Eventually(t, func() bool { return r.Calls() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, [2]string{"apex-1", "le-1"}, r.Tokens()[0])

	s.Stop()
	assert.Equal(t, StateAuthenticated, s.Status().State)
	s.Stop()

	require.NoError(t, s.Shutdown(context.Background()))
	assert.True(t, p.closed)
}

func TestScheduler_RunNowRecordsStatsAndDispatches(t *testing.T) {
	r := &fakeRunner{run: func(ctx context.Context) (*model.CycleResult, error) {
		return &model.CycleResult{
			ID: "cycle-1",
			Actions: []model.Action{
				{Type: model.ActionCancelled, PONumber: "P1"},
				{Type: model.ActionOverNoWallet, PONumber: "P2"},
			},
		}, nil
	}}
	n := &fakeNotifier{failFor: "P2"}
	s := newTestScheduler(r, &fakeProvider{}, n)
	require.NoError(t, s.Authenticate(context.Background()))

	result, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cycle-1", result.ID)
	assert.Same(t, result, s.LastResult())

	st := s.Status().Stats
	assert.Equal(t, int64(1), st.TotalCycles)
	assert.Equal(t, int64(1), st.SuccessfulCycles)
	assert.Equal(t, int64(0), st.ErrorCount)
	assert.Equal(t, int64(1), st.ActionsDispatched)
	require.Len(t, n.actions, 1)
	assert.Equal(t, "P1", n.actions[0].PONumber)
}

func TestScheduler_SubDeptFailuresCountAsErrors(t *testing.T) {
	r := &fakeRunner{run: func(ctx context.Context) (*model.CycleResult, error) {
		return &model.CycleResult{Failures: []model.SubDeptFailure{
			{SubDept: 85, Stage: StagePurchaseOrders, Error: "apex returned status 502"},
		}}, nil
	}}
	s := newTestScheduler(r, &fakeProvider{}, &fakeNotifier{})
	require.NoError(t, s.Authenticate(context.Background()))

	_, err := s.RunNow(context.Background())
	require.NoError(t, err)

	st := s.Status().Stats
	assert.Equal(t, int64(1), st.ErrorCount)
	assert.Equal(t, int64(0), st.SuccessfulCycles)
	assert.Contains(t, st.LastError, "subdept 85 purchase_orders")
}

func TestScheduler_RunNowRejectsOverlap(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	r := &fakeRunner{run: func(ctx context.Context) (*model.CycleResult, error) {
		close(entered)
		<-release
		return &model.CycleResult{}, nil
	}}
	s := newTestScheduler(r, &fakeProvider{}, &fakeNotifier{})
	require.NoError(t, s.Authenticate(context.Background()))

	done := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background())
		done <- err
	}()
	<-entered

	assert.True(t, s.Status().CycleInProgress)
	_, err := s.RunNow(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, r.Calls())
}

func TestScheduler_ReauthenticatesOnlyExpiredSource(t *testing.T) {
	r := &fakeRunner{run: func(ctx context.Context) (*model.CycleResult, error) {
		return &model.CycleResult{}, &upstream.AuthExpiredError{Source: upstream.SourceApex, Path: "/subdept/85/pos"}
	}}
	p := &fakeProvider{}
	n := &fakeNotifier{}
	s := newTestScheduler(r, p, n)
	require.NoError(t, s.Authenticate(context.Background()))

	_, err := s.RunNow(context.Background())
	assert.True(t, upstream.IsAuthExpired(err))

	assert.Equal(t, 2, p.apexCalls)
	assert.Equal(t, 1, p.loadEntryCalls)
	assert.Equal(t, int64(1), s.Status().Stats.Reauthentications)
	assert.Equal(t, StateAuthenticated, s.Status().State)

	r.run = nil
	_, err = s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [2]string{"apex-2", "le-1"}, r.Tokens()[1])
}

func TestScheduler_ReauthenticatesBothWhenSourceUnknown(t *testing.T) {
	r := &fakeRunner{run: func(ctx context.Context) (*model.CycleResult, error) {
		return nil, upstream.ErrAuthExpired
	}}
	p := &fakeProvider{}
	s := newTestScheduler(r, p, &fakeNotifier{})
	require.NoError(t, s.Authenticate(context.Background()))

	_, err := s.RunNow(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, p.apexCalls)
	assert.Equal(t, 2, p.loadEntryCalls)
	assert.Nil(t, s.LastResult())
}

func TestScheduler_ReauthFailureHaltsAndNotifies(t *testing.T) {
	r := &fakeRunner{}
	p := &fakeProvider{}
	n := &fakeNotifier{}
	s := newTestScheduler(r, p, n)
	require.NoError(t, s.Authenticate(context.Background()))
	require.NoError(t, s.Start())
	assert.Eventually(t, func() bool { return r.Calls() == 1 && !s.Status().CycleInProgress }, time.Second, 5*time.Millisecond)

	p.set(nil, errors.New("load-entry login rejected"))
	r.mu.Lock()
	r.run = func(ctx context.Context) (*model.CycleResult, error) {
		return &model.CycleResult{}, &upstream.AuthExpiredError{Source: upstream.SourceLoadEntry}
	}
	r.mu.Unlock()

	_, err := s.RunNow(context.Background())
	require.Error(t, err)

	st := s.Status()
	assert.Equal(t, StateAuthenticated, st.State)
	assert.Contains(t, st.HaltReason, "load-entry")
	require.Len(t, n.Downs(), 1)
	assert.Contains(t, n.Downs()[0], "load-entry login rejected")

	require.NoError(t, s.Shutdown(context.Background()))
}

func TestScheduler_PartialResultStillDispatchedOnAuthExpiry(t *testing.T) {
	r := &fakeRunner{run: func(ctx context.Context) (*model.CycleResult, error) {
		return &model.CycleResult{Actions: []model.Action{{Type: model.ActionCancelled, PONumber: "P1"}}},
			&upstream.AuthExpiredError{Source: upstream.SourceLoadEntry}
	}}
	n := &fakeNotifier{}
	s := newTestScheduler(r, &fakeProvider{}, n)
	require.NoError(t, s.Authenticate(context.Background()))

	_, err := s.RunNow(context.Background())
	require.Error(t, err)
	require.Len(t, n.actions, 1)
	assert.Equal(t, int64(1), s.Status().Stats.ErrorCount)
}

// ctxNotifier only accepts deliveries made on a live context.
type ctxNotifier struct {
	mu        sync.Mutex
	delivered []model.Action
	rejected  int
}

func (n *ctxNotifier) Notify(ctx context.Context, a model.Action) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := ctx.Err(); err != nil {
		n.rejected++
		return err
	}
	n.delivered = append(n.delivered, a)
	return nil
}

func (n *ctxNotifier) NotifyDown(ctx context.Context, reason string) error {
	return ctx.Err()
}

func TestScheduler_CallerCancellationDoesNotLoseVoidedAction(t *testing.T) {
	// GIVEN: two sub-departments; the caller goes away right after the void in 85
	p := newFakePortal()
	p.pos[85] = []model.PurchaseOrder{po("P1", "T1", 5)}
	p.ancillary[85] = []model.AncillaryItem{fee("P1", "Restack", 7)}
	p.trucks[85] = []model.TruckSummary{truck("T1", "CO123", "ACME")}
	p.pos[86] = []model.PurchaseOrder{po("P2", "T2", 1)}
	p.ancillary[86] = []model.AncillaryItem{fee("P2", "upstack", 3)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.onVoid = cancel

	state := NewReconciliationState(ctxSetStore{cache.NewMemorySetStore()})
	o := NewOrchestrator(p, NewEngine(state), opclock.New(opclock.DefaultBoundaryHour))
	n := &ctxNotifier{}
	s := NewScheduler(o, &fakeProvider{}, n, SchedulerConfig{SubDepts: []int{85, 86}, Interval: time.Hour})
	require.NoError(t, s.Authenticate(context.Background()))

	// WHEN: a manual scan runs on the caller's context
	result, err := s.RunNow(ctx)
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	// THEN: the cycle finished, both actions were delivered and the void is recorded
	require.Len(t, result.Actions, 2)
	assert.Equal(t, model.ActionCancelled, result.Actions[0].Type)
	assert.Equal(t, model.ActionOverNoWallet, result.Actions[1].Type)
	assert.Len(t, n.delivered, 2)
	assert.Zero(t, n.rejected)
	assert.Equal(t, int64(2), s.Status().Stats.ActionsDispatched)

	voided, err := state.IsVoided(context.Background(), "CO123")
	require.NoError(t, err)
	assert.True(t, voided)
	assert.Equal(t, []string{"CO123"}, p.voids)
}

func TestScheduler_TickDuringCycleIsDropped(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int32
	r := &fakeRunner{run: func(ctx context.Context) (*model.CycleResult, error) {
		if started.Add(1) == 1 {
			<-release
		}
		return &model.CycleResult{}, nil
	}}
	s := NewScheduler(r, &fakeProvider{}, &fakeNotifier{}, SchedulerConfig{
		SubDepts: []int{85},
		Interval: 10 * time.Millisecond,
	})
	require.NoError(t, s.Authenticate(context.Background()))
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return r.Calls() == 1 }, time.Second, 2*time.Millisecond)

	// Many ticks fire while the first cycle is blocked; none may start a cycle.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, r.Calls())
	assert.True(t, s.Status().CycleInProgress)

	close(release)
	assert.Eventually(t, func() bool { return r.Calls() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, int64(r.Calls()), s.Status().Stats.TotalCycles)
}
