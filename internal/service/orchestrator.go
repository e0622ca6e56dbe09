package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"restack-guard/internal/model"
	"restack-guard/internal/opclock"
	"restack-guard/internal/upstream"
	"restack-guard/pkg/uid"
)

// Portal is the subset of the upstream client a scan cycle uses.
type Portal interface {
	FetchPurchaseOrders(ctx context.Context, subDept int, date time.Time, token string) ([]model.PurchaseOrder, error)
	FetchAncillaryItems(ctx context.Context, subDept int, date time.Time, token string) ([]model.AncillaryItem, error)
	FetchTruckSummaries(ctx context.Context, subDept int, date time.Time, token string) ([]model.TruckSummary, error)
	VoidWalletCheckout(ctx context.Context, checkoutID, token string) error
}

// Stages reported in model.SubDeptFailure.
const (
	StagePurchaseOrders = "purchase_orders"
	StageAncillaryItems = "ancillary_items"
	StageTruckSummaries = "truck_summaries"
)

// Orchestrator drives one polling cycle across sub-departments.
type Orchestrator struct {
	portal Portal
	engine *Engine
	clock  *opclock.Clock
}

// NewOrchestrator creates a scan orchestrator.
func NewOrchestrator(portal Portal, engine *Engine, clock *opclock.Clock) *Orchestrator {
	return &Orchestrator{portal: portal, engine: engine, clock: clock}
}

// RunCycle scans each sub-department in order and aggregates the results.
//
// The returned error is non-nil only for an auth-expiry, in which case the
// result holds whatever was produced before it. Other upstream failures are
// recorded in result.Failures and the cycle moves on.
func (o *Orchestrator) RunCycle(ctx context.Context, subDepts []int, apexToken, loadEntryToken string) (*model.CycleResult, error) {
	opDate := o.clock.Today()
	result := &model.CycleResult{
		ID:              uid.New(),
		OperationalDate: opclock.LoadEntryFormat(opDate),
		StartedAt:       time.Now(),
		POData:          []model.ScanResult{},
		Actions:         []model.Action{},
	}
	defer func() { result.FinishedAt = time.Now() }()

	void := func(ctx context.Context, checkoutID string) error {
		return o.portal.VoidWalletCheckout(ctx, checkoutID, loadEntryToken)
	}

	for _, sub := range subDepts {
		rec, err := o.scanSubDept(ctx, result, sub, opDate, apexToken, loadEntryToken, void)
		result.Merge(rec.POData, rec.Actions)
		if err != nil {
			return result, err
		}
	}

	log.Printf("[Orchestrator] Cycle %s for %s: %d POs, %d actions, %d failures",
		result.ID, result.OperationalDate, len(result.POData), len(result.Actions), len(result.Failures))
	return result, nil
}

func (o *Orchestrator) scanSubDept(
	ctx context.Context,
	result *model.CycleResult,
	sub int,
	opDate time.Time,
	apexToken, loadEntryToken string,
	void VoidFunc,
) (Reconciliation, error) {
	fail := func(stage string, err error) {
		log.Printf("[Orchestrator] subdept %d: %s fetch failed: %v", sub, stage, err)
		result.Failures = append(result.Failures, model.SubDeptFailure{SubDept: sub, Stage: stage, Error: err.Error()})
	}

	pos, err := o.portal.FetchPurchaseOrders(ctx, sub, opDate, apexToken)
	if err != nil {
		if upstream.IsAuthExpired(err) {
			return Reconciliation{}, fmt.Errorf("subdept %d: %w", sub, err)
		}
		fail(StagePurchaseOrders, err)
		return Reconciliation{}, nil
	}

	ancillary, err := o.portal.FetchAncillaryItems(ctx, sub, opDate, apexToken)
	if err != nil {
		if upstream.IsAuthExpired(err) {
			return Reconciliation{}, fmt.Errorf("subdept %d: %w", sub, err)
		}
		fail(StageAncillaryItems, err)
		return Reconciliation{}, nil
	}

	trucks, err := o.portal.FetchTruckSummaries(ctx, sub, opDate, loadEntryToken)
	if err != nil {
		if upstream.IsAuthExpired(err) {
			return Reconciliation{}, fmt.Errorf("subdept %d: %w", sub, err)
		}
		// POs are still evaluated; over-limit ones show as no-wallet this cycle.
		fail(StageTruckSummaries, err)
		trucks = nil
	}

	rec, err := o.engine.Reconcile(ctx, sub, pos, ancillary, trucks, void)
	if err != nil {
		return rec, fmt.Errorf("subdept %d: %w", sub, err)
	}
	return rec, nil
}
