package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"restack-guard/internal/model"
	"restack-guard/internal/upstream"
	"restack-guard/pkg/uid"

	"github.com/shopspring/decimal"
)

// VoidFunc voids a driver wallet checkout. The orchestrator binds it to the
// current Load-Entry token.
type VoidFunc func(ctx context.Context, checkoutID string) error

// stateWriteTimeout bounds a dedup write made after the cycle context is gone.
const stateWriteTimeout = 10 * time.Second

// Reconciliation is the outcome of reconciling one sub-department.
type Reconciliation struct {
	POData  []model.ScanResult
	Actions []model.Action
}

// Engine joins POs with their restack/upstack totals and truck wallet
// checkouts, decides each PO's status, and voids over-limit checkouts at most
// once per checkout ID.
type Engine struct {
	state *ReconciliationState
	now   func() time.Time
	newID func() string
}

// NewEngine creates a reconciliation engine over the given dedup state.
func NewEngine(state *ReconciliationState) *Engine {
	return &Engine{
		state: state,
		now:   time.Now,
		newID: uid.New,
	}
}

// State returns the engine's dedup state.
func (e *Engine) State() *ReconciliationState {
	return e.state
}

func isRestackFee(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "restack", "upstack":
		return true
	}
	return false
}

// Reconcile evaluates every PO of one sub-department.
//
// An auth-expiry from void is returned immediately together with the rows and
// actions produced so far; the offending checkout is not marked voided. Any
// other void or state-store failure only affects its own PO, which stays OVER.
func (e *Engine) Reconcile(
	ctx context.Context,
	subDept int,
	pos []model.PurchaseOrder,
	ancillary []model.AncillaryItem,
	trucks []model.TruckSummary,
	void VoidFunc,
) (Reconciliation, error) {
	restacksByPO := make(map[string]decimal.Decimal)
	carrierByPO := make(map[string]string)
	for _, item := range ancillary {
		po := item.PONumber.String()
		if isRestackFee(item.AdditionalFeeName) {
			restacksByPO[po] = restacksByPO[po].Add(item.Quantity.Decimal)
		}
		if carrier := strings.TrimSpace(item.CarrierName); carrier != "" {
			carrierByPO[po] = carrier
		}
	}

	truckByID := make(map[string]model.TruckSummary, len(trucks))
	for _, t := range trucks {
		truckByID[t.TruckID.String()] = t
	}

	out := Reconciliation{
		POData:  make([]model.ScanResult, 0, len(pos)),
		Actions: []model.Action{},
	}

	for _, po := range pos {
		poNumber := po.PONumber.String()
		truckID := po.TruckID.String()
		truck, hasTruck := truckByID[truckID]

		carrier := carrierByPO[poNumber]
		if carrier == "" && hasTruck {
			carrier = strings.TrimSpace(truck.CarrierName)
		}

		row := model.ScanResult{
			SubDept:          subDept,
			PONumber:         poNumber,
			TruckID:          truckID,
			Carrier:          carrier,
			PalletsIn:        po.PalletsIn(),
			RestacksUpstacks: model.Quantity{Decimal: restacksByPO[poNumber]},
			Status:           model.StatusOK,
		}

		if !row.RestacksUpstacks.GreaterThan(decimal.NewFromInt(row.PalletsIn)) {
			out.POData = append(out.POData, row)
			continue
		}

		row.Status = model.StatusOver
		checkoutID := truck.DriverWalletCheckoutID.String()

		var action *model.Action
		var err error
		if checkoutID != "" {
			action, err = e.cancelCheckout(ctx, &row, checkoutID, void)
		} else {
			action = e.alertNoWallet(ctx, &row)
		}
		if err != nil {
			out.POData = append(out.POData, row)
			return out, err
		}

		out.POData = append(out.POData, row)
		if action != nil {
			out.Actions = append(out.Actions, *action)
		}
	}

	return out, nil
}

// cancelCheckout voids checkoutID unless it was voided before. Only an
// auth-expiry is returned as an error.
func (e *Engine) cancelCheckout(ctx context.Context, row *model.ScanResult, checkoutID string, void VoidFunc) (*model.Action, error) {
	voided, err := e.state.IsVoided(ctx, checkoutID)
	if err != nil {
		log.Printf("[Reconcile] subdept %d PO %s: dedup lookup for checkout %s failed, skipping void: %v",
			row.SubDept, row.PONumber, checkoutID, err)
		return nil, nil
	}
	if voided {
		row.Status = model.StatusCancelled
		return nil, nil
	}

	if err := void(ctx, checkoutID); err != nil {
		if upstream.IsAuthExpired(err) {
			return nil, fmt.Errorf("void checkout %s for PO %s: %w", checkoutID, row.PONumber, err)
		}
		log.Printf("[Reconcile] subdept %d PO %s: void of checkout %s failed, will retry next cycle: %v",
			row.SubDept, row.PONumber, checkoutID, err)
		return nil, nil
	}

	row.Status = model.StatusCancelled
	// The void already happened upstream; record it even if the cycle was cancelled meanwhile.
	wctx, cancel := detached(ctx)
	defer cancel()
	if err := e.state.MarkVoided(wctx, checkoutID); err != nil {
		log.Printf("[Reconcile] subdept %d PO %s: checkout %s voided but not recorded: %v",
			row.SubDept, row.PONumber, checkoutID, err)
	}
	log.Printf("[Reconcile] subdept %d PO %s: voided checkout %s (restacks %s > pallets %d)",
		row.SubDept, row.PONumber, checkoutID, row.RestacksUpstacks, row.PalletsIn)

	a := e.action(model.ActionCancelled, row)
	a.DriverWalletCheckoutID = checkoutID
	return &a, nil
}

// alertNoWallet emits the over-no-wallet action the first time a PO is seen.
func (e *Engine) alertNoWallet(ctx context.Context, row *model.ScanResult) *model.Action {
	alerted, err := e.state.IsAlerted(ctx, row.PONumber)
	if err != nil {
		log.Printf("[Reconcile] subdept %d PO %s: dedup lookup failed, skipping alert: %v", row.SubDept, row.PONumber, err)
		return nil
	}
	if alerted {
		return nil
	}

	wctx, cancel := detached(ctx)
	defer cancel()
	if err := e.state.MarkAlerted(wctx, row.PONumber); err != nil {
		log.Printf("[Reconcile] subdept %d PO %s: failed to record alert: %v", row.SubDept, row.PONumber, err)
	}
	log.Printf("[Reconcile] subdept %d PO %s: over limit with no wallet checkout (restacks %s > pallets %d)",
		row.SubDept, row.PONumber, row.RestacksUpstacks, row.PalletsIn)

	a := e.action(model.ActionOverNoWallet, row)
	return &a
}

// detached returns a context that ignores cancellation of ctx but keeps its
// values, bounded by stateWriteTimeout.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), stateWriteTimeout)
}

func (e *Engine) action(t model.ActionType, row *model.ScanResult) model.Action {
	return model.Action{
		ID:               e.newID(),
		Type:             t,
		SubDept:          row.SubDept,
		PONumber:         row.PONumber,
		TruckID:          row.TruckID,
		Carrier:          row.Carrier,
		PalletsIn:        row.PalletsIn,
		RestacksUpstacks: row.RestacksUpstacks,
		Timestamp:        e.now(),
	}
}
