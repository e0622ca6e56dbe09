package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"restack-guard/internal/cache"
	"restack-guard/internal/model"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var fixedNow = time.Date(2025, 3, 9, 14, 30, 0, 0, time.UTC)

func newTestEngine() (*Engine, *cache.MemorySetStore) {
	store := cache.NewMemorySetStore()
	e := NewEngine(NewReconciliationState(store))
	e.now = func() time.Time { return fixedNow }
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("action-%d", n)
	}
	return e, store
}

func po(number, truckID string, white int64) model.PurchaseOrder {
	return model.PurchaseOrder{
		PONumber:      model.FlexString(number),
		TruckID:       model.FlexString(truckID),
		PalletWhiteIn: model.Count(white),
	}
}

func fee(poNumber, name string, qty int64) model.AncillaryItem {
	return model.AncillaryItem{
		PONumber:          model.FlexString(poNumber),
		AdditionalFeeName: name,
		Quantity:          model.NewQuantity(qty),
	}
}

func truck(id, checkoutID, carrier string) model.TruckSummary {
	return model.TruckSummary{
		TruckID:                model.FlexString(id),
		DriverWalletCheckoutID: model.FlexString(checkoutID),
		CarrierName:            carrier,
	}
}

// voidRecorder records void calls and fails the IDs it is told to.
type voidRecorder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func newVoidRecorder() *voidRecorder {
	return &voidRecorder{fail: map[string]error{}}
}

func (v *voidRecorder) Void(ctx context.Context, checkoutID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, checkoutID)
	return v.fail[checkoutID]
}

func (v *voidRecorder) Calls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.calls...)
}

// brokenSetStore fails every operation.
type brokenSetStore struct{}

var errStoreDown = errors.New("store down")

func (brokenSetStore) IsMember(context.Context, string, string) (bool, error) { return false, errStoreDown }
func (brokenSetStore) Add(context.Context, string, string) error { return errStoreDown }
func (brokenSetStore) Count(context.Context, string) (int64, error) { return 0, errStoreDown }
func (brokenSetStore) Members(context.Context, string) ([]string, error) { return nil, errStoreDown }
func (brokenSetStore) Close() error { return nil }

// ctxSetStore refuses writes once ctx is done, like a network-backed store.
type ctxSetStore struct {
	*cache.MemorySetStore
}

func (s ctxSetStore) Add(ctx context.Context, set, member string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemorySetStore.Add(ctx, set, member)
}

// fakePortal serves canned data per sub-department.
type fakePortal struct {
	mu        sync.Mutex
	pos       map[int][]model.PurchaseOrder
	ancillary map[int][]model.AncillaryItem
	trucks    map[int][]model.TruckSummary
	errs      map[string]error // keyed "pos:85", "ancillary:85", "trucks:85", "void:CO1"
	voids     []string
	dates     []time.Time
	tokens    []string
	onVoid    func() // runs after each void is recorded
}

func newFakePortal() *fakePortal {
	return &fakePortal{
		pos:       map[int][]model.PurchaseOrder{},
		ancillary: map[int][]model.AncillaryItem{},
		trucks:    map[int][]model.TruckSummary{},
		errs:      map[string]error{},
	}
}

func (p *fakePortal) FetchPurchaseOrders(ctx context.Context, subDept int, date time.Time, token string) ([]model.PurchaseOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dates = append(p.dates, date)
	p.tokens = append(p.tokens, "pos:"+token)
	if err := p.errs[fmt.Sprintf("pos:%d", subDept)]; err != nil {
		return nil, err
	}
	return p.pos[subDept], nil
}

func (p *fakePortal) FetchAncillaryItems(ctx context.Context, subDept int, date time.Time, token string) ([]model.AncillaryItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens = append(p.tokens, "ancillary:"+token)
	if err := p.errs[fmt.Sprintf("ancillary:%d", subDept)]; err != nil {
		return nil, err
	}
	return p.ancillary[subDept], nil
}

func (p *fakePortal) FetchTruckSummaries(ctx context.Context, subDept int, date time.Time, token string) ([]model.TruckSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens = append(p.tokens, "trucks:"+token)
	if err := p.errs[fmt.Sprintf("trucks:%d", subDept)]; err != nil {
		return nil, err
	}
	return p.trucks[subDept], nil
}

func (p *fakePortal) VoidWalletCheckout(ctx context.Context, checkoutID, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens = append(p.tokens, "void:"+token)
	p.voids = append(p.voids, checkoutID)
	if p.onVoid != nil {
		p.onVoid()
	}
	return p.errs["void:"+checkoutID]
}
