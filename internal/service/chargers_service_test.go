package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Zajason/ChargeNET-sub000/internal/models"
	redisstore "github.com/Zajason/ChargeNET-sub000/internal/redis"
)

type fakeReconciler struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeReconciler) ReconcileExpired(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type catalogFixture struct {
	svc        *ChargersService
	chargers   *fakeChargers
	locks      *fakeLocks
	reconciler *fakeReconciler
}

func newCatalog(t *testing.T, chargers ...*models.Charger) *catalogFixture {
	t.Helper()
	f := &catalogFixture{
		chargers:   newFakeChargers(chargers...),
		locks:      newFakeLocks(),
		reconciler: &fakeReconciler{},
	}
	f.svc = NewChargersService(f.chargers, f.locks, f.reconciler, zap.NewNop())
	return f
}

func viewByID(t *testing.T, views []ChargerView, id string) ChargerView {
	t.Helper()
	for _, v := range views {
		if v.ID == id {
			return v
		}
	}
	t.Fatalf("charger %s missing from listing", id)
	return ChargerView{}
}

func TestListOverlayWinsOverDurable(t *testing.T) {
	f := newCatalog(t, testCharger("ch-1"), testCharger("ch-2"))
	f.locks.SetChargerStatus(context.Background(), "ch-1", redisstore.StatusInUse, 0)

	views, err := f.svc.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("len = %d, want 2", len(views))
	}
	if got := viewByID(t, views, "ch-1").LiveStatus; got != redisstore.StatusInUse {
		t.Fatalf("ch-1 live status %q, want in_use", got)
	}
	// No overlay key: the durable status is surfaced, lowercased.
	if got := viewByID(t, views, "ch-2").LiveStatus; got != "available" {
		t.Fatalf("ch-2 live status %q, want available", got)
	}
	if f.reconciler.calls != 1 {
		t.Fatalf("reconciler calls = %d, want 1", f.reconciler.calls)
	}
}

func TestListMarksCallersReservation(t *testing.T) {
	f := newCatalog(t, testCharger("ch-1"), testCharger("ch-2"))
	expiresAt := testNow.Add(30 * time.Minute)
	err := f.locks.Acquire(context.Background(), redisstore.ReservationLock{
		UserID:      7,
		ChargerID:   "ch-1",
		ExpiresAtMs: expiresAt.UnixMilli(),
	}, 30*time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	views, err := f.svc.List(context.Background(), 7)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	mine := viewByID(t, views, "ch-1")
	if !mine.ReservedBy {
		t.Fatal("ch-1 should be flagged reserved_by_you")
	}
	if mine.ReservedUntil == nil || !mine.ReservedUntil.Equal(expiresAt) {
		t.Fatalf("reserved until = %v, want %v", mine.ReservedUntil, expiresAt)
	}
	other := viewByID(t, views, "ch-2")
	if other.ReservedBy || other.ReservedUntil != nil {
		t.Fatal("ch-2 must not carry the caller's reservation")
	}
}

func TestListSurvivesReconcilerFailure(t *testing.T) {
	f := newCatalog(t, testCharger("ch-1"))
	f.reconciler.err = errBoom

	views, err := f.svc.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("list must not fail on reconciler error: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("len = %d, want 1", len(views))
	}
}

func TestSetOutageWritesBothLayers(t *testing.T) {
	f := newCatalog(t, testCharger("ch-1"))

	if err := f.svc.SetOutage(context.Background(), "ch-1", true); err != nil {
		t.Fatalf("set outage: %v", err)
	}
	stored, _ := f.chargers.GetByID(context.Background(), "ch-1")
	if stored.Status != models.ChargerOutage {
		t.Fatalf("durable status %s, want OUTAGE", stored.Status)
	}
	if st := f.locks.status("ch-1"); st != redisstore.StatusOutage {
		t.Fatalf("overlay %q, want outage", st)
	}

	if err := f.svc.SetOutage(context.Background(), "ch-1", false); err != nil {
		t.Fatalf("clear outage: %v", err)
	}
	stored, _ = f.chargers.GetByID(context.Background(), "ch-1")
	if stored.Status != models.ChargerAvailable {
		t.Fatalf("durable status %s, want AVAILABLE", stored.Status)
	}
	if st := f.locks.status("ch-1"); st != redisstore.StatusAvailable {
		t.Fatalf("overlay %q, want available", st)
	}
}

func TestSetOutageUnknownCharger(t *testing.T) {
	f := newCatalog(t)
	if err := f.svc.SetOutage(context.Background(), "ghost", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdatePriceValidation(t *testing.T) {
	f := newCatalog(t, testCharger("ch-1"))

	if err := f.svc.UpdatePrice(context.Background(), "ch-1", 0); !errors.Is(err, ErrConflict) {
		t.Fatalf("zero price err = %v, want ErrConflict", err)
	}
	if err := f.svc.UpdatePrice(context.Background(), "ch-1", -0.1); !errors.Is(err, ErrConflict) {
		t.Fatalf("negative price err = %v, want ErrConflict", err)
	}
	if err := f.svc.UpdatePrice(context.Background(), "ghost", 0.4); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown charger err = %v, want ErrNotFound", err)
	}

	if err := f.svc.UpdatePrice(context.Background(), "ch-1", 0.42); err != nil {
		t.Fatalf("update price: %v", err)
	}
	stored, _ := f.chargers.GetByID(context.Background(), "ch-1")
	if stored.PricePerKWh != 0.42 {
		t.Fatalf("price = %v, want 0.42", stored.PricePerKWh)
	}
}

func TestUpsertDefaultsStatus(t *testing.T) {
	f := newCatalog(t)

	if err := f.svc.Upsert(context.Background(), &models.Charger{ID: " "}); !errors.Is(err, ErrConflict) {
		t.Fatal("blank id must be rejected")
	}

	c := &models.Charger{ID: "ch-9", Name: "New", MaxKW: 22, PricePerKWh: 0.25}
	if err := f.svc.Upsert(context.Background(), c); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	stored, err := f.chargers.GetByID(context.Background(), "ch-9")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != models.ChargerAvailable {
		t.Fatalf("status %s, want AVAILABLE default", stored.Status)
	}
}
