package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Zajason/ChargeNET-sub000/internal/models"
	"github.com/Zajason/ChargeNET-sub000/internal/payment"
	redisstore "github.com/Zajason/ChargeNET-sub000/internal/redis"
	"github.com/Zajason/ChargeNET-sub000/internal/repository"
)

type fakeChargers struct {
	mu       sync.Mutex
	chargers map[string]*models.Charger
}

func newFakeChargers(chargers ...*models.Charger) *fakeChargers {
	f := &fakeChargers{chargers: make(map[string]*models.Charger)}
	for _, c := range chargers {
		f.chargers[c.ID] = c
	}
	return f
}

func (f *fakeChargers) GetByID(ctx context.Context, id string) (*models.Charger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chargers[id]
	if !ok {
		return nil, repository.ErrChargerNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeChargers) List(ctx context.Context) ([]models.Charger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Charger
	for _, c := range f.chargers {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeChargers) UpdateStatus(ctx context.Context, id, status string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chargers[id]
	if !ok {
		return repository.ErrChargerNotFound
	}
	c.Status = status
	return nil
}

func (f *fakeChargers) UpdatePrice(ctx context.Context, id string, price float64, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chargers[id]
	if !ok {
		return repository.ErrChargerNotFound
	}
	c.PricePerKWh = price
	return nil
}

func (f *fakeChargers) Upsert(ctx context.Context, charger *models.Charger, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *charger
	f.chargers[charger.ID] = &copied
	return nil
}

type fakeReservations struct {
	mu           sync.Mutex
	reservations map[string]*models.Reservation
	createErr    error
}

func newFakeReservations() *fakeReservations {
	return &fakeReservations{reservations: make(map[string]*models.Reservation)}
}

func (f *fakeReservations) put(res *models.Reservation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *res
	f.reservations[res.ID] = &copied
}

func (f *fakeReservations) CreateWithChargerHold(ctx context.Context, res *models.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copied := *res
	f.reservations[res.ID] = &copied
	return nil
}

func (f *fakeReservations) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.reservations[id]
	if !ok {
		return nil, repository.ErrReservationNotFound
	}
	copied := *res
	return &copied, nil
}

func (f *fakeReservations) ActiveByUser(ctx context.Context, userID int64, now time.Time) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, res := range f.reservations {
		if res.UserID == userID && res.Status == models.ReservationActive && res.ExpiresAt.After(now) {
			copied := *res
			return &copied, nil
		}
	}
	return nil, repository.ErrReservationNotFound
}

func (f *fakeReservations) ActiveByUserAndCharger(ctx context.Context, userID int64, chargerID string, now time.Time) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, res := range f.reservations {
		if res.UserID == userID && res.ChargerID == chargerID && res.Status == models.ReservationActive && res.ExpiresAt.After(now) {
			copied := *res
			return &copied, nil
		}
	}
	return nil, repository.ErrReservationNotFound
}

func (f *fakeReservations) Cancel(ctx context.Context, id, chargerID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.reservations[id]
	if !ok || res.Status != models.ReservationActive {
		return repository.ErrReservationNotFound
	}
	res.Status = models.ReservationCancelled
	return nil
}

func (f *fakeReservations) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, res := range f.reservations {
		if res.Status == models.ReservationActive && res.ExpiresAt.Before(now) {
			res.Status = models.ReservationExpired
			count++
		}
	}
	return count, nil
}

func (f *fakeReservations) consume(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.reservations[id]
	if !ok || res.Status != models.ReservationActive {
		return false
	}
	res.Status = models.ReservationExpired
	return true
}

type fakeSessions struct {
	mu            sync.Mutex
	sessions      map[string]*models.Session
	reservations  *fakeReservations
	finalizeCalls int
	winner        *models.Session
}

func newFakeSessions(reservations *fakeReservations) *fakeSessions {
	return &fakeSessions{sessions: make(map[string]*models.Session), reservations: reservations}
}

func (f *fakeSessions) put(sess *models.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *sess
	f.sessions[sess.ID] = &copied
}

func (f *fakeSessions) StartConsumingReservation(ctx context.Context, session *models.Session, reservationID string) error {
	if !f.reservations.consume(reservationID) {
		return repository.ErrReservationConsumed
	}
	f.put(session)
	return nil
}

func (f *fakeSessions) Create(ctx context.Context, session *models.Session) error {
	f.put(session)
	return nil
}

func (f *fakeSessions) GetByID(ctx context.Context, id string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	copied := *sess
	return &copied, nil
}

func (f *fakeSessions) UpdateEnergy(ctx context.Context, id string, kwh float64, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sess, ok := f.sessions[id]; ok && sess.Status == models.SessionRunning {
		sess.KWh = kwh
	}
	return nil
}

func (f *fakeSessions) Finalize(ctx context.Context, id, chargerID string, upd repository.FinalizeUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalizeCalls++
	if f.winner != nil {
		// A concurrent finalizer committed between the read and this update.
		copied := *f.winner
		f.sessions[id] = &copied
		return false, nil
	}
	sess, ok := f.sessions[id]
	if !ok || sess.Status != models.SessionRunning {
		return false, nil
	}
	sess.Status = upd.Status
	ended := upd.EndedAt
	sess.EndedAt = &ended
	sess.KWh = upd.KWh
	sess.CostEur = upd.CostEur
	sess.PaymentStatus = upd.PaymentStatus
	return true, nil
}

func (f *fakeSessions) SetPaymentOutcome(ctx context.Context, id, paymentStatus string, insufficientFunds bool, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sess, ok := f.sessions[id]; ok {
		sess.PaymentStatus = paymentStatus
		if insufficientFunds {
			sess.Status = models.SessionInsufficientFunds
		}
	}
	return nil
}

func (f *fakeSessions) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Session
	for _, sess := range f.sessions {
		if sess.UserID == userID {
			out = append(out, *sess)
		}
	}
	return out, nil
}

type fakeLocks struct {
	mu          sync.Mutex
	userKeys    map[int64]string
	chargerKeys map[string]redisstore.ReservationLock
	statuses    map[string]string
	acquireErr  error
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{
		userKeys:    make(map[int64]string),
		chargerKeys: make(map[string]redisstore.ReservationLock),
		statuses:    make(map[string]string),
	}
}

func (f *fakeLocks) Acquire(ctx context.Context, lock redisstore.ReservationLock, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return f.acquireErr
	}
	if _, held := f.userKeys[lock.UserID]; held {
		return redisstore.ErrUserAlreadyReserved
	}
	if _, held := f.chargerKeys[lock.ChargerID]; held {
		return redisstore.ErrChargerAlreadyReserved
	}
	f.userKeys[lock.UserID] = lock.ChargerID
	f.chargerKeys[lock.ChargerID] = lock
	f.statuses[lock.ChargerID] = redisstore.StatusInUse
	return nil
}

func (f *fakeLocks) Release(ctx context.Context, userID int64, chargerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.userKeys, userID)
	delete(f.chargerKeys, chargerID)
	f.statuses[chargerID] = redisstore.StatusAvailable
	return nil
}

func (f *fakeLocks) Promote(ctx context.Context, userID int64, chargerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.userKeys, userID)
	delete(f.chargerKeys, chargerID)
	f.statuses[chargerID] = redisstore.StatusInUse
	return nil
}

func (f *fakeLocks) ReleaseCharger(ctx context.Context, chargerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[chargerID] = redisstore.StatusAvailable
	return nil
}

func (f *fakeLocks) SetChargerStatus(ctx context.Context, chargerID, status string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[chargerID] = status
	return nil
}

func (f *fakeLocks) ChargerStatuses(ctx context.Context, chargerIDs []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string)
	for _, id := range chargerIDs {
		if st, ok := f.statuses[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

func (f *fakeLocks) UserReservedCharger(ctx context.Context, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userKeys[userID], nil
}

func (f *fakeLocks) ChargerReservation(ctx context.Context, chargerID string) (*redisstore.ReservationLock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lock, held := f.chargerKeys[chargerID]
	if !held {
		return nil, nil
	}
	copied := lock
	return &copied, nil
}

func (f *fakeLocks) status(chargerID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[chargerID]
}

func (f *fakeLocks) chargerHeld(chargerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, held := f.chargerKeys[chargerID]
	return held
}

type fakeGateway struct {
	mu         sync.Mutex
	refSeq     int
	preauthErr error
	captureErr error
	cancelErr  error
	preauths   []float64
	captures   map[string]float64
	cancels    []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{captures: make(map[string]float64)}
}

func (f *fakeGateway) PreAuthorize(ctx context.Context, userID int64, amountEur float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.preauthErr != nil {
		return "", f.preauthErr
	}
	f.refSeq++
	f.preauths = append(f.preauths, amountEur)
	return fmt.Sprintf("hold-%d", f.refSeq), nil
}

func (f *fakeGateway) Capture(ctx context.Context, ref string, amountEur float64) (payment.CaptureResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return payment.CaptureResult{}, f.captureErr
	}
	f.captures[ref] = amountEur
	return payment.CaptureResult{Status: "succeeded"}, nil
}

func (f *fakeGateway) Cancel(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancels = append(f.cancels, ref)
	return nil
}

func (f *fakeGateway) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancels)
}

func (f *fakeGateway) captureCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.captures)
}

var errBoom = errors.New("boom")
