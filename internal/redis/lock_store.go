package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Overlay charger statuses kept in redis. They override the durable status
// column at query time while a reservation or session holds the charger.
const (
	StatusAvailable = "available"
	StatusInUse     = "in_use"
	StatusOutage    = "outage"
)

// Lock acquisition failures. The Lua script reports which key blocked the
// acquire so callers can return a distinguishable reason.
var (
	ErrUserAlreadyReserved    = errors.New("lockstore: user already holds a reservation")
	ErrChargerAlreadyReserved = errors.New("lockstore: charger already reserved")
)

// ReservationLock is the JSON payload stored under reservation:charger:{id}.
type ReservationLock struct {
	UserID      int64  `json:"user_id"`
	ChargerID   string `json:"charger_id"`
	ExpiresAtMs int64  `json:"expires_at_ms"`
}

// acquireScript checks the per-user and per-charger reservation keys and, if
// both are absent, sets them together with the in_use status overlay in one
// atomic round trip. Redis runs the script to completion without
// interleaving, which makes it the linearization point for Reserve across any
// number of server processes.
//
// KEYS[1] = reservation:charger:{chargerID}
// KEYS[2] = reservation:user:{userID}
// KEYS[3] = status:charger:{chargerID}
// ARGV[1] = reservation payload JSON
// ARGV[2] = chargerID
// ARGV[3] = TTL in milliseconds
var acquireScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[2]) == 1 then
		return 'user_held'
	end
	if redis.call('EXISTS', KEYS[1]) == 1 then
		return 'charger_held'
	end
	local ttl = tonumber(ARGV[3])
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ttl)
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ttl)
	redis.call('SET', KEYS[3], 'in_use', 'PX', ttl)
	return 'ok'
`)

// LockStore owns the reservation:* and status:charger:* keys. No other
// component may write them.
type LockStore struct {
	client *redis.Client
}

// NewLockStore returns a redis-backed lock store.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

func chargerKey(chargerID string) string {
	return fmt.Sprintf("reservation:charger:%s", chargerID)
}

func userKey(userID int64) string {
	return fmt.Sprintf("reservation:user:%d", userID)
}

func statusKey(chargerID string) string {
	return fmt.Sprintf("status:charger:%s", chargerID)
}

// Acquire atomically takes the reservation lock for (userID, chargerID) with
// the given TTL. It fails with ErrUserAlreadyReserved or
// ErrChargerAlreadyReserved when the corresponding key already exists; any
// other error is a transport failure.
func (s *LockStore) Acquire(ctx context.Context, lock ReservationLock, ttl time.Duration) error {
	payload, err := json.Marshal(lock)
	if err != nil {
		return err
	}

	keys := []string{chargerKey(lock.ChargerID), userKey(lock.UserID), statusKey(lock.ChargerID)}
	res, err := acquireScript.Run(ctx, s.client, keys, payload, lock.ChargerID, ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("lockstore: acquire script: %w", err)
	}

	switch res {
	case "ok":
		return nil
	case "user_held":
		return ErrUserAlreadyReserved
	case "charger_held":
		return ErrChargerAlreadyReserved
	default:
		return fmt.Errorf("lockstore: unexpected script result %v", res)
	}
}

// Release drops both reservation keys and resets the status overlay to
// available. Used by explicit cancellation; cross-key atomicity is not needed
// here because ownership was already verified durably.
func (s *LockStore) Release(ctx context.Context, userID int64, chargerID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, chargerKey(chargerID))
	pipe.Del(ctx, userKey(userID))
	pipe.Set(ctx, statusKey(chargerID), StatusAvailable, 0)
	_, err := pipe.Exec(ctx)
	return err
}

// Promote converts a reservation hold into a session hold: the reservation
// keys are consumed and the status overlay is pinned in_use with no TTL, so
// only an explicit release clears it.
func (s *LockStore) Promote(ctx context.Context, userID int64, chargerID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, chargerKey(chargerID))
	pipe.Del(ctx, userKey(userID))
	pipe.Set(ctx, statusKey(chargerID), StatusInUse, 0)
	_, err := pipe.Exec(ctx)
	return err
}

// ReleaseCharger resets the status overlay to available after a session ends.
func (s *LockStore) ReleaseCharger(ctx context.Context, chargerID string) error {
	return s.client.Set(ctx, statusKey(chargerID), StatusAvailable, 0).Err()
}

// SetChargerStatus writes an arbitrary overlay status. ttl <= 0 pins the key
// with no expiry.
func (s *LockStore) SetChargerStatus(ctx context.Context, chargerID, status string, ttl time.Duration) error {
	return s.client.Set(ctx, statusKey(chargerID), status, ttl).Err()
}

// ChargerStatuses returns the overlay status for each requested charger.
// Chargers without an overlay entry are absent from the result.
func (s *LockStore) ChargerStatuses(ctx context.Context, chargerIDs []string) (map[string]string, error) {
	if len(chargerIDs) == 0 {
		return map[string]string{}, nil
	}

	keys := make([]string, 0, len(chargerIDs))
	for _, id := range chargerIDs {
		keys = append(keys, statusKey(id))
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	statuses := make(map[string]string, len(chargerIDs))
	for i, v := range vals {
		if v == nil {
			continue
		}
		if str, ok := v.(string); ok {
			statuses[chargerIDs[i]] = str
		}
	}
	return statuses, nil
}

// UserReservedCharger returns the charger currently reserved by the user, or
// "" when the user holds no live reservation.
func (s *LockStore) UserReservedCharger(ctx context.Context, userID int64) (string, error) {
	val, err := s.client.Get(ctx, userKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// ChargerReservation returns the payload of a live reservation lock, or nil
// when the charger key is absent.
func (s *LockStore) ChargerReservation(ctx context.Context, chargerID string) (*ReservationLock, error) {
	val, err := s.client.Get(ctx, chargerKey(chargerID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var lock ReservationLock
	if err := json.Unmarshal([]byte(val), &lock); err != nil {
		return nil, err
	}
	return &lock, nil
}
