package payment

import (
	"context"
	"errors"
)

// ErrDeclined indicates the provider refused a pre-authorization or capture.
// Transport failures are returned as-is and are retryable; a decline is not.
var ErrDeclined = errors.New("payment: declined")

// CaptureResult reports the outcome of a capture call.
type CaptureResult struct {
	Status string `json:"status"`
}

// Gateway is the two-phase payment capability consumed by the coordinator and
// the session lifecycle. All three calls are idempotent by ref on the
// provider side, so they are safe to repeat after a failed or partial call.
type Gateway interface {
	// PreAuthorize places a hold on the user's payment method and returns an
	// opaque reference for later capture or cancellation.
	PreAuthorize(ctx context.Context, userID int64, amountEur float64) (string, error)
	// Capture charges the given amount against a previously taken hold.
	Capture(ctx context.Context, ref string, amountEur float64) (CaptureResult, error)
	// Cancel releases a hold. Best-effort: callers log failures and move on.
	Cancel(ctx context.Context, ref string) error
}
