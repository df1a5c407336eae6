package httpserver

import "net/http"

// Routes groups handlers. User-facing routes are expected to be wrapped with
// auth middleware before being passed in.
type Routes struct {
	ChargersList     http.Handler
	ChargersOverlay  http.Handler
	ChargersStatusWS http.Handler
	Reserve          http.Handler
	CancelReserve    http.Handler
	SessionStart     http.Handler
	SessionStatus    http.Handler
	SessionStop      http.Handler
	SessionsMe       http.Handler
	MaintStart       http.Handler
	MaintStop        http.Handler
	PricingUpdate    http.Handler
	ChargerOutage    http.Handler
	ChargerUpsert    http.Handler
	Health           http.Handler
}

// NewRouter registers endpoints.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()
	register := func(pattern, verb string, handler http.Handler) {
		if handler != nil {
			mux.Handle(pattern, method(verb, handler))
		}
	}

	register("/chargers", http.MethodGet, routes.ChargersList)
	register("/chargers/status", http.MethodGet, routes.ChargersOverlay)
	register("/chargers/status/ws", http.MethodGet, routes.ChargersStatusWS)
	register("/reservations", http.MethodPost, routes.Reserve)
	register("/reservations/cancel", http.MethodPost, routes.CancelReserve)
	register("/sessions/start", http.MethodPost, routes.SessionStart)
	register("/sessions/status", http.MethodGet, routes.SessionStatus)
	register("/sessions/stop", http.MethodPost, routes.SessionStop)
	register("/sessions/me", http.MethodGet, routes.SessionsMe)
	register("/internal/maintenance/session-start", http.MethodPost, routes.MaintStart)
	register("/internal/maintenance/session-stop", http.MethodPost, routes.MaintStop)
	register("/internal/pricing/price", http.MethodPost, routes.PricingUpdate)
	register("/internal/chargers/outage", http.MethodPost, routes.ChargerOutage)
	register("/internal/chargers", http.MethodPost, routes.ChargerUpsert)
	register("/health", http.MethodGet, routes.Health)

	return mux
}

func method(expected string, handler http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	}
}
