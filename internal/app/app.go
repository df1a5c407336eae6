package app

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libdb "github.com/Zajason/ChargeNET-sub000/libs/db"
	libredis "github.com/Zajason/ChargeNET-sub000/libs/redis"

	"github.com/Zajason/ChargeNET-sub000/internal/config"
	httpserver "github.com/Zajason/ChargeNET-sub000/internal/http"
	"github.com/Zajason/ChargeNET-sub000/internal/http/handlers"
	"github.com/Zajason/ChargeNET-sub000/internal/http/middleware"
	"github.com/Zajason/ChargeNET-sub000/internal/payment"
	redisstore "github.com/Zajason/ChargeNET-sub000/internal/redis"
	"github.com/Zajason/ChargeNET-sub000/internal/repository"
	"github.com/Zajason/ChargeNET-sub000/internal/service"
	"github.com/Zajason/ChargeNET-sub000/internal/ws"
)

// App wires the coordination service dependencies. Construction is explicit
// and lifetime-scoped: the redis client and the pg pool are created once at
// startup and handed to the services, never reached for implicitly.
type App struct {
	server      *httpserver.Server
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := libdb.NewPostgresDB(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	redisClient, err := libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	chargerRepo := repository.NewChargerRepository(sqlDB)
	reservationRepo := repository.NewReservationRepository(sqlDB)
	sessionRepo := repository.NewSessionRepository(sqlDB)
	locks := redisstore.NewLockStore(redisClient)

	gateway := payment.NewHTTPGateway(
		cfg.Payment.BaseURL,
		cfg.Payment.APIKey,
		payment.NewDefaultHTTPClient(cfg.PaymentTimeout()),
	)

	reservationsSvc := service.NewReservationsService(
		chargerRepo, reservationRepo, locks, gateway, cfg.Payment.HoldAmountEur, logger,
	)
	sessionsSvc := service.NewSessionsService(
		chargerRepo, reservationRepo, sessionRepo, locks, gateway, logger,
	)
	chargersSvc := service.NewChargersService(chargerRepo, locks, reservationsSvc, logger)

	reservationsHandler := handlers.NewReservationsHandler(reservationsSvc, logger)
	sessionsHandler := handlers.NewSessionsHandler(sessionsSvc, logger)
	chargersHandler := handlers.NewChargersHandler(chargersSvc, logger)
	maintenanceHandler := handlers.NewMaintenanceHandler(sessionsSvc, logger)
	statusFeed := ws.NewStatusFeed(chargersSvc, 0, logger)

	auth := middleware.AuthMiddleware(cfg.Auth.JWTSecret)
	routes := httpserver.Routes{
		ChargersList:     auth(http.HandlerFunc(chargersHandler.List)),
		ChargersOverlay:  http.HandlerFunc(chargersHandler.OverlayStatus),
		ChargersStatusWS: http.HandlerFunc(statusFeed.HandleWS),
		Reserve:          auth(http.HandlerFunc(reservationsHandler.Reserve)),
		CancelReserve:    auth(http.HandlerFunc(reservationsHandler.Cancel)),
		SessionStart:     auth(http.HandlerFunc(sessionsHandler.Start)),
		SessionStatus:    auth(http.HandlerFunc(sessionsHandler.Status)),
		SessionStop:      auth(http.HandlerFunc(sessionsHandler.Stop)),
		SessionsMe:       auth(http.HandlerFunc(sessionsHandler.History)),
		MaintStart:       http.HandlerFunc(maintenanceHandler.StartSession),
		MaintStop:        http.HandlerFunc(maintenanceHandler.StopSession),
		PricingUpdate:    http.HandlerFunc(chargersHandler.UpdatePrice),
		ChargerOutage:    http.HandlerFunc(chargersHandler.SetOutage),
		ChargerUpsert:    http.HandlerFunc(chargersHandler.Upsert),
		Health:           handlers.NewHealthHandler(),
	}

	router := httpserver.NewRouter(routes)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server:      server,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run starts HTTP server.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
