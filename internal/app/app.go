package app

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lukasbauer/fishvoice/internal/eventlog"
	"github.com/lukasbauer/fishvoice/internal/httpapi"
	"github.com/lukasbauer/fishvoice/internal/store"
)

type App struct {
	cfg        Config
	logger     *log.Logger
	db         *pgxpool.Pool
	store      *store.Store
	eventLog   *eventlog.Logger
	httpClient *http.Client // Shared HTTP client with connection pooling for Fish Audio
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	if cfg.FishAPIKey == "" {
		return nil, errors.New("FISH_API_KEY is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s := store.New(db)
	el := eventlog.New(db)

	// Migrations are applied externally by the CI deploy job.
	// No automatic migration runner at startup.

	// Shared HTTP client with connection pooling.
	// Keeps TCP connections alive to reduce latency for repeated calls to
	// the Fish Audio API (single host).
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		store:      s,
		eventLog:   el,
		httpClient: httpClient,
	}, nil
}

func (a *App) Router() http.Handler {
	routerCfg := httpapi.RouterConfig{
		FishAPIKey:       a.cfg.FishAPIKey,
		FishBaseURL:      a.cfg.FishBaseURL,
		FishLiveEndpoint: a.cfg.FishLiveEndpoint,
		FishModel:        a.cfg.FishModel,
		TTSReferenceID:   a.cfg.TTSReferenceID,
		TTSFormat:        a.cfg.TTSFormat,
		TTSLatency:       a.cfg.TTSLatency,
		TTSChunkLength:   a.cfg.TTSChunkLength,
		JWTSecret:        a.cfg.JWTSecret,
		JWTExpiry:        a.cfg.JWTExpiry,
		GatewayKeys:      a.cfg.GatewayKeys,
		FishHTTPClient:   a.httpClient,
	}
	return httpapi.NewRouter(routerCfg, a.logger, a.store, a.eventLog)
}

func (a *App) Close() error {
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
