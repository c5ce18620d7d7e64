// Package api exposes the engine over HTTP behind a nostr challenge login.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Maphikza/sip-privacy-wallet/internal/keystore"
	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
	"github.com/Maphikza/sip-privacy-wallet/internal/wallet"
)

type Server struct {
	engine *wallet.Engine
	store  keystore.Store
	locker *keystore.Locker
	cfg    Config
	now    func() time.Time
}

// NewServer builds the API. Challenges are kept in store next to the
// engine's own data.
func NewServer(engine *wallet.Engine, store keystore.Store, cfg Config) (*Server, error) {
	if len(cfg.JWTKey) == 0 {
		key, err := GenerateJWTKey()
		if err != nil {
			return nil, err
		}
		cfg.JWTKey = key
	}
	return &Server{engine: engine, store: store, locker: keystore.NewLocker(), cfg: cfg, now: time.Now}, nil
}

// Routes returns the complete handler tree.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	public := func(h http.HandlerFunc, methods ...string) http.HandlerFunc {
		return ApplyMiddleware(h, allowMethods(methods...), s.CORSMiddleware, RequestIDMiddleware, LoggingMiddleware, ErrorMiddleware)
	}
	protected := func(h http.HandlerFunc, methods ...string) http.HandlerFunc {
		return ApplyMiddleware(h, allowMethods(methods...), s.JWTMiddleware, s.CORSMiddleware, RequestIDMiddleware, LoggingMiddleware, ErrorMiddleware)
	}

	mux.HandleFunc("/challenge", public(s.HandleChallenge, http.MethodGet))
	mux.HandleFunc("/verify", public(s.HandleVerify, http.MethodPost))

	mux.HandleFunc("/meta-address", protected(s.HandleMetaAddress, http.MethodGet))
	mux.HandleFunc("/scan", protected(s.HandleScan, http.MethodPost))
	mux.HandleFunc("/payments", protected(s.HandlePayments, http.MethodGet))
	mux.HandleFunc("/compliance/export", protected(s.HandleComplianceExport, http.MethodGet))
	mux.HandleFunc("/disclosures", protected(s.HandleDisclosures, http.MethodGet, http.MethodPost))
	mux.HandleFunc("/disclosures/", protected(s.HandleRevoke, http.MethodPost))
	mux.HandleFunc("/paylink/parse", protected(s.HandlePaylinkParse, http.MethodPost))
	return mux
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to five seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting API server", "port", s.cfg.Port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down API server: %w", err)
	}
	logger.Info("API server stopped")
	return nil
}
