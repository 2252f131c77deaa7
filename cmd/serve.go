package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AtanasChobanov/PromoMania-sub001/internal/model"
	"github.com/AtanasChobanov/PromoMania-sub001/internal/store"
	"github.com/AtanasChobanov/PromoMania-sub001/internal/suggest"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			if err := env.Store.Ping(req.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "store unreachable")
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/api/ingest", func(w http.ResponseWriter, req *http.Request) {
			var offers []model.RawOffer
			if err := json.NewDecoder(req.Body).Decode(&offers); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if len(offers) == 0 {
				writeError(w, http.StatusBadRequest, "no offers submitted")
				return
			}

			// Ingestion outlives the request: the oracle round-trips take
			// minutes for a full brochure.
			go func() {
				result, err := env.Pipeline.Run(ctx, offers)
				if err != nil {
					zap.L().Error("ingestion run failed", zap.Error(err))
					return
				}
				zap.L().Info("ingestion run accepted via api",
					zap.Int("offers", result.Offers),
					zap.Int("recorded", result.Recorded))
			}()

			writeJSON(w, http.StatusAccepted, map[string]any{
				"status": "accepted",
				"offers": len(offers),
			})
		})

		r.Get("/api/carts/{cartID}/cheapest", func(w http.ResponseWriter, req *http.Request) {
			cartID, err := strconv.ParseInt(chi.URLParam(req, "cartID"), 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid cart id")
				return
			}

			options, err := env.Suggest.CheapestStore(req.Context(), cartID)
			switch {
			case err == nil:
				writeJSON(w, http.StatusOK, options)
			case eris.Is(err, store.ErrNotFound):
				writeError(w, http.StatusNotFound, "cart not found")
			case eris.Is(err, suggest.ErrNoViableStore):
				writeError(w, http.StatusNotFound, "no store prices any cart item")
			default:
				zap.L().Error("cheapest store lookup failed", zap.Int64("cart_id", cartID), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		})

		r.Get("/api/products/{productID}/history", func(w http.ResponseWriter, req *http.Request) {
			productID, err := strconv.ParseInt(chi.URLParam(req, "productID"), 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid product id")
				return
			}
			chainName := req.URL.Query().Get("chain")
			if chainName == "" {
				writeError(w, http.StatusBadRequest, "chain query parameter is required")
				return
			}

			chain, err := env.Store.GetChainByName(req.Context(), chainName)
			if err != nil {
				if eris.Is(err, store.ErrNotFound) {
					writeError(w, http.StatusNotFound, "unknown chain")
					return
				}
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			records, err := env.Store.ListPriceHistory(req.Context(), productID, chain.ID)
			if err != nil {
				zap.L().Error("price history lookup failed", zap.Int64("product_id", productID), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			writeJSON(w, http.StatusOK, records)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		zap.L().Info("starting server", zap.Int("port", port))
		return runServer(ctx, srv, 15*time.Second)
	},
}

// runServer listens until the context is canceled, then drains in-flight
// requests before returning so the store outlives every handler.
func runServer(ctx context.Context, srv *http.Server, drainTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	case <-ctx.Done():
	}

	// The signal context is already canceled here; shutdown gets its own
	// deadline or it would skip the drain entirely.
	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("server shutdown", zap.Error(err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
