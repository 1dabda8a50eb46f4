package main

import (
	"context"
	"encoding/json"
	"errors"
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

	"github.com/sells-group/datapulse/internal/config"
	"github.com/sells-group/datapulse/internal/feed"
	"github.com/sells-group/datapulse/internal/monitoring"
	"github.com/sells-group/datapulse/internal/reader"
)

const maxReadBody = 1 << 20

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve feeds, digests and reads over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		addr := serveAddr
		if addr == "" {
			addr = cfg.Server.Addr
		}

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Reader, env.Breakers),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		srv := &http.Server{
			Addr:              addr,
			Handler:           buildMux(env.Reader, cfg),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildMux wires the HTTP routes onto a chi router.
func buildMux(r *reader.Reader, c *config.Config) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(requestLogger)
	mux.Use(middleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: c.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	h := &handlers{reader: r, cfg: c}
	mux.Get("/health", h.health)
	for _, f := range []feed.Format{feed.FormatJSON, feed.FormatRSS, feed.FormatAtom} {
		mux.Get("/feed."+string(f), h.feed(f))
	}
	mux.Get("/digest", h.digest)
	mux.Get("/inbox", h.inbox)
	mux.Post("/read", h.read)
	mux.Get("/sources/resolve", h.resolve)
	return mux
}

// requestLogger logs one line per request through zap.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type handlers struct {
	reader *reader.Reader
	cfg    *config.Config
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := writeJSON(w, v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// queryFloat reads a float query parameter, falling back to def when the
// parameter is absent.
func queryFloat(r *http.Request, key string, def float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Errorf("invalid %s %q", key, raw)
	}
	return v, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, eris.Errorf("invalid %s %q", key, raw)
	}
	return v, nil
}

// feedQuery parses the shared feed/digest filters.
func feedQuery(r *http.Request) (reader.FeedQuery, error) {
	q := reader.FeedQuery{Profile: r.URL.Query().Get("profile")}
	var err error
	if q.Since, err = parseSince(r.URL.Query().Get("since"), time.Now()); err != nil {
		return q, err
	}
	if q.MinConfidence, err = queryFloat(r, "min_confidence", 0); err != nil {
		return q, err
	}
	if q.Limit, err = queryInt(r, "limit", 50); err != nil {
		return q, err
	}
	return q, nil
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	report := h.reader.Health(r.Context())
	status, code := "ok", http.StatusOK
	if !report.OK {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	respondJSON(w, code, struct {
		Status string `json:"status"`
		reader.Health
	}{status, report})
}

func (h *handlers) feed(f feed.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := feedQuery(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		items := h.reader.QueryFeed(q)
		w.Header().Set("Content-Type", f.ContentType())
		if err := feed.Render(w, f, feedMeta(h.cfg.Feed, r.URL.Path), items); err != nil {
			zap.L().Error("render feed", zap.String("format", string(f)), zap.Error(err))
		}
	}
}

func (h *handlers) digest(w http.ResponseWriter, r *http.Request) {
	q, err := feedQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := reader.DigestOptions{Profile: q.Profile, Since: q.Since, MinConfidence: q.MinConfidence}
	for key, dst := range map[string]*int{
		"top_n":          &opts.TopN,
		"secondary_n":    &opts.SecondaryN,
		"max_per_source": &opts.MaxPerSource,
	} {
		if *dst, err = queryInt(r, key, 0); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, h.reader.BuildDigest(r.Context(), opts))
}

func (h *handlers) inbox(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	minConf, err := queryFloat(r, "min_confidence", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.reader.ListMemory(limit, minConf))
}

type readRequest struct {
	URL           string   `json:"url"`
	URLs          []string `json:"urls"`
	MinConfidence *float64 `json:"min_confidence"`
	FailFast      bool     `json:"fail_fast"`
}

func (h *handlers) read(w http.ResponseWriter, r *http.Request) {
	var req readRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReadBody)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	urls := reader.DedupURLs(append(req.URLs, req.URL))
	if len(urls) == 0 {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	minConf := h.cfg.Reader.MinConfidence
	if req.MinConfidence != nil {
		minConf = *req.MinConfidence
	}

	items, err := h.reader.ReadBatch(r.Context(), urls, reader.BatchOptions{
		MinConfidence: minConf,
		FailFast:      req.FailFast,
	})
	if err != nil {
		status := http.StatusBadGateway
		if reader.IsLowConfidence(err) {
			status = http.StatusUnprocessableEntity
		}
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"requested": len(urls),
		"read":      len(items),
		"failed":    len(urls) - len(items),
		"items":     items,
	})
}

func (h *handlers) resolve(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	cat := h.reader.Catalog()
	if cat == nil {
		respondError(w, http.StatusNotFound, "no source catalog configured")
		return
	}
	respondJSON(w, http.StatusOK, cat.Resolve(u))
}
