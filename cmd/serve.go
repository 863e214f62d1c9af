package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bi-agent/internal/engine"
	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/monitoring"
	"github.com/sells-group/bi-agent/internal/narrate"
	"github.com/sells-group/bi-agent/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat and leadership update API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		// Queries answer 503 until the first snapshot is published.
		go func() {
			if _, err := env.Service.Refresh(ctx, "startup"); err != nil {
				zap.L().Error("initial refresh failed", zap.Error(err))
			}
		}()
		if every := time.Duration(cfg.Server.RefreshIntervalMins) * time.Minute; every > 0 {
			go env.Service.RunScheduled(ctx, every)
		}
		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Service, env.Service),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: buildRouter(env.Service, env.Narrator, routerOptions{
				CORSOrigins:  cfg.Server.CORSOrigins,
				QueryTimeout: time.Duration(cfg.Server.QueryTimeoutSecs) * time.Second,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type routerOptions struct {
	CORSOrigins  []string
	QueryTimeout time.Duration
}

type chatRequest struct {
	Message             string       `json:"message"`
	ConversationHistory []model.Turn `json:"conversation_history"`
}

type chatResponse struct {
	Response            string               `json:"response"`
	Intent              string               `json:"intent"`
	Caveats             []model.FieldCaveat  `json:"caveats"`
	UsedData            usedData             `json:"used_data"`
	ClarificationNeeded bool                 `json:"clarification_needed"`
	Metrics             []model.MetricResult `json:"metrics"`
}

type usedData struct {
	RefreshID         string    `json:"refresh_id"`
	AsOf              time.Time `json:"as_of"`
	PipelineRecords   int       `json:"pipeline_records"`
	ExecutionRecords  int       `json:"execution_records"`
	UnavailableFields []string  `json:"unavailable,omitempty"`
}

type updateResponse struct {
	Response string                  `json:"response"`
	Summary  model.StructuredSummary `json:"summary"`
}

// buildRouter wires the HTTP API over svc. n renders answers as prose.
func buildRouter(svc *engine.Service, n narrate.Narrator, opts routerOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{"status": "ok", "snapshot_loaded": false}
		if snap := svc.Snapshot(); snap != nil {
			body["snapshot_loaded"] = true
			body["as_of"] = snap.Data.AsOf.Format("2006-01-02")
			body["loaded_at"] = snap.LoadedAt
		}
		writeJSON(w, http.StatusOK, body)
	})

	r.Group(func(r chi.Router) {
		if opts.QueryTimeout > 0 {
			r.Use(middleware.Timeout(opts.QueryTimeout))
		}

		r.Post("/chat", func(w http.ResponseWriter, req *http.Request) {
			var body chatRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			body.Message = strings.TrimSpace(body.Message)
			if body.Message == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
				return
			}

			ans, snap, err := svc.Ask(body.Message, body.ConversationHistory)
			if err != nil {
				writeError(w, err)
				return
			}
			text, err := n.Narrate(req.Context(), narrate.Request{
				Question: body.Message,
				History:  body.ConversationHistory,
				Answer:   ans,
			})
			if err != nil {
				writeError(w, err)
				return
			}

			resp := chatResponse{
				Response:            text,
				Intent:              string(ans.Domain),
				Caveats:             ans.Caveats,
				UsedData:            describeSnapshot(snap),
				ClarificationNeeded: ans.ClarificationNeeded,
				Metrics:             ans.Metrics,
			}
			for _, dse := range ans.Unavailable {
				resp.UsedData.UnavailableFields = append(resp.UsedData.UnavailableFields, dse.Error())
			}
			writeJSON(w, http.StatusOK, resp)
		})

		r.Post("/leadership-update", func(w http.ResponseWriter, _ *http.Request) {
			s, err := svc.Update()
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, updateResponse{Response: narrate.Render(engine.Answer{Summary: &s}), Summary: s})
		})
	})

	r.Post("/refresh", func(w http.ResponseWriter, req *http.Request) {
		rec, err := svc.Refresh(req.Context(), "api")
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "refresh": rec})
			return
		}
		writeJSON(w, http.StatusOK, rec)
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		filter := store.RefreshFilter{
			Status:  model.RefreshStatus(req.URL.Query().Get("status")),
			Trigger: req.URL.Query().Get("trigger"),
		}
		if v := req.URL.Query().Get("limit"); v != "" {
			limit, err := strconv.Atoi(v)
			if err != nil || limit < 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
				return
			}
			filter.Limit = limit
		}
		runs, err := svc.Refreshes(req.Context(), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		if runs == nil {
			runs = []model.Refresh{}
		}
		writeJSON(w, http.StatusOK, runs)
	})

	return r
}

func describeSnapshot(snap *engine.Snapshot) usedData {
	if snap == nil {
		return usedData{}
	}
	return usedData{
		RefreshID:        snap.Refresh.ID,
		AsOf:             snap.Data.AsOf,
		PipelineRecords:  len(snap.Data.Pipeline.Records),
		ExecutionRecords: len(snap.Data.Execution.Records),
	}
}

// writeError maps engine errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	if dse, ok := model.AsDataShapeError(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      dse.Error(),
			"collection": dse.Collection,
			"capability": dse.Capability,
			"missing":    dse.Missing,
		})
		return
	}
	if errors.Is(err, engine.ErrNoSnapshot) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "data is still loading, try again shortly"})
		return
	}
	zap.L().Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
