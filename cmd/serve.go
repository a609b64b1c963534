package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/archivist-labs/chronicle/internal/model"
	"github.com/archivist-labs/chronicle/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the queue worker with an HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Queue.Start(ctx); err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("api listening", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		err = g.Wait()
		env.Queue.Stop()
		logCostTotals(env.Costs)
		return err
	},
}

func newRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":        "ok",
			"preprocessing": env.Pre.State().String(),
		})
	})

	r.Post("/jobs", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			SourceType  string `json:"source_type"`
			SourceID    string `json:"source_id"`
			SubjectID   string `json:"subject_id"`
			Tasks       string `json:"tasks"`
			Priority    int    `json:"priority"`
			Text        string `json:"text"`
			Title       string `json:"title"`
			Domain      string `json:"domain"`
			ArticleDate string `json:"article_date"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		sourceType := model.SourceType(body.SourceType)
		if !model.ValidSourceType(sourceType) {
			writeError(w, http.StatusBadRequest, "invalid source_type")
			return
		}
		if body.SourceID == "" {
			writeError(w, http.StatusBadRequest, "source_id is required")
			return
		}

		if body.Text != "" {
			if err := env.Store.UpsertSource(req.Context(), model.Source{
				Type:        sourceType,
				ID:          body.SourceID,
				SubjectID:   body.SubjectID,
				Title:       body.Title,
				Text:        body.Text,
				Domain:      body.Domain,
				ArticleDate: body.ArticleDate,
			}); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}

		job, err := env.Store.EnqueueJob(req.Context(), store.EnqueueRequest{
			SourceType:  sourceType,
			SourceID:    body.SourceID,
			SubjectID:   body.SubjectID,
			Tasks:       model.ParseTaskSet(body.Tasks),
			Priority:    body.Priority,
			MaxAttempts: cfg.Queue.MaxAttempts,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, job)
	})

	r.Get("/jobs/{id}", func(w http.ResponseWriter, req *http.Request) {
		job, err := env.Store.GetJob(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, job)
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		status, err := env.Queue.Status(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"queue": status,
			"costs": env.Costs.Totals(),
		})
	})

	r.Get("/subjects/{id}/conflicts", func(w http.ResponseWriter, req *http.Request) {
		conflicts, err := env.Store.ListConflicts(req.Context(), store.ConflictFilter{
			SubjectID:       chi.URLParam(req, "id"),
			IncludeResolved: req.URL.Query().Get("all") == "true",
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, conflicts)
	})

	r.Get("/subjects/{id}/timeline", func(w http.ResponseWriter, req *http.Request) {
		entries, err := env.Store.ListTimeline(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
