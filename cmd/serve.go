package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sanitiza-group/cert-cli/internal/analytics"
	"github.com/sanitiza-group/cert-cli/internal/artifact"
	"github.com/sanitiza-group/cert-cli/internal/heatmap"
	"github.com/sanitiza-group/cert-cli/internal/ingest"
	"github.com/sanitiza-group/cert-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard and upload HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := newAppEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/dashboard", func(d chi.Router) {
		d.Get("/overview", handleOverview(env))
		d.Get("/certificate/{number}", handleCertificateCharts(env))
		d.Get("/heatmap", handleHeatmap(env))
	})

	r.Route("/certificates", func(c chi.Router) {
		c.Get("/", handleListCertificates(env))
		c.Post("/", handleCreateManual(env))
		c.Get("/{id}", handleGetCertificate(env))
		c.Get("/{id}/pdf", handleCertificatePDF(env))
		c.Post("/upload", handleUpload(env))
	})

	r.Route("/admin", func(a chi.Router) {
		a.Get("/pdfs", handleListPDFs(env))
		a.Get("/cache/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, env.heatmap.CacheStatus())
		})
		a.Post("/cache/clear", func(w http.ResponseWriter, _ *http.Request) {
			if err := env.heatmap.ClearCache(); err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
		})
	})

	return r
}

func handleOverview(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overview, err := buildOverview(r.Context(), env)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, overview)
	}
}

func handleCertificateCharts(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number, err := url.PathUnescape(chi.URLParam(r, "number"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		bundle, err := env.provider.GetBundleByNumber(r.Context(), number)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, analytics.BuildCertificateCharts(*bundle))
	}
}

func handleHeatmap(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := env.heatmap.CityHeatmap(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		resp := struct {
			Data   []heatmap.Item `json:"data"`
			Bounds *[4]float64    `json:"bounds,omitempty"`
		}{Data: items}
		if box, ok := heatmap.Bounds(items); ok {
			resp.Bounds = &box
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleListCertificates(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		certs, err := env.provider.ListCertificates(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, certs)
	}
}

func handleGetCertificate(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cert, err := env.provider.GetCertificateByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, cert)
	}
}

func handleCertificatePDF(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cert, err := env.provider.GetCertificateByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		bundle, err := env.provider.GetBundleByNumber(r.Context(), cert.Number)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		path, err := env.resolver.EnsureExists(r.Context(), *bundle)
		if err != nil {
			var genErr *artifact.GenerationError
			if errors.As(err, &genErr) {
				writeError(w, http.StatusBadGateway, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		http.ServeFile(w, r, path)
	}
}

func handleUpload(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		file, header, err := r.FormFile("planilha")
		if err != nil {
			writeError(w, http.StatusBadRequest, eris.New("planilha file field is required"))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		receipt, err := env.ingest.ProcessUpload(r.Context(), header.Filename, data)
		if err != nil {
			switch {
			case errors.Is(err, ingest.ErrDuplicate):
				writeError(w, http.StatusConflict, err)
			case errors.Is(err, ingest.ErrUnsupportedType):
				writeError(w, http.StatusBadRequest, err)
			default:
				zap.L().Error("upload processing failed",
					zap.String("filename", header.Filename),
					zap.Error(err),
				)
				writeError(w, http.StatusInternalServerError, err)
			}
			return
		}
		writeJSON(w, http.StatusCreated, receipt)
	}
}

func handleCreateManual(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if len(payload) == 0 || !json.Valid(payload) {
			writeError(w, http.StatusBadRequest, eris.New("body must be a JSON certificate payload"))
			return
		}

		receipt, err := env.ingest.CreateManual(r.Context(), payload)
		if err != nil {
			var genErr *artifact.GenerationError
			if errors.As(err, &genErr) {
				writeError(w, http.StatusBadGateway, err)
				return
			}
			zap.L().Error("manual certificate creation failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, receipt)
	}
}

func handleListPDFs(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))

		entries, err := env.resolver.List(artifact.ListFilter{
			Query:     q.Get("q"),
			Extension: q.Get("type"),
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
