package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prudhvinik1/accountpurge/internal/models"
	"github.com/prudhvinik1/accountpurge/internal/repositories"
	"github.com/prudhvinik1/accountpurge/internal/scheduler"
	"github.com/prudhvinik1/accountpurge/internal/services"
	"go.uber.org/zap"
)

// TaskRunner is the part of the scheduler the HTTP surface drives.
type TaskRunner interface {
	Tasks(ctx context.Context) ([]scheduler.TaskStatus, error)
	RunNow(ctx context.Context, key string) (*models.TaskRun, error)
}

// AccountReader serves the ops view of a single account.
type AccountReader interface {
	GetAccountDetails(ctx context.Context, id int64) (*models.AccountDetails, error)
}

type TokenVerifier interface {
	VerifyToken(token string) (*services.AdminClaims, error)
}

type Handler struct {
	runner   TaskRunner
	accounts AccountReader
	verifier TokenVerifier
	logger   *zap.Logger
}

func NewHandler(runner TaskRunner, accounts AccountReader, verifier TokenVerifier, logger *zap.Logger) *Handler {
	return &Handler{runner: runner, accounts: accounts, verifier: verifier, logger: logger}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Get("/tasks", h.listTasks)
	router.With(h.requireAdmin).Post("/tasks/{key}/run", h.runTask)
	router.With(h.requireAdmin).Get("/accounts/{id}", h.getAccount)

	return router
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.runner.Tasks(r.Context())
	if err != nil {
		h.logger.Error("failed to list tasks", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []scheduler.TaskStatus{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handler) runTask(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	// A disconnecting client must not abort a purge halfway through
	run, err := h.runner.RunNow(context.WithoutCancel(r.Context()), key)
	switch {
	case errors.Is(err, scheduler.ErrUnknownTask):
		writeError(w, http.StatusNotFound, "unknown task")
	case errors.Is(err, scheduler.ErrTaskLocked), errors.Is(err, scheduler.ErrTaskCompleted):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil && run != nil:
		writeJSON(w, http.StatusInternalServerError, run)
	case err != nil:
		h.logger.Error("manual run failed", zap.String("task", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to run task")
	default:
		writeJSON(w, http.StatusOK, run)
	}
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	details, err := h.accounts.GetAccountDetails(r.Context(), id)
	if errors.Is(err, repositories.ErrNotFound) {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get account", zap.Int64("account_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get account")
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := h.verifier.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		h.logger.Info("admin request",
			zap.String("subject", claims.Subject),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
