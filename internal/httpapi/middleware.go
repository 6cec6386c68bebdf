package httpapi

import (
	"context"
	"errors"
	"net/http"

	"sms-rupee-go/internal/api"
	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/store"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// DeviceHeader carries the caller's device id on user routes.
const DeviceHeader = "X-Device-Id"

type contextKey string

const accountContextKey = contextKey("account")

// AccountFromContext returns the device-authorized account.
func AccountFromContext(ctx context.Context) (*models.Account, bool) {
	a, ok := ctx.Value(accountContextKey).(*models.Account)
	return a, ok
}

// AdminAuthMiddleware checks HTTP Basic credentials against the stored admin hash.
func AdminAuthMiddleware(svc *api.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
				respondWithError(w, http.StatusUnauthorized, "Admin credentials required")
				return
			}

			if err := svc.AdminLogin(r.Context(), username, password); err != nil {
				if api.IsPolicy(err) {
					w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
					respondWithError(w, http.StatusUnauthorized, err.Error())
					return
				}
				zap.L().Error("Admin authentication failed", zap.Error(err))
				respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// DeviceAuthMiddleware only lets the bound device act on an account.
func DeviceAuthMiddleware(svc *api.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mobile := chi.URLParam(r, "mobile")
			deviceId := r.Header.Get(DeviceHeader)
			if deviceId == "" {
				respondWithError(w, http.StatusUnauthorized, DeviceHeader+" header required")
				return
			}

			account, err := svc.AuthorizeDevice(r.Context(), mobile, deviceId)
			switch {
			case errors.Is(err, store.ErrAccountNotFound):
				respondWithError(w, http.StatusNotFound, "Account not found")
				return
			case api.IsPolicy(err):
				respondWithError(w, http.StatusForbidden, err.Error())
				return
			case err != nil:
				zap.L().Error("Device authorization failed", zap.String("mobile", mobile), zap.Error(err))
				respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}

			ctx := context.WithValue(r.Context(), accountContextKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
