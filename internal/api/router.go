package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/stellaide/server/internal/handler"
	"github.com/stellaide/server/internal/infrastructure/auth"
	"github.com/stellaide/server/internal/infrastructure/observability"
)

// SetupRouter wires the /api surface. Auth routes do their own token
// validation because the ordering differs per endpoint; chat routes sit
// behind the strict access-token middleware.
func SetupRouter(
	authHandler *handler.AuthHandler,
	chatHandler *handler.ChatHandler,
	tokens *auth.Provider,
	metricsHandler http.Handler,
) *mux.Router {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	authRouter := r.PathPrefix("/api/auth").Subrouter()
	authHandler.RegisterRoutes(authRouter)

	chatRouter := r.PathPrefix("/api/chat").Subrouter()
	chatRouter.Use(auth.Middleware(tokens))
	chatHandler.RegisterRoutes(chatRouter)

	r.Handle("/metrics", metricsHandler)
	return r
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		endpoint := r.URL.Path
		method := r.Method

		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		status := fmt.Sprintf("%d", recorder.status)
		observability.RequestCounter.WithLabelValues(method, endpoint, status).Inc()
		observability.RequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
