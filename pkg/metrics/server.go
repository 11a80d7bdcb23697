package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/logger"
)

// NewServer builds the admin HTTP server: /metrics plus whatever routes the
// caller already put on mux (health probes, commit inspection). wrap is
// applied outermost-first.
func NewServer(port int, mux *http.ServeMux, wrap ...func(http.Handler) http.Handler) *http.Server {
	if mux == nil {
		mux = http.NewServeMux()
	}
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>Index Store</h1><p><a href="/metrics">/metrics</a> <a href="/health/ready">/health/ready</a></p></body></html>`)
	})

	var h http.Handler = mux
	for i := len(wrap) - 1; i >= 0; i-- {
		h = wrap[i](h)
	}
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// StartServer serves NewServer in the background and returns its shutdown
// function.
func StartServer(port int, mux *http.ServeMux, wrap ...func(http.Handler) http.Handler) (shutdown func(context.Context) error) {
	server := NewServer(port, mux, wrap...)
	log := logger.WithComponent("metrics")
	go func() {
		log.Info("admin server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("admin server error", "error", err)
		}
	}()
	return server.Shutdown
}
