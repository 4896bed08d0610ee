package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nmxmxh/tigerdelta/internal/metrics"
	"github.com/nmxmxh/tigerdelta/internal/utils"
)

// OpsServer hosts /healthz, /metrics and /stream.
type OpsServer struct {
	srv    *http.Server
	hub    *Hub
	nodeID string
	logger *utils.Logger
	start  time.Time
}

// NewOpsServer wires the ops router.
func NewOpsServer(addr, nodeID string, hub *Hub, m *metrics.Metrics, logger *utils.Logger) *OpsServer {
	if logger == nil {
		logger = utils.Nop()
	}
	o := &OpsServer{
		hub:    hub,
		nodeID: nodeID,
		logger: logger.Named("ops"),
		start:  time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", o.healthz)
	r.Handle("/metrics", m.Handler())
	r.Get("/stream", hub.ServeHTTP)

	o.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return o
}

// Handler exposes the router (tests mount it on httptest servers).
func (o *OpsServer) Handler() http.Handler {
	return o.srv.Handler
}

func (o *OpsServer) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"node":        o.nodeID,
		"uptime_s":    int64(time.Since(o.start).Seconds()),
		"subscribers": o.hub.Clients(),
	})
}

// Run serves until ctx is done, then shuts down gracefully.
func (o *OpsServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", o.srv.Addr)
	if err != nil {
		return utils.WrapCoded(err, utils.ErrCodeBindFailed, "ops listen "+o.srv.Addr)
	}
	o.logger.Info("Ops server listening", utils.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- o.srv.Serve(ln) }()

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
	o.hub.Close()
	if err := o.srv.Shutdown(shutdownCtx); err != nil {
		return utils.WrapError(err, "ops shutdown")
	}
	<-errCh
	return nil
}
