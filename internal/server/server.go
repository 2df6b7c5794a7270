// Package server implements the objio admin HTTP endpoint: health,
// transfer engine stats and Prometheus metrics for a running process.
package server

import (
	"context"
	"net"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bleepstore/objio/internal/engine"
)

// StatsSource reports transfer engine counters. storage.IOManager
// satisfies it.
type StatsSource interface {
	Stats() engine.Stats
}

// Server is the admin HTTP server.
type Server struct {
	router     chi.Router
	api        huma.API
	source     StatsSource
	httpServer *http.Server
}

// HealthBody is the JSON body returned by the health check endpoint.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthOutput is the Huma output struct for the health check endpoint.
type HealthOutput struct {
	Body HealthBody
}

// StatsBody is the JSON body returned by the stats endpoint.
type StatsBody struct {
	Queued      int   `json:"queued" doc:"Requests waiting for a transfer slot"`
	InFlight    int   `json:"in_flight" doc:"Round trips currently running"`
	MaxInFlight int   `json:"max_in_flight" doc:"Highest in-flight count observed"`
	Attempts    int64 `json:"attempts" doc:"Round trips started, retries included"`
}

// StatsOutput is the Huma output struct for the stats endpoint.
type StatsOutput struct {
	Body StatsBody
}

// New creates a Server reporting on source.
func New(source StatsSource) *Server {
	router := chi.NewMux()

	humaConfig := huma.DefaultConfig("objio admin API", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	api := humachi.New(router, humaConfig)

	s := &Server{
		router:     router,
		api:        api,
		source:     source,
		httpServer: &http.Server{Handler: router},
	}
	s.registerRoutes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server on the given address. It returns
// http.ErrServerClosed once Shutdown has been called, including when
// Shutdown ran first.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"System"},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		return &HealthOutput{Body: HealthBody{Status: "ok"}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Transfer engine stats",
		Tags:        []string{"System"},
	}, func(ctx context.Context, input *struct{}) (*StatsOutput, error) {
		st := s.source.Stats()
		return &StatsOutput{Body: StatsBody{
			Queued:      st.Queued,
			InFlight:    st.InFlight,
			MaxInFlight: st.MaxInFlight,
			Attempts:    st.Attempts,
		}}, nil
	})

	s.router.Handle("/metrics", promhttp.Handler())
}
