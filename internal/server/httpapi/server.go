// Package httpapi exposes the kiosk workflow to the terminal UI as a
// JSON HTTP facade plus a websocket state stream.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/greenpoint-pos/kiosk/internal/repository"
	"github.com/greenpoint-pos/kiosk/internal/workflow"
)

// Server wires the orchestrator and catalog reads into HTTP handlers.
type Server struct {
	orch    *workflow.Orchestrator
	catalog repository.CatalogRepository
	stream  *Stream
	health  func(ctx context.Context) error
	log     *zap.Logger
}

// New constructs the facade and attaches its state stream to the
// orchestrator.
func New(orch *workflow.Orchestrator, catalog repository.CatalogRepository, health func(ctx context.Context) error, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if health == nil {
		health = func(context.Context) error { return nil }
	}
	s := &Server{
		orch:    orch,
		catalog: catalog,
		stream:  NewStream(log),
		health:  health,
		log:     log,
	}
	orch.Subscribe(s.stream.Publish)
	s.stream.Publish(orch.Snapshot()) // seed so new connections get a first frame
	return s
}

// Routes builds the router. The UI talks to nothing else.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer(s.log))
	r.Use(requestLogger(s.log))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", s.getState)
		r.Get("/healthz", s.getHealthz)

		r.Post("/identify", s.postIdentify)
		r.Post("/identify/cancel", s.postScanCancel)

		r.Route("/catalog/strains", func(r chi.Router) {
			r.Get("/", s.getStrains)
			r.Get("/{strain}/units", s.getStrainUnits)
			r.Get("/{strain}/tiers", s.getStrainTiers)
		})

		r.Route("/selection", func(r chi.Router) {
			r.Post("/units", s.postSelectionUnit)
			r.Delete("/units/{id}", s.deleteSelectionUnit)
			r.Post("/clear", s.postSelectionClear)
		})

		r.Post("/shortlist", s.postShortlist)
		r.Delete("/shortlist/{strain}", s.deleteShortlist)

		r.Post("/review", s.postReview)
		r.Post("/review/back", s.postReviewBack)

		r.Post("/authorize", s.postAuthorize)
		r.Post("/authorize/cancel", s.postScanCancel)

		r.Post("/partial-failure/ack", s.postPartialAck)
		r.Post("/reset", s.postReset)
	})

	r.Get("/ws", s.stream.HandleWS)
	return r
}
