// Package api serves the latest attribution run for inspection: the full
// report as JSON, the ADM3-keyed join tables as CSV, and a rendered summary.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"floodattr/adapters/geojoin"
	"floodattr/domain/attrib"
	"floodattr/domain/core"
	"floodattr/internal"
	"floodattr/ports"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gomarkdown/markdown"
)

// Server is the read-only report server.
type Server struct {
	router *chi.Mux
	reader ports.LedgerReaderPort
	log    *internal.Logger
}

// NewServer creates a report server over a ledger reader.
func NewServer(reader ports.LedgerReaderPort, log *internal.Logger) *Server {
	if log == nil {
		log = internal.DefaultLogger
	}
	s := &Server{
		router: chi.NewRouter(),
		reader: reader,
		log:    log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/latest", s.handleReport(s.latest))
		r.Get("/latest/cities.csv", s.handleCitiesCSV(s.latest))
		r.Get("/latest/scenarios.csv", s.handleScenariosCSV(s.latest))
		r.Get("/latest/summary", s.handleSummary(s.latest))
		r.Get("/{id}", s.handleReport(s.byID))
		r.Get("/{id}/cities.csv", s.handleCitiesCSV(s.byID))
		r.Get("/{id}/scenarios.csv", s.handleScenariosCSV(s.byID))
		r.Get("/{id}/summary", s.handleSummary(s.byID))
	})
}

// ListenAndServe blocks serving on the given port.
func (s *Server) ListenAndServe(port string) error {
	s.log.Info("report server listening on :%s", port)
	return http.ListenAndServe(":"+port, s.router)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

type reportLookup func(r *http.Request) (*attrib.RunReport, error)

func (s *Server) latest(r *http.Request) (*attrib.RunReport, error) {
	return s.reader.LatestReport(r.Context())
}

func (s *Server) byID(r *http.Request) (*attrib.RunReport, error) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	return s.reader.GetReport(r.Context(), id)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.reader.ListRuns(r.Context(), 50)
	if err != nil {
		s.error(w, err)
		return
	}
	s.json(w, runs)
}

func (s *Server) handleReport(lookup reportLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := lookup(r)
		if err != nil {
			s.error(w, err)
			return
		}
		s.json(w, report)
	}
}

func (s *Server) handleCitiesCSV(lookup reportLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := lookup(r)
		if err != nil {
			s.error(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		if err := geojoin.WriteCityTable(w, report); err != nil {
			s.log.Error("writing city table: %v", err)
		}
	}
}

func (s *Server) handleScenariosCSV(lookup reportLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := lookup(r)
		if err != nil {
			s.error(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		if err := geojoin.WriteScenarioTable(w, report); err != nil {
			s.log.Error("writing scenario table: %v", err)
		}
	}
}

func (s *Server) handleSummary(lookup reportLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := lookup(r)
		if err != nil {
			s.error(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(markdown.ToHTML([]byte(SummaryMarkdown(report)), nil, nil))
	}
}

func (s *Server) json(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encoding response: %v", err)
	}
}

func (s *Server) error(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "no runs") {
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}
