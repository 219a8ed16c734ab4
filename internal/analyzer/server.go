package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"Go2NetShield/internal/archive"
	"Go2NetShield/internal/escalation"
	"Go2NetShield/internal/transport"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const defaultListLimit = 100

// Server exposes the analysis service and the read-only query API.
type Server struct {
	service *Service
	store   escalation.Store
	querier archive.Querier
	maxBody int64
	log     logrus.FieldLogger
	server  *http.Server
}

// NewServer builds the HTTP server. querier may be nil when no archive is configured.
func NewServer(addr string, maxBody int64, service *Service, store escalation.Store, querier archive.Querier, log logrus.FieldLogger) *Server {
	s := &Server{
		service: service,
		store:   store,
		querier: querier,
		maxBody: maxBody,
		log:     log,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router returns the route table.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/analyze", s.analyzeHandler).Methods("POST")
	r.HandleFunc("/api/v1/tiers/{tier}", s.tierHandler).Methods("GET")
	r.HandleFunc("/api/v1/summary", s.summaryHandler).Methods("GET")
	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.server.Addr).Info("Analyzer server starting")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("could not listen on %s: %w", s.server.Addr, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Analyzer server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.log.Info("Analyzer server exited.")
	return nil
}

// HandleMessage adapts Analyze to a message transport. The reply carries the
// same body the HTTP endpoint would return.
func (s *Service) HandleMessage(ctx context.Context, body []byte) []byte {
	var resp transport.Response
	res, err := s.Analyze(ctx, body)
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Result = res.Classification
	}
	out, _ := json.Marshal(resp)
	return out
}

func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBody+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, transport.Response{Error: fmt.Sprintf("failed to read request body: %v", err)})
		return
	}
	if int64(len(body)) > s.maxBody {
		writeJSON(w, http.StatusRequestEntityTooLarge, transport.Response{Error: "request body too large"})
		return
	}

	res, err := s.service.Analyze(r.Context(), body)
	if err != nil {
		status := StatusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
		writeJSON(w, status, transport.Response{Error: msg})
		return
	}
	writeJSON(w, http.StatusOK, transport.Response{Result: res.Classification})
}

func (s *Server) tierHandler(w http.ResponseWriter, r *http.Request) {
	tier, err := escalation.ParseTier(mux.Vars(r)["tier"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := s.store.List(r.Context(), tier, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list %s: %v", tier, err), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*escalation.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	if s.querier == nil {
		http.Error(w, "archive querying is not enabled", http.StatusNotImplemented)
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := archive.SummaryRequest{IP: r.URL.Query().Get("ip"), Limit: limit}
	if since := r.URL.Query().Get("since"); since != "" {
		req.Since, err = time.Parse(time.RFC3339, since)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid since: %v", err), http.StatusBadRequest)
			return
		}
	}

	summary, err := s.querier.Summarize(r.Context(), req)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query archive: %v", err), http.StatusInternalServerError)
		return
	}
	if summary == nil {
		summary = []archive.SourceSummary{}
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"secure": s.service.Secure(),
	})
}

func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit: '%s'", raw)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
