package server

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nao1215/linkforensics/internal/capture"
	"github.com/nao1215/linkforensics/internal/model"
	"github.com/nao1215/linkforensics/internal/session"
	"github.com/nao1215/linkforensics/internal/snapshot"
)

// captureParams are the path and query inputs of a capture.
type captureParams struct {
	LinkID     string `json:"linkId" validate:"required,max=128"`
	AuditID    string `json:"audit" validate:"required,max=128"`
	AccessID   string `json:"accessId" validate:"omitempty,accessid"`
	Visibility string `json:"visibility" validate:"omitempty,oneof=visible hidden prerender"`
	Referrer   string `json:"referrer" validate:"max=2048"`
}

type accessParams struct {
	AccessID string `json:"accessId" validate:"required,accessid"`
}

type scopeParams struct {
	ID string `json:"id" validate:"required,max=128"`
}

// FocusEventRequest is the body of POST /v1/access/{accessID}/events.
type FocusEventRequest struct {
	Kind string `json:"kind" validate:"required,oneof=focus blur"`

	// Timestamp defaults to the time the server received the event.
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// VisibilityRequest is the body of POST /v1/access/{accessID}/visibility.
type VisibilityRequest struct {
	State string `json:"state" validate:"required,oneof=visible hidden prerender"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCapture assembles a record from the posted snapshot and opens a
// session tracker for it.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := captureParams{
		LinkID:     chi.URLParam(r, "linkID"),
		AuditID:    q.Get("audit"),
		AccessID:   q.Get("accessId"),
		Visibility: q.Get("visibility"),
		Referrer:   q.Get("referrer"),
	}
	if err := s.validate.Struct(p); err != nil {
		s.writeError(w, err)
		return
	}

	snap, err := snapshot.Read(r.Body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	referrer := p.Referrer
	if referrer == "" && snap.Environment != nil {
		referrer = snap.Environment.Referrer
	}
	if referrer == "" {
		referrer = r.Referer()
	}
	clientIP, proxies := clientAddresses(r)

	opts := []capture.CaptureOption{
		capture.WithCapabilities(snap.Capabilities()),
		capture.WithClientIP(clientIP),
		capture.WithForwardedFor(proxies),
		capture.WithReferrer(referrer),
		capture.WithUserAgent(r.UserAgent()),
	}
	if p.AccessID != "" {
		opts = append(opts, capture.WithAccessID(p.AccessID))
	}
	if p.Visibility != "" {
		opts = append(opts, capture.WithPageVisibility(p.Visibility))
	}

	rec := s.capturer.Capture(r.Context(), p.LinkID, p.AuditID, opts...)
	s.sessions.Get(rec.AccessID)

	s.writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) tracker(w http.ResponseWriter, r *http.Request) (*session.Tracker, bool) {
	p := accessParams{AccessID: chi.URLParam(r, "accessID")}
	if err := s.validate.Struct(p); err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return s.sessions.Get(p.AccessID), true
}

func (s *Server) handleFocusEvent(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tracker(w, r)
	if !ok {
		return
	}
	var req FocusEventRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	ts := s.now()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	t.Observe(model.FocusKind(req.Kind), ts)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tracker(w, r)
	if !ok {
		return
	}
	var req VisibilityRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := t.VisibilityChange(req.State); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tracker(w, r)
	if !ok {
		return
	}
	if err := t.RecordDownload(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUnload flushes the tracker and closes it.
func (s *Server) handleUnload(w http.ResponseWriter, r *http.Request) {
	p := accessParams{AccessID: chi.URLParam(r, "accessID")}
	if err := s.validate.Struct(p); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.sessions.Close(r.Context(), p.AccessID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	p := accessParams{AccessID: chi.URLParam(r, "accessID")}
	if err := s.validate.Struct(p); err != nil {
		s.writeError(w, err)
		return
	}
	rec, err := s.records.Get(r.Context(), p.AccessID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rec == nil {
		s.writeNotFound(w, "record "+p.AccessID)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAuditRecords(w http.ResponseWriter, r *http.Request) {
	s.writeHistory(w, r, model.ScopeAudit, chi.URLParam(r, "auditID"), s.records.ListByAudit)
}

func (s *Server) handleLinkRecords(w http.ResponseWriter, r *http.Request) {
	s.writeHistory(w, r, model.ScopeLink, chi.URLParam(r, "linkID"), s.records.ListByLink)
}

func (s *Server) writeHistory(
	w http.ResponseWriter,
	r *http.Request,
	scope, id string,
	list func(ctx context.Context, id string) ([]*model.ForensicRecord, error),
) {
	if err := s.validate.Struct(scopeParams{ID: id}); err != nil {
		s.writeError(w, err)
		return
	}
	records, err := list(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if records == nil {
		records = []*model.ForensicRecord{}
	}
	s.writeJSON(w, http.StatusOK, &model.History{Scope: scope, ID: id, Records: records})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	p := scopeParams{ID: chi.URLParam(r, "auditID")}
	if err := s.validate.Struct(p); err != nil {
		s.writeError(w, err)
		return
	}
	stats, err := s.records.Stats(r.Context(), p.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// clientAddresses returns the originating client address and the proxies
// the request passed through. Behind proxies the first X-Forwarded-For
// entry is the client; the remaining entries and the peer are proxies.
func clientAddresses(r *http.Request) (string, []string) {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}

	var chain []string
	for _, header := range r.Header.Values("X-Forwarded-For") {
		for _, part := range strings.Split(header, ",") {
			addr, err := netip.ParseAddr(strings.TrimSpace(part))
			if err != nil {
				continue
			}
			chain = append(chain, addr.Unmap().String())
		}
	}
	if len(chain) == 0 {
		return peer, nil
	}
	proxies := append(chain[1:], peer)
	return chain[0], proxies
}
