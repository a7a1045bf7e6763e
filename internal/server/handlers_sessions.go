package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/mmsops/mms-ingest/internal/session"
)

// handleListSessions returns sessions matching the query filters, with
// the total count for pagination.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := session.Filter{
		Phase:            session.Phase(q.Get("phase")),
		FileType:         q.Get("fileType"),
		FilenameContains: q.Get("filename"),
		BusinessDayFrom:  q.Get("businessDayFrom"),
		BusinessDayTo:    q.Get("businessDayTo"),
		SortBy:           q.Get("sortBy"),
		SortDesc:         q.Get("sortDir") == "desc",
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.errorResponse(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}
	if f.Limit == 0 {
		f.Limit = 50
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.errorResponse(w, http.StatusBadRequest, "invalid offset")
			return
		}
		f.Offset = n
	}

	sessions, total, err := s.sessions.Store().List(r.Context(), f)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    total,
		"limit":    f.Limit,
		"offset":   f.Offset,
	})
}

// handleGetSession returns one session by ID.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid session id")
		return
	}
	sess, err := s.sessions.Store().Get(r.Context(), id)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, sess)
}

// handleReprocess resets a failed session and queues it again at
// default priority.
func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid session id")
		return
	}

	sess, err := s.sessions.Reprocess(r.Context(), id)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if err := s.queue.Enqueue(r.Context(), id, session.DefaultPriority, sess.MaxAttempts); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, sess)
}

type bulkDeleteRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1"`
}

// handleBulkDelete soft-deletes a set of sessions. In-flight workers
// notice and abandon the files without phase transitions.
func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	deleted, err := s.sessions.Store().SoftDelete(r.Context(), req.IDs)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	// Discard any half-assembled chunk state for the deleted sessions.
	for _, id := range req.IDs {
		s.uploads.drop(id)
	}
	s.jsonResponse(w, http.StatusOK, map[string]int{"deleted": deleted})
}

type step6Request struct {
	FileIDs []uuid.UUID `json:"fileIds" validate:"required,min=1"`
}

// handleStep6Batch runs the enrichment step for a set of archived
// files.
func (s *Server) handleStep6Batch(w http.ResponseWriter, r *http.Request) {
	var req step6Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	done, err := s.archives.Step6Batch(r.Context(), req.FileIDs)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"requested": len(req.FileIDs),
		"completed": done,
	})
}
