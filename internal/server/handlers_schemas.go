package server

import (
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/mmsops/mms-ingest/internal/schema"
)

// handleListSchemas returns every registered schema.
func (s *Server) handleListSchemas(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{"schemas": s.registry.List()})
}

// handleCreateSchema registers a new schema version from a JSON
// document. The document is validated structurally before any layout
// checks run.
func (s *Server) handleCreateSchema(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "failed to read body")
		return
	}

	parsed, err := schema.ParseDocument(body)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	id, err := s.registry.Register(*parsed)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	stored, _ := s.registry.Get(id)
	if s.schemaStore != nil {
		if err := s.schemaStore.Save(r.Context(), stored); err != nil {
			s.errorResponse(w, HTTPStatus(err), err.Error())
			return
		}
	}
	s.jsonResponse(w, http.StatusCreated, stored)
}

func (s *Server) setSchemaActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid schema id")
		return
	}

	var regErr error
	if active {
		regErr = s.registry.Activate(id)
	} else {
		regErr = s.registry.Deactivate(id)
	}
	if regErr != nil {
		s.errorResponse(w, http.StatusNotFound, regErr.Error())
		return
	}
	if s.schemaStore != nil {
		if err := s.schemaStore.SetActive(r.Context(), id, active); err != nil {
			s.errorResponse(w, HTTPStatus(err), err.Error())
			return
		}
	}

	updated, _ := s.registry.Get(id)
	s.jsonResponse(w, http.StatusOK, updated)
}

// handleActivateSchema marks a schema version as the active resolution
// target for its file type.
func (s *Server) handleActivateSchema(w http.ResponseWriter, r *http.Request) {
	s.setSchemaActive(w, r, true)
}

// handleDeactivateSchema clears the active flag. Files already decoded
// against the version are unaffected.
func (s *Server) handleDeactivateSchema(w http.ResponseWriter, r *http.Request) {
	s.setSchemaActive(w, r, false)
}
