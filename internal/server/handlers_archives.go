package server

import (
	"net/http"
	"strconv"

	"github.com/mmsops/mms-ingest/internal/archive"
)

// handleListArchives returns archive entries matching the query
// filters, newest first.
func (s *Server) handleListArchives(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := archive.Filter{
		ArchiveStatus:   archive.Status(q.Get("archiveStatus")),
		Step6Status:     archive.Step6Status(q.Get("step6Status")),
		BusinessDayFrom: q.Get("businessDayFrom"),
		BusinessDayTo:   q.Get("businessDayTo"),
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

	entries, err := s.archives.Store().List(r.Context(), f)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"archives": entries})
}
