package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/mmsops/mms-ingest/internal/objectstore"
	"github.com/mmsops/mms-ingest/internal/session"
)

// maxUploadBytes bounds a single upload or chunk body. The client
// chunks anything larger than 25MB; allow headroom for the multipart
// framing.
const maxUploadBytes = 32 << 20

// handlePing reports liveness and the configured environment.
func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"environment": s.environment,
		"message":     "uploader ready",
	})
}

// handleBatchStatus reports queue occupancy for the uploader client.
func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"queue":         stats,
		"maxConcurrent": s.maxConcurrent,
		"isBusy":        s.maxConcurrent > 0 && stats.Active >= s.maxConcurrent,
	})
}

type startUploadRequest struct {
	FileName   string `json:"fileName" validate:"required"`
	FileSize   int64  `json:"fileSize" validate:"gte=0"`
	FileType   string `json:"fileType,omitempty"`
	AutoEncode bool   `json:"autoEncode,omitempty"`
}

// handleStartUpload creates an upload session in the started phase.
func (s *Server) handleStartUpload(w http.ResponseWriter, r *http.Request) {
	var req startUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.sessions.Start(r.Context(), req.FileName, req.FileSize, req.FileType, uuid.NewString(), req.AutoEncode)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusCreated, sess)
}

// handleUpload receives the whole file in one multipart request.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid session id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer file.Close()

	if _, err := s.sessions.Advance(r.Context(), id, session.PhaseUploading, session.Update{}); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if err := s.storeContent(r, id, file); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	sess, err := s.finishUpload(r, id)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, sess)
}

// handleUploadChunk receives one chunk of a large file. Progress is
// tracked per chunk; the session moves to uploaded when the last chunk
// lands.
func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid session id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	index, err := strconv.Atoi(r.FormValue("chunkIndex"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid chunkIndex")
		return
	}
	total, err := strconv.Atoi(r.FormValue("totalChunks"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid totalChunks")
		return
	}
	chunk, _, err := r.FormFile("chunk")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "missing chunk part")
		return
	}
	defer chunk.Close()
	data, err := io.ReadAll(chunk)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "failed to read chunk")
		return
	}

	// The first chunk of a session starts the upload.
	cur, err := s.sessions.Store().Get(r.Context(), id)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if cur.Phase == session.PhaseStarted {
		if _, err := s.sessions.Advance(r.Context(), id, session.PhaseUploading, session.Update{}); err != nil {
			s.errorResponse(w, HTTPStatus(err), err.Error())
			return
		}
	}

	assembled, progress, err := s.uploads.add(id, index, total, data)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	if assembled == nil {
		if err := s.sessions.Store().SetProgress(r.Context(), id, progress); err != nil {
			s.errorResponse(w, HTTPStatus(err), err.Error())
			return
		}
		s.jsonResponse(w, http.StatusOK, map[string]any{
			"chunkIndex": index,
			"progress":   progress,
		})
		return
	}

	if err := s.storeContent(r, id, bytes.NewReader(assembled)); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	sess, err := s.finishUpload(r, id)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, sess)
}

func (s *Server) storeContent(r *http.Request, id uuid.UUID, content io.Reader) error {
	return s.objects.Put(r.Context(), objectstore.UploadKey(id.String()), content)
}

// finishUpload marks the upload complete and queues the file for
// processing.
func (s *Server) finishUpload(r *http.Request, id uuid.UUID) (*session.Session, error) {
	ctx := r.Context()
	if err := s.sessions.Store().SetProgress(ctx, id, 100); err != nil {
		return nil, err
	}
	key := objectstore.UploadKey(id.String())
	sess, err := s.sessions.Advance(ctx, id, session.PhaseUploaded, session.Update{StorageKey: &key})
	if err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, id, sess.Priority, sess.MaxAttempts); err != nil {
		return nil, err
	}
	return sess, nil
}
