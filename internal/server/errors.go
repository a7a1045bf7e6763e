package server

import (
	"fmt"
	"net/http"

	"github.com/mmsops/mms-ingest/internal/archive"
	"github.com/mmsops/mms-ingest/internal/queue"
	"github.com/mmsops/mms-ingest/internal/schema"
	"github.com/mmsops/mms-ingest/internal/session"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	switch err.(type) {
	case *session.ErrSessionNotFound, *queue.ErrNotQueued, *archive.ErrNotArchived, *schema.ErrSchemaNotFound:
		return http.StatusNotFound
	case *session.ErrIllegalTransition, *session.StaleTransitionError, *session.ErrUploadIncomplete,
		*archive.ErrArchivePrecondition, *archive.ErrStep6Transition:
		return http.StatusConflict
	case *schema.ValidationError, *ErrValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
