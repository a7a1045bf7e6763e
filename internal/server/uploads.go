package server

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// chunkAssembler buffers chunked uploads until every chunk has
// arrived. Chunks may arrive out of order; the assembled file is
// released exactly once.
type chunkAssembler struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*chunkState
}

type chunkState struct {
	total  int
	chunks map[int][]byte
}

func newChunkAssembler() *chunkAssembler {
	return &chunkAssembler{pending: map[uuid.UUID]*chunkState{}}
}

// add stores one chunk and reports upload progress in [0,100]. When the
// final chunk lands, the assembled content is returned and the state
// dropped.
func (a *chunkAssembler) add(id uuid.UUID, index, total int, data []byte) (assembled []byte, progress int, err error) {
	if total <= 0 {
		return nil, 0, &ErrValidation{Field: "totalChunks", Message: "must be positive"}
	}
	if index < 0 || index >= total {
		return nil, 0, &ErrValidation{Field: "chunkIndex", Message: fmt.Sprintf("out of range [0,%d)", total)}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.pending[id]
	if !ok {
		st = &chunkState{total: total, chunks: map[int][]byte{}}
		a.pending[id] = st
	}
	if st.total != total {
		return nil, 0, &ErrValidation{Field: "totalChunks", Message: "changed mid-upload"}
	}
	st.chunks[index] = data

	if len(st.chunks) < st.total {
		return nil, len(st.chunks) * 100 / st.total, nil
	}

	var buf bytes.Buffer
	for i := 0; i < st.total; i++ {
		buf.Write(st.chunks[i])
	}
	delete(a.pending, id)
	return buf.Bytes(), 100, nil
}

// drop discards any partial upload state for a session.
func (a *chunkAssembler) drop(id uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, id)
}
