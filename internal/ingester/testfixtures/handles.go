package testfixtures

import (
	"sync"
	"testing"
	"time"

	"github.com/G-Research/eventhouse/internal/ingester/model"
)

// RecordingHandle is a model.AckHandle that remembers how it was settled and fails the test if it is settled twice
type RecordingHandle struct {
	t            *testing.T
	mu           sync.Mutex
	dispositions []model.Disposition
	nakDelay     time.Duration
}

func NewRecordingHandle(t *testing.T) *RecordingHandle {
	return &RecordingHandle{t: t}
}

func (h *RecordingHandle) Ack() error {
	return h.record(model.Ack, 0)
}

func (h *RecordingHandle) Nak(delay time.Duration) error {
	return h.record(model.Nak, delay)
}

func (h *RecordingHandle) Term() error {
	return h.record(model.Term, 0)
}

func (h *RecordingHandle) record(d model.Disposition, nakDelay time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.dispositions) > 0 {
		h.t.Errorf("message settled twice: %s then %s", h.dispositions[0], d)
	}
	h.dispositions = append(h.dispositions, d)
	h.nakDelay = nakDelay
	return nil
}

// Settled returns every disposition issued so far
func (h *RecordingHandle) Settled() []model.Disposition {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.Disposition(nil), h.dispositions...)
}

func (h *RecordingHandle) IsSettled() bool {
	return len(h.Settled()) > 0
}

func (h *RecordingHandle) NakDelay() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nakDelay
}
