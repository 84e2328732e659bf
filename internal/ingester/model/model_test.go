package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingHandle struct {
	calls    []string
	nakDelay time.Duration
}

func (h *recordingHandle) Ack() error {
	h.calls = append(h.calls, "ack")
	return nil
}

func (h *recordingHandle) Nak(delay time.Duration) error {
	h.calls = append(h.calls, "nak")
	h.nakDelay = delay
	return nil
}

func (h *recordingHandle) Term() error {
	h.calls = append(h.calls, "term")
	return nil
}

func TestSettle(t *testing.T) {
	for _, d := range []Disposition{Ack, Nak, Term} {
		t.Run(d.String(), func(t *testing.T) {
			h := &recordingHandle{}
			assert.NoError(t, Settle(h, d, 2*time.Second))
			assert.Equal(t, []string{d.String()}, h.calls)
			if d == Nak {
				assert.Equal(t, 2*time.Second, h.nakDelay)
			}
		})
	}
}

func TestSettle_Unknown(t *testing.T) {
	h := &recordingHandle{}
	assert.Error(t, Settle(h, Disposition(7), 0))
	assert.Empty(t, h.calls)
	assert.Equal(t, "Disposition(7)", Disposition(7).String())
}
