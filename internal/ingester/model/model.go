package model

import (
	"fmt"
	"time"
)

// Route is the destination of every event published on a subject: the ClickHouse table and the format schema its
// rows are encoded with.
type Route struct {
	Table  string
	Schema string
}

// AckHandle is the capability to tell the queue what happened to a message.  Exactly one of the three methods must
// be called, exactly once, for every message that is received.
type AckHandle interface {
	// Ack marks the message as processed.
	Ack() error
	// Nak asks the queue to redeliver the message after delay.  A zero delay redelivers as soon as possible.
	Nak(delay time.Duration) error
	// Term tells the queue never to redeliver the message.
	Term() error
}

// Disposition is the terminal outcome of a message
type Disposition int

const (
	Ack Disposition = iota
	Nak
	Term
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Nak:
		return "nak"
	case Term:
		return "term"
	default:
		return fmt.Sprintf("Disposition(%d)", int(d))
	}
}

// Settle issues disposition d on handle.  nakDelay is only used for Nak.
func Settle(handle AckHandle, d Disposition, nakDelay time.Duration) error {
	switch d {
	case Ack:
		return handle.Ack()
	case Nak:
		return handle.Nak(nakDelay)
	case Term:
		return handle.Term()
	default:
		return fmt.Errorf("unknown disposition %d", int(d))
	}
}

// Message is a single message pulled from the queue, before routing
type Message struct {
	Subject string
	Payload []byte
	Handle  AckHandle
}

// InboundEvent is a routed message on its way to the batcher
type InboundEvent struct {
	Subject string
	Route   Route
	Payload []byte
	Handle  AckHandle
}
