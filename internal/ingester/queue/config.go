package queue

import (
	"time"

	"github.com/nats-io/nats.go"
)

type Config struct {
	// NATS urls, e.g. nats://localhost:4222
	Servers  []string `validate:"required,min=1"`
	Username string
	Password string
	Stream   StreamConfig
	Consumer ConsumerConfig
	// Upper bound on a single pull.  A pull that times out is not an error, the worker just pulls again.
	PullTimeout     time.Duration `validate:"gt=0"`
	ConnectTimeout  time.Duration `validate:"gt=0"`
	ConnectAttempts uint          `validate:"gt=0"`
}

type StreamConfig struct {
	Name     string   `validate:"required"`
	Subjects []string `validate:"required,min=1"`
	// If true the stream is created when it doesn't exist.  Otherwise a missing stream is a startup error.
	Create       bool
	Retention    nats.RetentionPolicy
	Discard      nats.DiscardPolicy
	Storage      nats.StorageType
	MaxConsumers int
	MaxAge       time.Duration
	Replicas     int `validate:"gte=0"`
}

type ConsumerConfig struct {
	Durable       string `validate:"required"`
	FilterSubject string `validate:"required"`
	// How long the server waits for a disposition before redelivering
	AckWait       time.Duration `validate:"gt=0"`
	MaxDeliver    int
	MaxAckPending int
}
