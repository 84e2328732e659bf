package configuration

import (
	"time"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/G-Research/eventhouse/internal/common/logging"
	"github.com/G-Research/eventhouse/internal/ingester/queue"
	"github.com/G-Research/eventhouse/internal/ingester/sink"
)

type EventhouseConfiguration struct {
	// Port that metrics and the health endpoint are served on
	MetricsPort uint16
	Logging     logging.Config
	Nats        queue.Config
	ClickHouse  sink.Config
	Batch       BatchConfig
	// Number of concurrent ingestion workers.  Zero derives it from the number of available cores.
	Workers int `validate:"gte=0"`
	// Routes added to, or overriding, the built in subject table
	Routes []RouteConfig `validate:"dive"`
}

type BatchConfig struct {
	// Rows per subject above which a batch is inserted immediately
	MaxRows int `validate:"gt=0"`
	// Payload bytes per subject above which a batch is inserted immediately, e.g. 8Mi
	MaxBytes resource.Quantity
	// Interval at which batches are inserted regardless of size
	FlushInterval time.Duration `validate:"gt=0"`
	// How long to wait for in-flight messages during shutdown
	DrainTimeout time.Duration `validate:"gt=0"`
	// Redelivery delay requested when a batch fails with a transient error
	NakDelay      time.Duration `validate:"gte=0"`
	InsertTimeout time.Duration `validate:"gt=0"`
}

type RouteConfig struct {
	Subject string `validate:"required"`
	Table   string `validate:"required,identifier"`
	Schema  string `validate:"required"`
}
