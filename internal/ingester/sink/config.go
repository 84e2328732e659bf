package sink

import "time"

const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"

	RowDelimiterNone   = "none"
	RowDelimiterVarint = "varint"
)

// Config is the configuration of the ClickHouse HTTP client
type Config struct {
	// Base url of the ClickHouse HTTP interface, e.g. http://clickhouse:8123/
	Url string `validate:"required,url"`
	// Database the route tables live in
	Database string `validate:"required,identifier"`
	// Credentials. Basic auth is only sent if Username is set
	Username string
	Password string
	// ClickHouse input format of the concatenated rows
	Format string `validate:"required"`
	// How rows are framed in the request body.  `none` sends payloads as they are (producers already length-delimit
	// them), `varint` prefixes each payload with its protobuf varint length
	RowDelimiter string `validate:"oneof=none varint"`
	// Compression applied to the request body: none, gzip or zstd
	Compression     string        `validate:"oneof=none gzip zstd"`
	ConnectTimeout  time.Duration `validate:"gt=0"`
	RequestTimeout  time.Duration `validate:"gt=0"`
	IdleConnTimeout time.Duration
}
