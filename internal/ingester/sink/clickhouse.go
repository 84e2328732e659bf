package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/protobuf/encoding/protowire"
)

// maxDetailBytes bounds how much of an error response is kept
const maxDetailBytes = 64 * 1024

// Inserter is anything that can bulk load a batch of encoded rows into a table
type Inserter interface {
	InsertBatch(ctx context.Context, table, schema string, rows [][]byte) error
}

// InsertError is returned when ClickHouse answered an insert with a non-2xx status
type InsertError struct {
	Status int
	Detail string
}

func (e *InsertError) Error() string {
	return fmt.Sprintf("clickhouse insert failed %d %s: %s", e.Status, http.StatusText(e.Status), e.Detail)
}

// ClickHouseClient talks to the ClickHouse HTTP interface.  It is safe for concurrent use.
type ClickHouseClient struct {
	baseUrl *url.URL
	config  Config
	http    *http.Client
	zstdEnc *zstd.Encoder
}

func NewClickHouseClient(config Config) (*ClickHouseClient, error) {
	baseUrl, err := url.Parse(config.Url)
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid clickhouse url %s", config.Url)
	}
	if !strings.HasSuffix(baseUrl.Path, "/") {
		baseUrl.Path += "/"
	}

	var enc *zstd.Encoder
	if config.Compression == CompressionZstd {
		enc, err = zstd.NewWriter(nil)
		if err != nil {
			return nil, errors.WithMessage(err, "could not create zstd encoder")
		}
	}

	dialer := &net.Dialer{Timeout: config.ConnectTimeout}
	client := &http.Client{
		Timeout: config.RequestTimeout,
		Transport: &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			DialContext:       dialer.DialContext,
			IdleConnTimeout:   config.IdleConnTimeout,
			ForceAttemptHTTP2: true,
		},
	}

	log.Infof("ClickHouse HTTP endpoint: %s", baseUrl.Redacted())
	return &ClickHouseClient{
		baseUrl: baseUrl,
		config:  config,
		http:    client,
		zstdEnc: enc,
	}, nil
}

// Ping checks that ClickHouse is up.  It succeeds only if /ping answers 2xx with "Ok."
func (c *ClickHouseClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseUrl.JoinPath("ping").String(), nil)
	if err != nil {
		return errors.WithStack(err)
	}
	c.authenticate(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WithMessage(err, "clickhouse ping failed")
	}
	defer resp.Body.Close()

	body := readDetail(resp.Body)
	if resp.StatusCode/100 == 2 && strings.TrimSpace(body) == "Ok." {
		return nil
	}
	return errors.Errorf("clickhouse ping failed %d: %s", resp.StatusCode, body)
}

// InsertBatch loads rows into table in a single request.  Rows are sent in the order given.  An empty batch is a
// no-op and issues no request.
func (c *ClickHouseClient) InsertBatch(ctx context.Context, table, schema string, rows [][]byte) error {
	if len(rows) == 0 {
		return nil
	}

	body, err := c.encodeBody(rows)
	if err != nil {
		return err
	}

	u := *c.baseUrl
	u.RawQuery = url.Values{"query": []string{c.insertQuery(table, schema)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.config.Compression != "" && c.config.Compression != CompressionNone {
		req.Header.Set("Content-Encoding", c.config.Compression)
	}
	c.authenticate(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WithMessagef(err, "clickhouse insert into %s failed", table)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return &InsertError{Status: resp.StatusCode, Detail: readDetail(resp.Body)}
}

// Check implements health.Checker
func (c *ClickHouseClient) Check() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.ConnectTimeout)
	defer cancel()
	return c.Ping(ctx)
}

func (c *ClickHouseClient) insertQuery(table, schema string) string {
	return fmt.Sprintf(
		"INSERT INTO %s.%s FORMAT %s SETTINGS format_schema='%s'",
		c.config.Database, table, c.config.Format, strings.ReplaceAll(schema, "'", "\\'"))
}

func (c *ClickHouseClient) encodeBody(rows [][]byte) ([]byte, error) {
	size := 0
	for _, r := range rows {
		size += len(r) + protowire.SizeVarint(uint64(len(r)))
	}
	raw := make([]byte, 0, size)
	for _, r := range rows {
		if c.config.RowDelimiter == RowDelimiterVarint {
			raw = protowire.AppendVarint(raw, uint64(len(r)))
		}
		raw = append(raw, r...)
	}

	switch c.config.Compression {
	case "", CompressionNone:
		return raw, nil
	case CompressionZstd:
		return c.zstdEnc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
	case CompressionGzip:
		buf := &bytes.Buffer{}
		w := gzip.NewWriter(buf)
		if _, err := w.Write(raw); err != nil {
			return nil, errors.WithStack(err)
		}
		if err := w.Close(); err != nil {
			return nil, errors.WithStack(err)
		}
		return buf.Bytes(), nil
	default:
		return nil, errors.Errorf("unknown compression %s", c.config.Compression)
	}
}

func (c *ClickHouseClient) authenticate(req *http.Request) {
	if c.config.Username != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}
}

func readDetail(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxDetailBytes))
	if err != nil {
		log.WithError(err).Debug("could not read clickhouse response body")
	}
	return strings.TrimSpace(string(b))
}
