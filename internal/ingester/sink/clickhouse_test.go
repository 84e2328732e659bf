package sink

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	method   string
	path     string
	query    string
	encoding string
	user     string
	password string
	body     []byte
}

// fakeClickHouse records every request it receives and answers with the configured status and body
type fakeClickHouse struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
	response string
}

func (f *fakeClickHouse) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	user, pass, _ := r.BasicAuth()
	f.mu.Lock()
	f.requests = append(f.requests, capturedRequest{
		method:   r.Method,
		path:     r.URL.Path,
		query:    r.URL.Query().Get("query"),
		encoding: r.Header.Get("Content-Encoding"),
		user:     user,
		password: pass,
		body:     body,
	})
	status, response := f.status, f.response
	f.mu.Unlock()
	w.WriteHeader(status)
	_, _ = w.Write([]byte(response))
}

func (f *fakeClickHouse) captured() []capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]capturedRequest(nil), f.requests...)
}

func testConfig(url string) Config {
	return Config{
		Url:            url,
		Database:       "analytics",
		Format:         "Protobuf",
		RowDelimiter:   RowDelimiterNone,
		Compression:    CompressionNone,
		ConnectTimeout: time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

func newTestClient(t *testing.T, status int, response string, mutate func(*Config)) (*ClickHouseClient, *fakeClickHouse) {
	t.Helper()
	fake := &fakeClickHouse{status: status, response: response}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	config := testConfig(srv.URL)
	if mutate != nil {
		mutate(&config)
	}
	client, err := NewClickHouseClient(config)
	require.NoError(t, err)
	return client, fake
}

func TestInsertBatch_ConcatenatesRowsInOrder(t *testing.T) {
	client, fake := newTestClient(t, http.StatusOK, "", func(c *Config) {
		c.Username = "loader"
		c.Password = "secret"
	})

	rows := [][]byte{[]byte("first"), []byte("second"), []byte("third")}
	err := client.InsertBatch(context.Background(), "login_events", "dto.proto:LoginEvent", rows)
	require.NoError(t, err)

	requests := fake.captured()
	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/", req.path)
	assert.Equal(t, "INSERT INTO analytics.login_events FORMAT Protobuf SETTINGS format_schema='dto.proto:LoginEvent'", req.query)
	assert.Equal(t, []byte("firstsecondthird"), req.body)
	assert.Equal(t, "", req.encoding)
	assert.Equal(t, "loader", req.user)
	assert.Equal(t, "secret", req.password)
}

func TestInsertBatch_EmptyIsNoop(t *testing.T) {
	client, fake := newTestClient(t, http.StatusInternalServerError, "should never be called", nil)

	assert.NoError(t, client.InsertBatch(context.Background(), "login_events", "s", nil))
	assert.NoError(t, client.InsertBatch(context.Background(), "login_events", "s", [][]byte{}))
	assert.Empty(t, fake.captured())
}

func TestInsertBatch_VarintDelimited(t *testing.T) {
	client, fake := newTestClient(t, http.StatusOK, "", func(c *Config) { c.RowDelimiter = RowDelimiterVarint })

	err := client.InsertBatch(context.Background(), "t", "s", [][]byte{[]byte("ab"), []byte("cde")})
	require.NoError(t, err)

	requests := fake.captured()
	require.Len(t, requests, 1)
	assert.Equal(t, []byte{2, 'a', 'b', 3, 'c', 'd', 'e'}, requests[0].body)
}

func TestInsertBatch_Compression(t *testing.T) {
	rows := [][]byte{bytes.Repeat([]byte("x"), 1000), []byte("tail")}
	expected := append(bytes.Repeat([]byte("x"), 1000), []byte("tail")...)

	t.Run("gzip", func(t *testing.T) {
		client, fake := newTestClient(t, http.StatusOK, "", func(c *Config) { c.Compression = CompressionGzip })
		require.NoError(t, client.InsertBatch(context.Background(), "t", "s", rows))

		req := fake.captured()[0]
		assert.Equal(t, "gzip", req.encoding)
		r, err := gzip.NewReader(bytes.NewReader(req.body))
		require.NoError(t, err)
		decoded, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, expected, decoded)
	})

	t.Run("zstd", func(t *testing.T) {
		client, fake := newTestClient(t, http.StatusOK, "", func(c *Config) { c.Compression = CompressionZstd })
		require.NoError(t, client.InsertBatch(context.Background(), "t", "s", rows))

		req := fake.captured()[0]
		assert.Equal(t, "zstd", req.encoding)
		dec, err := zstd.NewReader(nil)
		require.NoError(t, err)
		defer dec.Close()
		decoded, err := dec.DecodeAll(req.body, nil)
		require.NoError(t, err)
		assert.Equal(t, expected, decoded)
	})
}

func TestInsertBatch_ErrorRetainsDetail(t *testing.T) {
	detail := "Code: 27. DB::Exception: Cannot parse input: expected '\\t' before: 'garbage'"
	client, _ := newTestClient(t, http.StatusInternalServerError, detail+"\n", nil)

	err := client.InsertBatch(context.Background(), "login_events", "s", [][]byte{[]byte("garbage")})
	require.Error(t, err)

	var insertErr *InsertError
	require.True(t, errors.As(err, &insertErr))
	assert.Equal(t, http.StatusInternalServerError, insertErr.Status)
	assert.Equal(t, detail, insertErr.Detail)
	assert.True(t, IsPermanent(err))
}

func TestInsertBatch_TransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	config := testConfig(srv.URL)
	srv.Close()

	client, err := NewClickHouseClient(config)
	require.NoError(t, err)
	err = client.InsertBatch(context.Background(), "t", "s", [][]byte{[]byte("x")})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestPing(t *testing.T) {
	client, fake := newTestClient(t, http.StatusOK, "Ok.\n", nil)
	assert.NoError(t, client.Ping(context.Background()))
	assert.NoError(t, client.Check())
	assert.Equal(t, "/ping", fake.captured()[0].path)
	assert.Equal(t, http.MethodGet, fake.captured()[0].method)

	client, _ = newTestClient(t, http.StatusOK, "Not ok", nil)
	assert.Error(t, client.Ping(context.Background()))

	client, _ = newTestClient(t, http.StatusServiceUnavailable, "Ok.", nil)
	assert.Error(t, client.Ping(context.Background()))
}

func TestInsertQuery_EscapesSchema(t *testing.T) {
	client, err := NewClickHouseClient(testConfig("http://localhost:8123"))
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO analytics.t FORMAT Protobuf SETTINGS format_schema='it\\'s.proto:Msg'",
		client.insertQuery("t", "it's.proto:Msg"))
}
