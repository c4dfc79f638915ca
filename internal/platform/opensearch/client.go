package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"time"

	osgo "github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"

	"github.com/valyc0/fraudM/internal/platform/ctxutil"
	"github.com/valyc0/fraudM/internal/platform/logger"
	"github.com/valyc0/fraudM/internal/platform/retry"
)

const defaultRequestTimeout = 10 * time.Second

// Refresh policies for write requests.
const (
	RefreshNone    = ""
	RefreshWaitFor = "wait_for"
)

var exceptionType = regexp.MustCompile(`[a-z][a-z_]*_exception`)

// Client wraps the typed opensearchapi client with the calls the rule store
// needs and maps failures to OperationError. Safe for concurrent use.
type Client struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	api     *opensearchapi.Client
	idle    interface{ CloseIdleConnections() }
}

// DocMeta is the concurrency token of a stored document.
type DocMeta struct {
	ID          string
	SeqNo       int64
	PrimaryTerm int64
	Version     int64
}

type Hit struct {
	DocMeta
	Source json.RawMessage
}

// New builds a client without contacting the cluster.
func New(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.UseSSL {
		transport.TLSClientConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed dev clusters
		}
	}
	return newClient(log, cfg, transport)
}

func newClient(log *logger.Logger, cfg Config, transport http.RoundTripper) (*Client, error) {
	baseURL := cfg.BaseURL()
	api, err := opensearchapi.NewClient(opensearchapi.Config{
		Client: osgo.Config{
			Addresses: []string{baseURL},
			Username:  cfg.Username,
			Password:  cfg.Password,
			Transport: transport,
			// Connect and guarded writes own their retry policy.
			DisableRetry: true,
		},
	})
	if err != nil {
		return nil, opErr("new_client", OperationErrorTransportFailed, "build opensearch client failed", err)
	}
	c := &Client{
		log:     log.With("client", "OpenSearch"),
		cfg:     cfg,
		baseURL: baseURL,
		api:     api,
	}
	if idle, ok := transport.(interface{ CloseIdleConnections() }); ok {
		c.idle = idle
	}
	return c, nil
}

// Connect builds a client and verifies it with a liveness call, retrying
// with a fixed delay up to cfg.ConnectAttempts.
func Connect(ctx context.Context, log *logger.Logger, cfg Config) (*Client, error) {
	c, err := New(log, cfg)
	if err != nil {
		return nil, err
	}
	if err := connectClient(ctx, c); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func connectClient(ctx context.Context, c *Client) error {
	maxAttempts := c.cfg.ConnectAttempts
	rc := retry.Fixed(maxAttempts, c.cfg.ConnectDelay)
	rc.OnFailure = func(attempt int, err error) {
		c.log.Warn("OpenSearch connection attempt failed",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"url", c.baseURL,
			"error", err,
		)
	}
	attempt := 0
	err := retry.Do(ctx, rc, func() error {
		attempt++
		return c.Ping(ctx)
	})
	if err != nil {
		c.log.Error("OpenSearch unreachable, giving up",
			"attempts", attempt,
			"url", c.baseURL,
			"error", err,
		)
		return err
	}
	c.log.Info("Connected to OpenSearch",
		"url", c.baseURL,
		"attempt", attempt,
		"index", c.cfg.Index,
	)
	return nil
}

func (c *Client) Index() string { return c.cfg.Index }

// Ping fetches cluster info and fails on any non-2xx answer.
func (c *Client) Ping(ctx context.Context) error {
	const op = "ping"
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	resp, err := c.api.Info(ctx, nil)
	return apiError(ctx, op, rawResponse(resp), err)
}

// IndexExists reports whether index exists.
func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	const op = "index_exists"
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	resp, err := c.api.Indices.Exists(ctx, opensearchapi.IndicesExistsReq{Indices: []string{index}})
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, apiError(ctx, op, resp, err)
	}
	return resp != nil && resp.StatusCode == http.StatusOK, nil
}

// CreateIndex creates index with body (settings and mappings). A
// concurrent creator surfaces as OperationErrorAlreadyExists.
func (c *Client) CreateIndex(ctx context.Context, index string, body any) error {
	const op = "create_index"
	reader, err := encodeBody(op, body)
	if err != nil {
		return err
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	resp, err := c.api.Indices.Create(ctx, opensearchapi.IndicesCreateReq{Index: index, Body: reader})
	return apiError(ctx, op, rawResponse(resp), err)
}

// IndexDocument writes doc at id, replacing any previous document.
func (c *Client) IndexDocument(ctx context.Context, index, id string, doc any, refresh string) (DocMeta, error) {
	const op = "index_document"
	reader, err := encodeBody(op, doc)
	if err != nil {
		return DocMeta{}, err
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	resp, err := c.api.Index(ctx, opensearchapi.IndexReq{
		Index:      index,
		DocumentID: id,
		Body:       reader,
		Params:     opensearchapi.IndexParams{Refresh: refresh},
	})
	if err != nil {
		return DocMeta{}, apiError(ctx, op, rawResponse(resp), err)
	}
	return docMeta(resp.ID, resp.SeqNo, resp.PrimaryTerm, resp.Version), nil
}

// GetDocument decodes the source of id into out and returns its concurrency
// token. A missing document yields OperationErrorNotFound.
func (c *Client) GetDocument(ctx context.Context, index, id string, out any) (DocMeta, error) {
	const op = "get_document"
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	resp, err := c.api.Document.Get(ctx, opensearchapi.DocumentGetReq{Index: index, DocumentID: id})
	if err != nil {
		return DocMeta{}, apiError(ctx, op, rawResponse(resp), err)
	}
	if !resp.Found {
		return DocMeta{}, &OperationError{Code: OperationErrorNotFound, Operation: op, StatusCode: http.StatusNotFound, Message: "document not found"}
	}
	if out != nil {
		if err := json.Unmarshal(resp.Source, out); err != nil {
			return DocMeta{}, opErr(op, OperationErrorDecodeFailed, "decode document source failed", err)
		}
	}
	return docMeta(resp.ID, resp.SeqNo, resp.PrimaryTerm, resp.Version), nil
}

// UpdateDocument merges partial into id. When guard is non-nil the write
// only applies if the stored seq_no/primary_term still match; otherwise the
// server answers 409 (OperationErrorConflict).
func (c *Client) UpdateDocument(ctx context.Context, index, id string, partial any, guard *DocMeta, refresh string) (DocMeta, error) {
	const op = "update_document"
	reader, err := encodeBody(op, map[string]any{"doc": partial})
	if err != nil {
		return DocMeta{}, err
	}
	params := opensearchapi.UpdateParams{Refresh: refresh}
	if guard != nil {
		seqNo, term := int(guard.SeqNo), int(guard.PrimaryTerm)
		params.IfSeqNo = &seqNo
		params.IfPrimaryTerm = &term
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	resp, err := c.api.Update(ctx, opensearchapi.UpdateReq{
		Index:      index,
		DocumentID: id,
		Body:       reader,
		Params:     params,
	})
	if err != nil {
		return DocMeta{}, apiError(ctx, op, rawResponse(resp), err)
	}
	return docMeta(resp.ID, resp.SeqNo, resp.PrimaryTerm, resp.Version), nil
}

// DeleteDocument removes id. A missing document yields OperationErrorNotFound.
func (c *Client) DeleteDocument(ctx context.Context, index, id string, refresh string) error {
	const op = "delete_document"
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	resp, err := c.api.Document.Delete(ctx, opensearchapi.DocumentDeleteReq{
		Index:      index,
		DocumentID: id,
		Params:     opensearchapi.DocumentDeleteParams{Refresh: refresh},
	})
	return apiError(ctx, op, rawResponse(resp), err)
}

// Search runs query against index and returns the hits in server order.
func (c *Client) Search(ctx context.Context, index string, query any) ([]Hit, error) {
	const op = "search"
	reader, err := encodeBody(op, query)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	resp, err := c.api.Search(ctx, &opensearchapi.SearchReq{Indices: []string{index}, Body: reader})
	if err != nil {
		return nil, apiError(ctx, op, rawResponse(resp), err)
	}
	hits := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		hits = append(hits, Hit{DocMeta: DocMeta{ID: h.ID}, Source: h.Source})
	}
	return hits, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	if c != nil && c.idle != nil {
		c.idle.CloseIdleConnections()
	}
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return context.WithTimeout(ctxutil.Default(ctx), timeout)
}

func docMeta(id string, seqNo, primaryTerm, version int) DocMeta {
	return DocMeta{ID: id, SeqNo: int64(seqNo), PrimaryTerm: int64(primaryTerm), Version: int64(version)}
}

func encodeBody(op string, v any) (io.Reader, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
	}
	return bytes.NewReader(raw), nil
}

// rawResponse extracts the HTTP response from a typed result. Typed results
// are nil when the call never reached the server.
func rawResponse[T any, P interface {
	*T
	Inspect() opensearchapi.Inspect
}](p P) *osgo.Response {
	if p == nil {
		return nil
	}
	return p.Inspect().Response
}

// apiError maps a failed call to an OperationError. A missing response
// means the request never completed.
func apiError(ctx context.Context, op string, resp *osgo.Response, err error) error {
	if err == nil {
		return nil
	}
	if resp == nil || resp.StatusCode == 0 {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return opErr(op, OperationErrorTimeout, "opensearch request timed out", err)
		}
		return classifyHTTPCallError(op, "opensearch request failed", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return opErr(op, OperationErrorDecodeFailed, "decode response failed", err)
	}
	return classifyStatus(op, resp.StatusCode, err)
}

func classifyStatus(op string, status int, cause error) error {
	e := &OperationError{
		Operation:  op,
		StatusCode: status,
		Message:    fmt.Sprintf("opensearch http status=%d", status),
		Cause:      cause,
	}
	if cause != nil {
		e.Message = cause.Error()
		e.Type = exceptionType.FindString(e.Message)
	}
	switch {
	case e.Type == "resource_already_exists_exception":
		e.Code = OperationErrorAlreadyExists
	case status == http.StatusConflict || e.Type == "version_conflict_engine_exception":
		e.Code = OperationErrorConflict
	case status == http.StatusNotFound:
		e.Code = OperationErrorNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Code = OperationErrorUnauthorized
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		e.Code = OperationErrorTimeout
	default:
		e.Code = OperationErrorRequestFailed
	}
	return e
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}
