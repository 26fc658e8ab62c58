package odoo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var ErrNotFound = errors.New("odoo: record not found")

// RPCError is a JSON-RPC level error returned by the Odoo server.
type RPCError struct {
	Message    string
	Code       int64
	Data       string
	HTTPStatus int
}

func (e *RPCError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("odoo rpc error %d: %s", e.Code, e.Message)
	}
	return "odoo rpc error: " + e.Message
}

// Client talks to Odoo's /jsonrpc endpoint. The authenticated uid is cached;
// concurrent callers share a single in-flight login.
type Client struct {
	endpoint string
	db       string
	user     string
	apiKey   string

	httpClient *http.Client
	counter    atomic.Uint64

	authMu sync.Mutex
	uid    int64
}

func NewClient(rawURL string, db string, user string, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:   normalizeURL(rawURL) + "/jsonrpc",
		db:         db,
		user:       user,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// normalizeURL strips API path suffixes so configs may point at either the
// base URL or a full RPC endpoint.
func normalizeURL(raw string) string {
	normalized := strings.TrimRight(strings.TrimSpace(raw), "/")
	for _, suffix := range []string{
		"/jsonrpc",
		"/xmlrpc/2/common",
		"/xmlrpc/2/object",
		"/xmlrpc/2",
		"/xmlrpc/common",
		"/xmlrpc/object",
		"/xmlrpc",
	} {
		if strings.HasSuffix(normalized, suffix) {
			normalized = normalized[:len(normalized)-len(suffix)]
			break
		}
	}
	return strings.TrimRight(normalized, "/")
}

func (c *Client) call(ctx context.Context, service string, method string, args []interface{}) (gjson.Result, error) {
	payload, err := sjson.Set("{}", "jsonrpc", "2.0")
	if err == nil {
		payload, err = sjson.Set(payload, "method", "call")
	}
	if err == nil {
		payload, err = sjson.Set(payload, "params.service", service)
	}
	if err == nil {
		payload, err = sjson.Set(payload, "params.method", method)
	}
	if err == nil {
		payload, err = sjson.Set(payload, "params.args", args)
	}
	if err == nil {
		payload, err = sjson.Set(payload, "id", c.newRequestID())
	}
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to build jsonrpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader([]byte(payload)))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("odoo request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to read odoo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, &RPCError{
			Message:    fmt.Sprintf("unexpected http status %d", resp.StatusCode),
			HTTPStatus: resp.StatusCode,
			Data:       strings.TrimSpace(string(body)),
		}
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, &RPCError{
			Message:    "invalid jsonrpc response",
			HTTPStatus: resp.StatusCode,
			Data:       strings.TrimSpace(string(body)),
		}
	}

	parsed := gjson.ParseBytes(body)
	if rpcErr := parsed.Get("error"); rpcErr.Exists() {
		message := rpcErr.Get("message").String()
		if message == "" {
			message = "jsonrpc error"
		}
		return gjson.Result{}, &RPCError{
			Message:    message,
			Code:       rpcErr.Get("code").Int(),
			Data:       rpcErr.Get("data").Raw,
			HTTPStatus: resp.StatusCode,
		}
	}
	result := parsed.Get("result")
	if !result.Exists() {
		return gjson.Result{}, &RPCError{
			Message:    "malformed jsonrpc response",
			HTTPStatus: resp.StatusCode,
			Data:       strings.TrimSpace(string(body)),
		}
	}
	return result, nil
}

func (c *Client) newRequestID() string {
	return "rpc-" + strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + strconv.FormatUint(c.counter.Add(1), 10)
}

// Authenticate logs in and caches the uid. The mutex is held across the login
// call so concurrent callers never race duplicate logins.
func (c *Client) Authenticate(ctx context.Context) (int64, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if c.uid != 0 {
		return c.uid, nil
	}
	result, err := c.call(ctx, "common", "login", []interface{}{c.db, c.user, c.apiKey})
	if err != nil {
		return 0, err
	}
	uid := result.Int()
	if uid == 0 {
		return 0, fmt.Errorf("odoo authentication failed: check user and api key")
	}
	c.uid = uid
	return uid, nil
}

// ResetAuth clears the cached uid so the next call re-authenticates.
func (c *Client) ResetAuth() {
	c.authMu.Lock()
	c.uid = 0
	c.authMu.Unlock()
}

// Version returns the server version block without authenticating.
func (c *Client) Version(ctx context.Context) (gjson.Result, error) {
	return c.call(ctx, "common", "version", []interface{}{})
}

// Execute runs an arbitrary model method through execute_kw.
func (c *Client) Execute(ctx context.Context, model string, method string, args []interface{}, kwargs map[string]interface{}) (gjson.Result, error) {
	uid, err := c.Authenticate(ctx)
	if err != nil {
		return gjson.Result{}, err
	}
	if args == nil {
		args = []interface{}{}
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	return c.call(ctx, "object", "execute_kw", []interface{}{
		c.db, uid, c.apiKey, model, method, args, kwargs,
	})
}

// SearchRead returns matching records with the requested fields. A
// limit of zero or less fetches every match.
func (c *Client) SearchRead(ctx context.Context, model string, domain []interface{}, fields []string, limit int) ([]Record, error) {
	if domain == nil {
		domain = []interface{}{}
	}
	kwargs := map[string]interface{}{"fields": fields}
	if limit > 0 {
		kwargs["limit"] = limit
	}
	result, err := c.Execute(ctx, model, "search_read", []interface{}{domain}, kwargs)
	if err != nil {
		return nil, err
	}
	items := result.Array()
	records := make([]Record, 0, len(items))
	for _, item := range items {
		records = append(records, Record{raw: item})
	}
	return records, nil
}

// CreateRecord creates one record and returns its id.
func (c *Client) CreateRecord(ctx context.Context, model string, values map[string]interface{}) (int64, error) {
	result, err := c.Execute(ctx, model, "create", []interface{}{values}, nil)
	if err != nil {
		return 0, err
	}
	id := result.Int()
	if id == 0 {
		return 0, fmt.Errorf("odoo create returned no id for %s", model)
	}
	return id, nil
}

// WriteRecord updates the given records.
func (c *Client) WriteRecord(ctx context.Context, model string, ids []int64, values map[string]interface{}) error {
	_, err := c.Execute(ctx, model, "write", []interface{}{ids, values}, nil)
	return err
}

// Unlink deletes the given records.
func (c *Client) Unlink(ctx context.Context, model string, ids []int64) error {
	_, err := c.Execute(ctx, model, "unlink", []interface{}{ids}, nil)
	return err
}

// Cond builds one domain condition triple.
func Cond(field string, op string, value interface{}) []interface{} {
	return []interface{}{field, op, value}
}
