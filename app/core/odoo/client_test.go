package odoo

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

// fakeOdoo answers /jsonrpc login and execute_kw calls.
type fakeOdoo struct {
	logins        atomic.Int64
	loginResult   string
	executeResult func(model string, method string) string

	mu         sync.Mutex
	lastKwargs string
}

func (f *fakeOdoo) executeKwargs() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastKwargs
}

func (f *fakeOdoo) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		req := gjson.ParseBytes(body)
		service := req.Get("params.service").String()
		method := req.Get("params.method").String()
		w.Header().Set("Content-Type", "application/json")

		switch {
		case service == "common" && method == "login":
			f.logins.Add(1)
			result := f.loginResult
			if result == "" {
				result = "7"
			}
			_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":"1","result":`+result+`}`)
		case service == "common" && method == "version":
			_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":"1","result":{"server_version":"16.0"}}`)
		case service == "object" && method == "execute_kw":
			args := req.Get("params.args").Array()
			model := args[3].String()
			objMethod := args[4].String()
			if len(args) > 6 {
				f.mu.Lock()
				f.lastKwargs = args[6].Raw
				f.mu.Unlock()
			}
			result := `true`
			if f.executeResult != nil {
				result = f.executeResult(model, objMethod)
			}
			_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":"1","result":`+result+`}`)
		default:
			_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":"1","error":{"code":404,"message":"unknown service"}}`)
		}
	}
}

func newTestClient(t *testing.T, fake *fakeOdoo) *Client {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	return NewClient(server.URL, "odoo", "admin@example.com", "key", 5*time.Second)
}

func TestAuthenticateCachesUID(t *testing.T) {
	fake := &fakeOdoo{}
	client := newTestClient(t, fake)
	ctx := context.Background()

	uid, err := client.Authenticate(ctx)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if uid != 7 {
		t.Fatalf("unexpected uid: %d", uid)
	}
	if _, err := client.Authenticate(ctx); err != nil {
		t.Fatalf("second authenticate failed: %v", err)
	}
	if got := fake.logins.Load(); got != 1 {
		t.Fatalf("expected a single login call, got %d", got)
	}

	client.ResetAuth()
	if _, err := client.Authenticate(ctx); err != nil {
		t.Fatalf("re-authenticate failed: %v", err)
	}
	if got := fake.logins.Load(); got != 2 {
		t.Fatalf("expected re-login after reset, got %d logins", got)
	}
}

func TestAuthenticateSingleFlightUnderConcurrency(t *testing.T) {
	fake := &fakeOdoo{}
	client := newTestClient(t, fake)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Authenticate(context.Background()); err != nil {
				t.Errorf("authenticate failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := fake.logins.Load(); got != 1 {
		t.Fatalf("expected one in-flight login shared by all callers, got %d", got)
	}
}

func TestAuthenticateRejectsFalseUID(t *testing.T) {
	fake := &fakeOdoo{loginResult: "false"}
	client := newTestClient(t, fake)

	if _, err := client.Authenticate(context.Background()); err == nil {
		t.Fatal("expected authentication error for false uid")
	}
}

func TestSearchLeadsParsesRecords(t *testing.T) {
	fake := &fakeOdoo{
		executeResult: func(model string, method string) string {
			if model == "crm.lead" && method == "search_read" {
				return `[{"id":42,"name":"Acme Deal","expected_revenue":50000,"partner_id":[7,"Acme"],"description":"x","date_deadline":"2025-01-01","active":true}]`
			}
			return `[]`
		},
	}
	client := newTestClient(t, fake)

	leads, err := client.SearchLeads(context.Background(), nil, 10)
	if err != nil {
		t.Fatalf("search leads failed: %v", err)
	}
	if len(leads) != 1 {
		t.Fatalf("expected 1 lead, got %d", len(leads))
	}
	lead := leads[0]
	if lead.ID() != 42 {
		t.Fatalf("unexpected id: %d", lead.ID())
	}
	if lead.Float("expected_revenue") != 50000 {
		t.Fatalf("unexpected revenue: %f", lead.Float("expected_revenue"))
	}
	partnerID, ok := lead.Many2One("partner_id")
	if !ok || partnerID != 7 {
		t.Fatalf("unexpected partner resolution: %d %v", partnerID, ok)
	}
}

func TestSearchReadLimitZeroIsUnbounded(t *testing.T) {
	fake := &fakeOdoo{
		executeResult: func(model string, method string) string { return `[]` },
	}
	client := newTestClient(t, fake)
	ctx := context.Background()

	if _, err := client.Stages(ctx, 0); err != nil {
		t.Fatalf("stages failed: %v", err)
	}
	if kwargs := gjson.Parse(fake.executeKwargs()); kwargs.Get("limit").Exists() {
		t.Fatalf("limit 0 must not cap the result set, sent kwargs: %s", kwargs.Raw)
	}

	if _, err := client.SearchRead(ctx, "crm.lead", nil, []string{"id"}, 5); err != nil {
		t.Fatalf("search_read failed: %v", err)
	}
	if got := gjson.Parse(fake.executeKwargs()).Get("limit").Int(); got != 5 {
		t.Fatalf("expected limit 5, got %d", got)
	}
}

func TestGetLeadNotFound(t *testing.T) {
	fake := &fakeOdoo{
		executeResult: func(model string, method string) string { return `[]` },
	}
	client := newTestClient(t, fake)

	_, err := client.GetLead(context.Background(), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRPCErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":"1","error":{"code":200,"message":"Odoo Server Error"}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "odoo", "admin@example.com", "key", 5*time.Second)
	_, err := client.Version(context.Background())
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if rpcErr.Code != 200 || rpcErr.Message != "Odoo Server Error" {
		t.Fatalf("unexpected rpc error: %+v", rpcErr)
	}
}

func TestNormalizeURLStripsRPCSuffixes(t *testing.T) {
	cases := map[string]string{
		"http://odoo:8069":                  "http://odoo:8069",
		"http://odoo:8069/":                 "http://odoo:8069",
		"http://odoo:8069/jsonrpc":          "http://odoo:8069",
		"http://odoo:8069/xmlrpc/2/common":  "http://odoo:8069",
		"http://odoo:8069/xmlrpc/2/object/": "http://odoo:8069",
		" http://odoo:8069/xmlrpc ":         "http://odoo:8069",
	}
	for raw, want := range cases {
		if got := normalizeURL(raw); got != want {
			t.Fatalf("normalizeURL(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestRecordAccessorsHandleFalseFields(t *testing.T) {
	record := ParseRecord(`{"id":1,"name":"Lead","description":false,"expected_revenue":false,"partner_id":false,"tag_ids":[]}`)

	if record.Str("description") != "" {
		t.Fatalf("expected empty description for false field")
	}
	if record.Float("expected_revenue") != 0 {
		t.Fatalf("expected zero revenue for false field")
	}
	if record.Set("description") || record.Set("partner_id") || record.Set("tag_ids") {
		t.Fatal("false and empty fields must report as unset")
	}
	if !record.Set("name") {
		t.Fatal("name must report as set")
	}
	if _, ok := record.Many2One("partner_id"); ok {
		t.Fatal("false many2one must not resolve")
	}
}
