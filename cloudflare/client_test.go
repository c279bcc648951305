package cloudflare

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"mockyard/types"
)

func TestNewClient(t *testing.T) {
	// Test with Cloudflare disabled
	config := types.CloudflareConfig{
		Enabled:    false,
		APIToken:   "fake-token",
		ZoneID:     "fake-zone",
		BaseDomain: "example.com",
	}

	client, err := NewClient(config, "203.0.113.10")
	if err != nil {
		t.Fatalf("Failed to create client with Cloudflare disabled: %v", err)
	}

	if client.api != nil {
		t.Error("Expected API client to be nil when Cloudflare is disabled")
	}

	// Missing token only matters when the integration is enabled
	config.APIToken = ""
	if _, err := NewClient(config, "203.0.113.10"); err != nil {
		t.Fatalf("Failed to create client with disabled Cloudflare and invalid config: %v", err)
	}

	config.Enabled = true
	if _, err := NewClient(config, "203.0.113.10"); err == nil {
		t.Error("Expected an error for an enabled client without a token")
	}
}

func TestSanitizeForDNS(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// Basic cases
		{"orders", "orders"},
		{"orders-v1", "orders-v1"},

		// Characters allowed in project names but not in labels
		{"orders_v1", "orders-v1"},
		{"orders.v1", "orders-v1"},
		{"orders v1", "orders-v1"},

		// Mixed case
		{"OrdersService", "ordersservice"},
		{"ORDERS_V1", "orders-v1"},

		// Starting/ending with special chars
		{"-orders-", "orders"},
		{"_orders_", "orders"},

		// Runs collapse
		{"orders__v1", "orders-v1"},
		{"orders--v1", "orders-v1"},

		// Label length
		{strings.Repeat("a", 70), strings.Repeat("a", 63)},

		// Nothing usable
		{"", "mock"},
		{"---", "mock"},
		{"___", "mock"},
	}

	for _, test := range tests {
		result := sanitizeForDNS(test.input)
		if result != test.expected {
			t.Errorf("sanitizeForDNS(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestCreateDomain_Disabled(t *testing.T) {
	config := types.CloudflareConfig{
		Enabled:    false,
		BaseDomain: "mocks.example.com",
	}

	client, _ := NewClient(config, "203.0.113.10")
	project := types.Project{Owner: "alice", Name: "orders_v1"}

	domain, err := client.CreateDomain(context.Background(), project)
	if err != nil {
		t.Fatalf("CreateDomain failed with disabled Cloudflare: %v", err)
	}
	if domain == nil {
		t.Fatal("Expected domain to be returned even with Cloudflare disabled")
	}
	if domain.Domain != "orders-v1.mocks.example.com" {
		t.Errorf("Expected domain to be 'orders-v1.mocks.example.com', got %q", domain.Domain)
	}
	if domain.DNSRecord.RecordID != "" {
		t.Errorf("Expected no DNS record, got %q", domain.DNSRecord.RecordID)
	}

	if _, exists := client.GetDomain("alice/orders_v1"); !exists {
		t.Error("Domain was not stored in the client's map")
	}
}

func TestDeleteDomain_Disabled(t *testing.T) {
	config := types.CloudflareConfig{
		Enabled:    false,
		BaseDomain: "mocks.example.com",
	}

	client, _ := NewClient(config, "203.0.113.10")
	project := types.Project{Owner: "alice", Name: "orders"}
	_, _ = client.CreateDomain(context.Background(), project)

	if err := client.DeleteDomain(context.Background(), project); err != nil {
		t.Fatalf("DeleteDomain failed with disabled Cloudflare: %v", err)
	}
	if _, exists := client.GetDomain(project.Key()); exists {
		t.Error("Domain was not removed from the client's map")
	}
}

func TestGetAllDomains(t *testing.T) {
	config := types.CloudflareConfig{
		Enabled:    false,
		BaseDomain: "mocks.example.com",
	}

	client, _ := NewClient(config, "203.0.113.10")
	projects := []types.Project{
		{Owner: "alice", Name: "orders"},
		{Owner: "alice", Name: "billing"},
		{Owner: "bob", Name: "billing-v2"},
	}
	for _, project := range projects {
		_, _ = client.CreateDomain(context.Background(), project)
	}

	domains := client.GetAllDomains()
	if len(domains) != len(projects) {
		t.Errorf("Expected %d domains, got %d", len(projects), len(domains))
	}
}

// fakeZone serves the subset of the Cloudflare v4 DNS API the client uses.
type fakeZone struct {
	mu      sync.Mutex
	records map[string]map[string]any
	nextID  int
	deleted []string
}

func (z *fakeZone) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	z.mu.Lock()
	defer z.mu.Unlock()

	const prefix = "/zones/zone-1/dns_records"
	if !strings.HasPrefix(r.URL.Path, prefix) || r.Header.Get("Authorization") != "Bearer token" {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"errors":[{"code":7003,"message":"no route"}],"messages":[],"result":null}`))
		return
	}

	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, prefix), "/")
	switch {
	case r.Method == http.MethodPost && id == "":
		var rec map[string]any
		_ = json.NewDecoder(r.Body).Decode(&rec)
		z.nextID++
		rec["id"] = "rec-" + strconv.Itoa(z.nextID)
		z.records[rec["id"].(string)] = rec
		writeResult(w, rec, nil)
	case r.Method == http.MethodGet && id == "":
		name := r.URL.Query().Get("name")
		list := []map[string]any{}
		for _, rec := range z.records {
			if name == "" || rec["name"] == name {
				list = append(list, rec)
			}
		}
		writeResult(w, list, map[string]int{"page": 1, "per_page": 100, "count": len(list), "total_count": len(list), "total_pages": 1})
	case r.Method == http.MethodDelete && id != "":
		delete(z.records, id)
		z.deleted = append(z.deleted, id)
		writeResult(w, map[string]string{"id": id}, nil)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeResult(w http.ResponseWriter, result any, info any) {
	body := map[string]any{"success": true, "errors": []any{}, "messages": []any{}, "result": result}
	if info != nil {
		body["result_info"] = info
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func newZoneClient(t *testing.T, serverAddr string) (*Client, *fakeZone) {
	t.Helper()
	zone := &fakeZone{records: map[string]map[string]any{}}
	srv := httptest.NewServer(zone)
	t.Cleanup(srv.Close)

	client, err := NewClient(types.CloudflareConfig{
		Enabled:    true,
		APIToken:   "token",
		ZoneID:     "zone-1",
		BaseDomain: "mocks.example.com",
		Proxied:    true,
		APIBaseURL: srv.URL,
	}, serverAddr)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, zone
}

func TestCreateAndDeleteDomain(t *testing.T) {
	client, zone := newZoneClient(t, "203.0.113.10")
	ctx := context.Background()
	project := types.Project{Owner: "alice", Name: "orders-v1"}

	domain, err := client.CreateDomain(ctx, project)
	if err != nil {
		t.Fatalf("CreateDomain: %v", err)
	}
	if domain.DNSRecord.RecordID != "rec-1" {
		t.Errorf("Expected record rec-1, got %q", domain.DNSRecord.RecordID)
	}
	if domain.DNSRecord.Type != "A" || !domain.DNSRecord.Proxied {
		t.Errorf("Unexpected record %+v", domain.DNSRecord)
	}
	rec := zone.records["rec-1"]
	if rec["name"] != "orders-v1.mocks.example.com" || rec["content"] != "203.0.113.10" {
		t.Errorf("Unexpected record sent to Cloudflare: %v", rec)
	}

	if err := client.DeleteDomain(ctx, project); err != nil {
		t.Fatalf("DeleteDomain: %v", err)
	}
	if len(zone.records) != 0 {
		t.Errorf("Expected zone to be empty, got %v", zone.records)
	}
}

func TestDeleteDomainLooksUpUnknownRecords(t *testing.T) {
	client, zone := newZoneClient(t, "edge.example.net")
	ctx := context.Background()
	project := types.Project{Owner: "alice", Name: "orders"}

	domain, err := client.CreateDomain(ctx, project)
	if err != nil {
		t.Fatalf("CreateDomain: %v", err)
	}
	if domain.DNSRecord.Type != "CNAME" {
		t.Errorf("Expected CNAME for a hostname target, got %q", domain.DNSRecord.Type)
	}

	// A fresh client has no memory of the record, as after a restart.
	fresh, err := NewClient(client.config, "edge.example.net")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := fresh.DeleteDomain(ctx, project); err != nil {
		t.Fatalf("DeleteDomain: %v", err)
	}
	if len(zone.deleted) != 1 || zone.deleted[0] != "rec-1" {
		t.Errorf("Expected rec-1 to be deleted, got %v", zone.deleted)
	}
}
