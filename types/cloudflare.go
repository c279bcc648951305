package types

// CloudflareConfig holds configuration for publishing mock endpoints through Cloudflare DNS
type CloudflareConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`             // Whether records are really created; otherwise domains are only computed
	APIToken     string `yaml:"api_token" json:"-"`                 // Cloudflare API token for authentication
	ZoneID       string `yaml:"zone_id" json:"zone_id"`             // Cloudflare Zone ID
	BaseDomain   string `yaml:"base_domain" json:"base_domain"`     // Base domain for subdomains, e.g. "mocks.example.com"
	AutoGenerate bool   `yaml:"auto_generate" json:"auto_generate"` // Whether started projects get a subdomain automatically
	Proxied      bool   `yaml:"proxied" json:"proxied"`             // Route traffic through Cloudflare's proxy
	APIBaseURL   string `yaml:"api_base_url" json:"-"`              // Override for the Cloudflare API endpoint
}

// CloudflareDNSRecord represents a DNS record created for a project
type CloudflareDNSRecord struct {
	RecordID string `json:"record_id"` // Cloudflare Record ID
	Name     string `json:"name"`      // The full domain name, e.g. "orders-v1.mocks.example.com"
	Content  string `json:"content"`   // IP address or CNAME value
	Type     string `json:"type"`      // "A" or "CNAME"
	Proxied  bool   `json:"proxied"`   // Whether the record is proxied through Cloudflare
}

// ProjectDomain links a project's mock endpoint to its published domain.
type ProjectDomain struct {
	ProjectKey string              `json:"project_key"`          // owner/name
	Domain     string              `json:"domain"`               // The assigned domain
	DNSRecord  CloudflareDNSRecord `json:"dns_record,omitempty"` // DNS record details
}
