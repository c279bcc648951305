package cloudflare

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	cf "github.com/cloudflare/cloudflare-go"
	"github.com/rs/zerolog/log"

	"mockyard/types"
)

// Client handles interactions with Cloudflare API
type Client struct {
	api        *cf.API
	config     types.CloudflareConfig
	domainMap  map[string]types.ProjectDomain // Maps owner/name to domain info
	mu         sync.RWMutex
	serverAddr string // The server's public IP or hostname
}

// NewClient creates a new Cloudflare API client. With the integration disabled no API client
// is built and domains are only computed.
func NewClient(config types.CloudflareConfig, serverAddr string) (*Client, error) {
	c := &Client{
		config:     config,
		domainMap:  make(map[string]types.ProjectDomain),
		serverAddr: serverAddr,
	}
	if !config.Enabled {
		return c, nil
	}

	var opts []cf.Option
	if config.APIBaseURL != "" {
		opts = append(opts, cf.BaseURL(config.APIBaseURL))
	}
	api, err := cf.NewWithAPIToken(config.APIToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudflare API client: %w", err)
	}
	c.api = api
	return c, nil
}

// DomainFor returns the domain a project is published under.
func (c *Client) DomainFor(project types.Project) string {
	return fmt.Sprintf("%s.%s", sanitizeForDNS(project.Name), c.config.BaseDomain)
}

// CreateDomain creates a subdomain for a project
func (c *Client) CreateDomain(ctx context.Context, project types.Project) (*types.ProjectDomain, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := project.Key()
	fullDomain := c.DomainFor(project)
	logger := log.Ctx(ctx).With().Str("project", project.Name).Str("domain", fullDomain).Logger()

	if !c.config.Enabled {
		logger.Info().Msg("cloudflare integration disabled, domain computed but not published")
		domain := types.ProjectDomain{ProjectKey: key, Domain: fullDomain}
		c.domainMap[key] = domain
		return &domain, nil
	}

	recordType := "CNAME"
	if net.ParseIP(c.serverAddr) != nil {
		recordType = "A"
	}
	proxied := c.config.Proxied
	params := cf.CreateDNSRecordParams{
		Type:    recordType,
		Name:    fullDomain,
		Content: c.serverAddr,
		TTL:     1, // automatic
		Proxied: &proxied,
		Comment: "mock endpoint for " + key,
	}

	logger.Info().Str("target", c.serverAddr).Msg("creating DNS record")
	record, err := c.api.CreateDNSRecord(ctx, cf.ZoneIdentifier(c.config.ZoneID), params)
	if err != nil {
		return nil, fmt.Errorf("failed to create DNS record for %s: %w", fullDomain, err)
	}

	domain := types.ProjectDomain{
		ProjectKey: key,
		Domain:     fullDomain,
		DNSRecord: types.CloudflareDNSRecord{
			RecordID: record.ID,
			Name:     fullDomain,
			Content:  c.serverAddr,
			Type:     recordType,
			Proxied:  proxied,
		},
	}
	c.domainMap[key] = domain
	logger.Info().Str("record_id", record.ID).Msg("DNS record created")

	return &domain, nil
}

// DeleteDomain removes a project's DNS records. Records created before a restart are found by
// name.
func (c *Client) DeleteDomain(ctx context.Context, project types.Project) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := project.Key()
	domain, known := c.domainMap[key]
	if !c.config.Enabled {
		delete(c.domainMap, key)
		return nil
	}

	fullDomain := c.DomainFor(project)
	var recordIDs []string
	if known && domain.DNSRecord.RecordID != "" {
		recordIDs = append(recordIDs, domain.DNSRecord.RecordID)
	} else {
		records, _, err := c.api.ListDNSRecords(ctx, cf.ZoneIdentifier(c.config.ZoneID), cf.ListDNSRecordsParams{Name: fullDomain})
		if err != nil {
			return fmt.Errorf("failed to look up DNS records for %s: %w", fullDomain, err)
		}
		for _, r := range records {
			recordIDs = append(recordIDs, r.ID)
		}
	}

	for _, id := range recordIDs {
		log.Ctx(ctx).Info().Str("project", project.Name).Str("domain", fullDomain).Str("record_id", id).Msg("deleting DNS record")
		if err := c.api.DeleteDNSRecord(ctx, cf.ZoneIdentifier(c.config.ZoneID), id); err != nil {
			return fmt.Errorf("failed to delete DNS record %s: %w", id, err)
		}
	}

	delete(c.domainMap, key)
	return nil
}

// GetDomain retrieves domain information for a project
func (c *Client) GetDomain(key string) (types.ProjectDomain, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	domain, exists := c.domainMap[key]
	return domain, exists
}

// GetAllDomains returns all registered domains
func (c *Client) GetAllDomains() []types.ProjectDomain {
	c.mu.RLock()
	defer c.mu.RUnlock()

	domains := make([]types.ProjectDomain, 0, len(c.domainMap))
	for _, domain := range c.domainMap {
		domains = append(domains, domain)
	}
	return domains
}

// sanitizeForDNS removes characters that aren't valid in a DNS label
// and ensures it follows DNS naming conventions
func sanitizeForDNS(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		if r >= 'A' && r <= 'Z' {
			return r + 32
		}
		return '-'
	}, name)

	for strings.Contains(sanitized, "--") {
		sanitized = strings.ReplaceAll(sanitized, "--", "-")
	}

	// A label is at most 63 octets and may not start or end with a hyphen.
	if len(sanitized) > 63 {
		sanitized = sanitized[:63]
	}
	sanitized = strings.Trim(sanitized, "-")

	if sanitized == "" {
		sanitized = "mock"
	}

	return sanitized
}
