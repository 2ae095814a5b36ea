package network

import (
	"context"
	"net/http"
	"net/netip"
	"strings"

	"github.com/nao1215/linkforensics/internal/config"
	"github.com/nao1215/linkforensics/internal/provider"
)

// RequestProviderName is the built-in identity provider that accepts the
// client address seen by the HTTP server.
const RequestProviderName = "request"

// LookupRequest is the input of identity and enrichment chains.
type LookupRequest struct {
	// ClientIP is the address to look up. Empty means "look up the caller",
	// which only self-lookup providers can serve.
	ClientIP string
}

// IPInfo is what a lookup provider reports about an address.
type IPInfo struct {
	IP       string `json:"ip"`
	ISP      string `json:"isp,omitempty"`
	ASN      string `json:"asn,omitempty"`
	Country  string `json:"country,omitempty"`
	Timezone string `json:"timezone,omitempty"`

	// Proxy is set when the provider itself flags the address as a proxy,
	// VPN or hosting network.
	Proxy bool `json:"proxy,omitempty"`
}

// merge fills empty fields of i from other.
func (i IPInfo) merge(other IPInfo) IPInfo {
	if i.ISP == "" {
		i.ISP = other.ISP
	}
	if i.ASN == "" {
		i.ASN = other.ASN
	}
	if i.Country == "" {
		i.Country = other.Country
	}
	if i.Timezone == "" {
		i.Timezone = other.Timezone
	}
	i.Proxy = i.Proxy || other.Proxy
	return i
}

// NewLookupChain builds a chain over the enabled providers in cfgs.
//
// A provider whose URL contains {ip} looks up req.ClientIP and is eligible
// only when it is set. A provider without {ip} reports the caller's own
// address and is eligible only when req.ClientIP is empty.
func NewLookupChain(name string, client *http.Client, cfgs []config.ProviderConfig, opts ...provider.ChainOption) *provider.Chain[LookupRequest, IPInfo] {
	chain := provider.NewChain(name, lookupProviders(client, cfgs), opts...)
	return chain.Accept(validIPInfo)
}

// NewIdentityChain builds the public IP chain. It is NewLookupChain followed
// by the built-in request provider, so a server that knows the client address
// still records it when every lookup service is down.
func NewIdentityChain(client *http.Client, cfgs []config.ProviderConfig, opts ...provider.ChainOption) *provider.Chain[LookupRequest, IPInfo] {
	providers := append(lookupProviders(client, cfgs), requestProvider())
	chain := provider.NewChain("identity", providers, opts...)
	return chain.Accept(validIPInfo)
}

// CacheKey is the cache key of a lookup request. Self lookups are not cached
// because the caller's address can change between captures.
func CacheKey(req LookupRequest) string {
	return req.ClientIP
}

func lookupProviders(client *http.Client, cfgs []config.ProviderConfig) []provider.Provider[LookupRequest, IPInfo] {
	enabled := config.Enabled(cfgs)
	providers := make([]provider.Provider[LookupRequest, IPInfo], 0, len(enabled))
	for _, pc := range enabled {
		needsIP := provider.HasPlaceholder(pc.URL, "ip")
		headers := provider.AuthHeaders(pc.Headers, pc.Username, pc.Password)
		providers = append(providers, provider.Provider[LookupRequest, IPInfo]{
			Name: pc.Name,
			Eligible: func(req LookupRequest) bool {
				return needsIP == (req.ClientIP != "")
			},
			Lookup: func(ctx context.Context, req LookupRequest) (IPInfo, error) {
				u := provider.ExpandURL(pc.URL, map[string]string{"ip": req.ClientIP, "key": pc.Key})
				var doc provider.Document
				if err := provider.GetJSON(ctx, client, u, headers, &doc); err != nil {
					return IPInfo{}, err
				}
				info := DecodeIPInfo(doc)
				if needsIP && info.IP == "" {
					info.IP = req.ClientIP
				}
				return info, nil
			},
		})
	}
	return providers
}

func requestProvider() provider.Provider[LookupRequest, IPInfo] {
	return provider.Provider[LookupRequest, IPInfo]{
		Name: RequestProviderName,
		Eligible: func(req LookupRequest) bool {
			_, err := netip.ParseAddr(req.ClientIP)
			return err == nil
		},
		Lookup: func(_ context.Context, req LookupRequest) (IPInfo, error) {
			return IPInfo{IP: req.ClientIP}, nil
		},
	}
}

func validIPInfo(info IPInfo) bool {
	_, err := netip.ParseAddr(info.IP)
	return err == nil
}

// DecodeIPInfo reads an IPInfo from a provider answer, accepting the field
// names used by common lookup services.
func DecodeIPInfo(doc provider.Document) IPInfo {
	info := IPInfo{
		IP:       strings.TrimSpace(doc.String("ip", "query", "ipAddress", "ip_address")),
		Country:  strings.ToUpper(doc.String("country_code", "countryCode", "country")),
		Timezone: doc.String("timezone", "time_zone", "timezone.id", "time_zone.name"),
		Proxy: doc.Bool("proxy", "hosting", "security.vpn", "security.proxy",
			"privacy.vpn", "privacy.proxy", "privacy.hosting"),
	}
	if len(info.Country) != 2 {
		info.Country = ""
	}

	org := doc.String("org", "as", "connection.org")
	info.ASN = normalizeASN(doc.String("asn", "connection.asn", "asn.asn"))
	if info.ASN == "" {
		info.ASN = asnPrefix(org)
	}

	info.ISP = doc.String("isp", "organization", "asn_organization", "connection.isp")
	if info.ISP == "" {
		info.ISP = stripASN(org)
	}
	return info
}

// normalizeASN turns "3352", "as3352" or "AS3352" into "AS3352".
func normalizeASN(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "AS") {
		s = "AS" + s
	}
	if len(s) == 2 || strings.Trim(s[2:], "0123456789") != "" {
		return ""
	}
	return s
}

// asnPrefix extracts "AS3352" from an organization like "AS3352 Telefonica".
func asnPrefix(org string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(org), " ")
	if !strings.HasPrefix(strings.ToUpper(first), "AS") {
		return ""
	}
	return normalizeASN(first)
}

// stripASN removes a leading ASN from an organization name.
func stripASN(org string) string {
	org = strings.TrimSpace(org)
	if asnPrefix(org) == "" {
		return org
	}
	_, rest, _ := strings.Cut(org, " ")
	return strings.TrimSpace(rest)
}
