package location

import (
	"context"
	"net/http"

	"github.com/nao1215/linkforensics/internal/config"
	"github.com/nao1215/linkforensics/internal/provider"
)

// DefaultIPAccuracy is the radius assumed for an IP geolocation provider
// that has no configured accuracy.
const DefaultIPAccuracy = 5000

// IPRequest is the input of the IP geolocation chain.
type IPRequest struct {
	// IP is the address to locate. Empty means the caller's own address,
	// which only self-lookup providers can serve.
	IP string
}

// IPCacheKey caches lookups of explicit addresses only.
func IPCacheKey(req IPRequest) string {
	return req.IP
}

// NewIPChain builds the IP geolocation chain. The first provider that
// answers wins; its configured accuracy is the radius of the answer.
// The {ip} placeholder rule is the same as for identity lookups.
func NewIPChain(client *http.Client, cfgs []config.ProviderConfig, opts ...provider.ChainOption) *provider.Chain[IPRequest, Fix] {
	enabled := config.Enabled(cfgs)
	providers := make([]provider.Provider[IPRequest, Fix], 0, len(enabled))
	for _, pc := range enabled {
		needsIP := provider.HasPlaceholder(pc.URL, "ip")
		headers := provider.AuthHeaders(pc.Headers, pc.Username, pc.Password)
		accuracy := pc.Accuracy
		if accuracy <= 0 {
			accuracy = DefaultIPAccuracy
		}
		providers = append(providers, provider.Provider[IPRequest, Fix]{
			Name: pc.Name,
			Eligible: func(req IPRequest) bool {
				return needsIP == (req.IP != "")
			},
			Lookup: func(ctx context.Context, req IPRequest) (Fix, error) {
				u := provider.ExpandURL(pc.URL, map[string]string{"ip": req.IP, "key": pc.Key})
				var doc provider.Document
				if err := provider.GetJSON(ctx, client, u, headers, &doc); err != nil {
					return Fix{}, err
				}
				f, ok := decodeFix(doc)
				if !ok {
					return Fix{}, provider.ErrEmptyResponse
				}
				// Services report city-level coordinates; the radius is
				// a property of the service, not of the answer.
				f.Accuracy = accuracy
				return f, nil
			},
		})
	}
	return provider.NewChain("ipgeo", providers, opts...).Accept(validFix)
}
