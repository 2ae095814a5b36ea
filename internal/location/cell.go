package location

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/nao1215/linkforensics/internal/capability"
	"github.com/nao1215/linkforensics/internal/config"
	"github.com/nao1215/linkforensics/internal/provider"
)

// CellRequest is the input of the cell locator chain.
type CellRequest struct {
	Tower capability.CellTower
}

// CellAccuracy maps the signal strength of the serving tower to a radius in
// meters. A strong signal means the device is close to the tower.
func CellAccuracy(strength float64) float64 {
	switch {
	case strength > 20:
		return 500
	case strength > 10:
		return 1000
	default:
		return 2000
	}
}

// strongestTower returns the tower with the highest strength.
func strongestTower(towers []capability.CellTower) (capability.CellTower, error) {
	if len(towers) == 0 {
		return capability.CellTower{}, ErrNoCellTower
	}
	best := towers[0]
	for _, t := range towers[1:] {
		if t.Strength > best.Strength {
			best = t
		}
	}
	return best, nil
}

// CellCacheKey identifies a tower.
func CellCacheKey(req CellRequest) string {
	t := req.Tower
	return fmt.Sprintf("%d-%d-%d-%d", t.MCC, t.MNC, t.LAC, t.CellID)
}

// NewCellChain builds the cell locator chain over the enabled providers.
func NewCellChain(client *http.Client, cfgs []config.ProviderConfig, opts ...provider.ChainOption) *provider.Chain[CellRequest, Fix] {
	enabled := config.Enabled(cfgs)
	providers := make([]provider.Provider[CellRequest, Fix], 0, len(enabled))
	for _, pc := range enabled {
		headers := provider.AuthHeaders(pc.Headers, pc.Username, pc.Password)
		providers = append(providers, provider.Provider[CellRequest, Fix]{
			Name: pc.Name,
			Eligible: func(req CellRequest) bool {
				return req.Tower.CellID != 0
			},
			Lookup: func(ctx context.Context, req CellRequest) (Fix, error) {
				t := req.Tower
				u := provider.ExpandURL(pc.URL, map[string]string{
					"key":    pc.Key,
					"mcc":    strconv.Itoa(t.MCC),
					"mnc":    strconv.Itoa(t.MNC),
					"lac":    strconv.Itoa(t.LAC),
					"cellid": strconv.Itoa(t.CellID),
				})
				var doc provider.Document
				if err := provider.GetJSON(ctx, client, u, headers, &doc); err != nil {
					return Fix{}, err
				}
				f, ok := decodeFix(doc)
				if !ok {
					return Fix{}, provider.ErrEmptyResponse
				}
				return f, nil
			},
		})
	}
	return provider.NewChain("cell", providers, opts...).Accept(validFix)
}
