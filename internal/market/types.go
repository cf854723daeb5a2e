package market

import "token-trader/internal/domain"

// Raw provider response shapes. These never leave this package.

type trendingResponse struct {
	Coins []struct {
		Item struct {
			ID            string  `json:"id"`
			Name          string  `json:"name"`
			Symbol        string  `json:"symbol"`
			MarketCapRank int     `json:"market_cap_rank"`
			Score         float64 `json:"score"`
			PriceBTC      float64 `json:"price_btc"`
		} `json:"item"`
	} `json:"coins"`
}

type coinDetailResponse struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Symbol     string            `json:"symbol"`
	Platforms  map[string]string `json:"platforms"`
	MarketData *struct {
		CurrentPrice map[string]float64 `json:"current_price"`
		ATH          map[string]float64 `json:"ath"`
		ATL          map[string]float64 `json:"atl"`
		MarketCap    map[string]float64 `json:"market_cap"`
		TotalVolume  map[string]float64 `json:"total_volume"`
	} `json:"market_data"`
	MarketCapRank int `json:"market_cap_rank"`
}

type marketChartResponse struct {
	Prices [][]float64 `json:"prices"`
}

// normalizeSnapshot builds the one normalized MarketSnapshot the rest of the
// pipeline reads. Absent provider fields become nil pointers or zero values
// here, never again downstream.
func normalizeSnapshot(id string, raw *coinDetailResponse) *domain.MarketSnapshot {
	snap := &domain.MarketSnapshot{
		ID:            id,
		Name:          raw.Name,
		Symbol:        raw.Symbol,
		Contracts:     make(map[string]string),
		MarketCapRank: raw.MarketCapRank,
	}

	for platform, address := range raw.Platforms {
		if address != "" {
			snap.Contracts[platform] = address
		}
	}

	if md := raw.MarketData; md != nil {
		snap.CurrentPrice = usdValue(md.CurrentPrice)
		snap.ATH = usdValue(md.ATH)
		snap.ATL = usdValue(md.ATL)
		if v := usdValue(md.TotalVolume); v != nil {
			snap.Volume24h = *v
		}
		if v := usdValue(md.MarketCap); v != nil {
			snap.MarketCap = *v
		}
	}

	return snap
}

// usdValue extracts the USD entry from a per-currency map, nil when absent.
func usdValue(m map[string]float64) *float64 {
	if m == nil {
		return nil
	}
	v, ok := m["usd"]
	if !ok {
		return nil
	}
	return &v
}
