// Package pricing estimates a market price for a classified product. The
// ranges are heuristic per-category tables; the estimate is the midpoint.
package pricing

import "server/internal/domain"

type priceRange struct {
	min, max float64
}

var nicheRanges = map[string]priceRange{
	"Fitness & Wellness":     {15, 150},
	"Pet Supplies":           {10, 80},
	"Home Office":            {30, 300},
	"Beauty & Personal Care": {10, 100},
	"Tech Accessories":       {15, 120},
	"Outdoor & Adventure":    {25, 200},
	"Kitchen & Dining":       {20, 150},
	"Fashion & Apparel":      {20, 200},
	"Gaming":                 {30, 400},
	"Home Decor":             {25, 250},
	"Baby & Kids":            {15, 120},
	"Automotive":             {20, 180},
	"Gardening":              {15, 100},
	"Books & Media":          {10, 50},
	"Art & Crafts":           {10, 80},
}

var defaultRange = priceRange{20, 100}

// Estimate returns the heuristic price for a niche name. Unlisted niches
// (including Unknown) use the default range.
func Estimate(nicheName string) domain.PriceEstimate {
	r, ok := nicheRanges[nicheName]
	if !ok {
		r = defaultRange
	}
	return domain.PriceEstimate{
		Estimated:  (r.min + r.max) / 2,
		Min:        r.min,
		Max:        r.max,
		Currency:   "USD",
		Confidence: "medium",
	}
}
