package domain

// Niche is a product category used by the keyword classifier.
type Niche struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ImageAnalysis is the output of label detection plus niche classification.
type ImageAnalysis struct {
	Labels     []string `json:"labels"`
	Niche      Niche    `json:"niche"`
	Confidence float64  `json:"confidence"`
}

// PriceEstimate is the heuristic market-price research result for a niche.
type PriceEstimate struct {
	Estimated  float64 `json:"estimated"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Currency   string  `json:"currency"`
	Confidence string  `json:"confidence"`
}

// ListingCopy is the generated marketplace copy for a product.
type ListingCopy struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	BulletPoints []string `json:"bullet_points"`
	Tags         []string `json:"tags"`
}

// Listing combines every pipeline output into one marketplace-ready record.
type Listing struct {
	ID       string        `json:"id"`
	Analysis ImageAnalysis `json:"analysis"`
	Price    PriceEstimate `json:"price"`
	Copy     ListingCopy   `json:"copy"`
	Assets   *AssetBundle  `json:"assets,omitempty"`
}
