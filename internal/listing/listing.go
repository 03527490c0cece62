// Package listing assembles the pipeline outputs into a marketplace-ready
// record and exports per-platform payloads.
package listing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/storage"
)

// Exporter builds listings and persists their export files.
type Exporter struct {
	store  *storage.FileStore
	logger zerolog.Logger
}

// New builds an Exporter writing through store.
func New(store *storage.FileStore, logger zerolog.Logger) *Exporter {
	return &Exporter{store: store, logger: logger}
}

// ebayExport mirrors eBay's fixed-price listing fields.
type ebayExport struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Price       float64     `json:"price"`
	Condition   string      `json:"condition"`
	ListingType string      `json:"listing_type"`
	Media       exportMedia `json:"media"`
}

type amazonExport struct {
	ProductName  string      `json:"product_name"`
	Description  string      `json:"description"`
	BulletPoints []string    `json:"bullet_points"`
	Keywords     []string    `json:"keywords"`
	Price        float64     `json:"price"`
	Media        exportMedia `json:"media"`
}

// mercadoLivreExport keeps the platform's Portuguese field names.
type mercadoLivreExport struct {
	Titulo    string      `json:"titulo"`
	Descricao string      `json:"descricao"`
	Categoria string      `json:"categoria"`
	Preco     float64     `json:"preco"`
	Moeda     string      `json:"moeda"`
	Midia     exportMedia `json:"midia"`
}

type exportMedia struct {
	Model  string   `json:"3d_model,omitempty"`
	Video  string   `json:"video,omitempty"`
	Images []string `json:"images"`
}

// Exports groups the per-marketplace payloads.
type Exports struct {
	EBay         ebayExport         `json:"ebay"`
	Amazon       amazonExport       `json:"amazon"`
	MercadoLivre mercadoLivreExport `json:"mercado_livre"`
}

// Record is the job-scoped persistence shape: the assembled listing plus the
// marketplace payloads and the storage key of the export file. The worker
// stores one per succeeded job; the API returns it verbatim and the feedback
// endpoint reads the analysis labels back out of it.
type Record struct {
	Listing   *domain.Listing `json:"listing"`
	Exports   *Exports        `json:"exports,omitempty"`
	ExportKey string          `json:"export_key,omitempty"`
}

type exportFile struct {
	ListingID string          `json:"listing_id"`
	Listing   *domain.Listing `json:"listing"`
	Exports   Exports         `json:"exports"`
}

// Assemble combines the stage outputs into a Listing with a fresh ID.
func Assemble(analysis *domain.ImageAnalysis, price domain.PriceEstimate, copyOut domain.ListingCopy, assets *domain.AssetBundle) *domain.Listing {
	return &domain.Listing{
		ID:       uuid.NewString(),
		Analysis: *analysis,
		Price:    price,
		Copy:     copyOut,
		Assets:   assets,
	}
}

// Export writes the marketplace payload file for l and returns its storage
// key alongside the payloads.
func (e *Exporter) Export(ctx context.Context, l *domain.Listing) (string, *Exports, error) {
	exports := buildExports(l)
	payload, err := json.MarshalIndent(exportFile{
		ListingID: l.ID,
		Listing:   l,
		Exports:   *exports,
	}, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("listing: marshal export: %w", err)
	}

	key, err := e.store.Write(ctx, "exports/listing_"+l.ID+".json", payload)
	if err != nil {
		return "", nil, fmt.Errorf("listing: persist export: %w", err)
	}

	e.logger.Info().
		Str("listing_id", l.ID).
		Str("key", key).
		Msg("listing: export written")
	return key, exports, nil
}

func buildExports(l *domain.Listing) *Exports {
	images := []string{}
	var modelPath, videoPath string
	if l.Assets != nil {
		images = append(images, l.Assets.PreviewRenders...)
		modelPath = l.Assets.ModelPath
		videoPath = l.Assets.VideoPath
	}

	return &Exports{
		EBay: ebayExport{
			Title:       l.Copy.Title,
			Description: l.Copy.Description,
			Category:    l.Analysis.Niche.Name,
			Price:       l.Price.Estimated,
			Condition:   "New",
			ListingType: "FixedPrice",
			Media:       exportMedia{Video: videoPath, Images: images},
		},
		Amazon: amazonExport{
			ProductName:  l.Copy.Title,
			Description:  l.Copy.Description,
			BulletPoints: l.Copy.BulletPoints,
			Keywords:     l.Copy.Tags,
			Price:        l.Price.Estimated,
			// Amazon accepts the GLB directly.
			Media: exportMedia{Model: modelPath, Video: videoPath, Images: images},
		},
		MercadoLivre: mercadoLivreExport{
			Titulo:    l.Copy.Title,
			Descricao: l.Copy.Description,
			Categoria: l.Analysis.Niche.Name,
			Preco:     l.Price.Estimated,
			Moeda:     l.Price.Currency,
			Midia:     exportMedia{Video: videoPath, Images: images},
		},
	}
}
