package listing

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/storage"
)

func sampleListing() *domain.Listing {
	return Assemble(
		&domain.ImageAnalysis{
			Labels:     []string{"yoga", "mat"},
			Niche:      domain.Niche{ID: 1, Name: "Fitness & Wellness"},
			Confidence: 0.8,
		},
		domain.PriceEstimate{Estimated: 82.5, Min: 15, Max: 150, Currency: "USD", Confidence: "medium"},
		domain.ListingCopy{
			Title:        "Pro Yoga Mat",
			Description:  "Grippy and thick.",
			BulletPoints: []string{"Non-slip"},
			Tags:         []string{"yoga", "mat"},
		},
		&domain.AssetBundle{
			Status:           domain.BundleStatusCompleted,
			ModelPath:        "/assets/m.glb",
			VideoPath:        "/assets/t.mp4",
			PreviewRenders:   []string{"https://cdn.example.com/r1.png"},
			FormatsGenerated: []string{domain.FormatModel, domain.FormatVideo},
		},
	)
}

func TestAssembleAssignsID(t *testing.T) {
	a := sampleListing()
	b := sampleListing()
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("listing ids not unique: %q vs %q", a.ID, b.ID)
	}
}

func TestExportWritesMarketplacePayloads(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	e := New(store, zerolog.Nop())
	l := sampleListing()

	key, exports, err := e.Export(context.Background(), l)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if key != "exports/listing_"+l.ID+".json" {
		t.Fatalf("key = %q", key)
	}

	if exports.EBay.Condition != "New" || exports.EBay.ListingType != "FixedPrice" {
		t.Fatalf("ebay export = %+v", exports.EBay)
	}
	if exports.Amazon.Media.Model != "/assets/m.glb" {
		t.Fatalf("amazon model = %q", exports.Amazon.Media.Model)
	}
	if exports.EBay.Media.Model != "" {
		t.Fatal("ebay export must not carry the model file")
	}
	if exports.MercadoLivre.Moeda != "USD" || exports.MercadoLivre.Titulo != "Pro Yoga Mat" {
		t.Fatalf("mercado livre export = %+v", exports.MercadoLivre)
	}

	data, err := store.Read(context.Background(), key)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("export file is not json: %v", err)
	}
	for _, field := range []string{"listing_id", "listing", "exports"} {
		if _, ok := decoded[field]; !ok {
			t.Fatalf("export file missing %q", field)
		}
	}
}

func TestExportWithoutAssets(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	e := New(store, zerolog.Nop())
	l := sampleListing()
	l.Assets = nil

	_, exports, err := e.Export(context.Background(), l)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if exports.Amazon.Media.Model != "" || exports.EBay.Media.Video != "" {
		t.Fatalf("media should be empty without assets: %+v", exports)
	}
	if exports.EBay.Media.Images == nil {
		t.Fatal("images should marshal as an empty array, not null")
	}
}
