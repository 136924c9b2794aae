package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wricardo/groupcart/group/catalog"
)

func TestComputeStats(t *testing.T) {
	menu := &catalog.Menu{
		Name: "Test Menu",
		Items: []catalog.MenuItem{
			{Ref: "a", Name: "A", PriceCents: 500, ImageURL: "a.jpg"},
			{Ref: "b", Name: "B", PriceCents: 1500, Variants: []catalog.Variant{
				{Ref: "small", Name: "Small", PriceCents: 1200},
				{Ref: "large", Name: "Large", PriceCents: 1800},
			}},
			{Ref: "c", Name: "C", PriceCents: 0},
		},
	}

	stats := computeStats(menu)

	if stats.Items != 3 || stats.Variants != 2 {
		t.Errorf("Expected 3 items and 2 variants, got %d and %d", stats.Items, stats.Variants)
	}
	if stats.MinCents != 0 || stats.MaxCents != 1500 || stats.MedianCents != 500 {
		t.Errorf("Unexpected price spread: %+v", stats)
	}
	if stats.MissingImages != 2 {
		t.Errorf("Expected 2 items without image, got %d", stats.MissingImages)
	}
	if len(stats.Warnings) != 2 {
		t.Fatalf("Expected 2 warnings, got %v", stats.Warnings)
	}
	if !strings.Contains(strings.Join(stats.Warnings, "\n"), "b/small costs less") {
		t.Errorf("Expected cheaper variant warning, got %v", stats.Warnings)
	}
}

func TestComputeStats_Empty(t *testing.T) {
	stats := computeStats(&catalog.Menu{Name: "Empty"})
	if stats.Items != 0 || stats.MaxCents != 0 {
		t.Errorf("Expected zero stats, got %+v", stats)
	}
}

func TestCents(t *testing.T) {
	tests := map[int64]string{0: "0.00", 7: "0.07", 1099: "10.99"}
	for in, want := range tests {
		if got := cents(in); got != want {
			t.Errorf("cents(%d) = %s, want %s", in, got, want)
		}
	}
}

func TestAnalyzeMenu_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.yaml")
	content := `name: Corner Shop
items:
  - ref: bread
    name: Bread
    price_cents: 250
  - ref: milk
    name: Milk
    price_cents: 199
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write menu: %v", err)
	}

	var out bytes.Buffer
	if err := analyzeMenu(&out, path); err != nil {
		t.Fatalf("analyzeMenu failed: %v", err)
	}

	for _, want := range []string{"Name: Corner Shop", "Items: 2 (variants: 0)", "1.99 min", "2.50 max"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected %q in output, got:\n%s", want, out.String())
		}
	}
}

func TestAnalyzeMenu_InvalidFile(t *testing.T) {
	var out bytes.Buffer
	if err := analyzeMenu(&out, "/non/existent/menu.yaml"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestAnalyzeMenu_ShippedMenus(t *testing.T) {
	files, err := catalog.MenuFiles(filepath.Join("..", "..", "menus"))
	if err != nil {
		t.Skipf("menus directory not available: %v", err)
	}
	for _, f := range files {
		var out bytes.Buffer
		if err := analyzeMenu(&out, f); err != nil {
			t.Errorf("%s: %v", filepath.Base(f), err)
		}
	}
}
