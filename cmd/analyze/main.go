// Command analyze prints quick, human-readable statistics about the menus in
// a directory: item and variant counts, price spread, and lines that are
// likely mistakes such as free items or variants priced below the base item.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/wricardo/groupcart/group/catalog"
)

// MenuStats summarizes one menu.
type MenuStats struct {
	Name          string
	Items         int
	Variants      int
	MinCents      int64
	MaxCents      int64
	MedianCents   int64
	MissingImages int
	Warnings      []string
}

func main() {
	dir := "menus"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	files, err := catalog.MenuFiles(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing menus: %v\n", err)
		os.Exit(1)
	}

	for _, f := range files {
		fmt.Printf("\n=== Analyzing %s ===\n", filepath.Base(f))
		if err := analyzeMenu(os.Stdout, f); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

func analyzeMenu(w io.Writer, path string) error {
	menu, err := catalog.ReadMenu(path)
	if err != nil {
		return err
	}

	stats := computeStats(menu)
	fmt.Fprintf(w, "Name: %s\n", stats.Name)
	fmt.Fprintf(w, "Items: %d (variants: %d)\n", stats.Items, stats.Variants)
	if stats.Items > 0 {
		fmt.Fprintf(w, "Prices: %s min, %s median, %s max\n",
			cents(stats.MinCents), cents(stats.MedianCents), cents(stats.MaxCents))
	}
	fmt.Fprintf(w, "Items without image: %d\n", stats.MissingImages)

	if len(stats.Warnings) > 0 {
		fmt.Fprintf(w, "⚠️  %d warning(s):\n", len(stats.Warnings))
		for _, msg := range stats.Warnings {
			fmt.Fprintf(w, "   - %s\n", msg)
		}
	}
	return nil
}

func computeStats(menu *catalog.Menu) MenuStats {
	stats := MenuStats{Name: menu.Name, Items: len(menu.Items)}

	prices := make([]int64, 0, len(menu.Items))
	for _, it := range menu.Items {
		prices = append(prices, it.PriceCents)
		stats.Variants += len(it.Variants)
		if it.ImageURL == "" {
			stats.MissingImages++
		}
		if it.PriceCents == 0 {
			stats.Warnings = append(stats.Warnings, fmt.Sprintf("%s is free", it.Ref))
		}
		for _, v := range it.Variants {
			if v.PriceCents < it.PriceCents {
				stats.Warnings = append(stats.Warnings,
					fmt.Sprintf("%s/%s costs less than the base item", it.Ref, v.Ref))
			}
		}
	}

	if len(prices) == 0 {
		return stats
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	stats.MinCents = prices[0]
	stats.MaxCents = prices[len(prices)-1]
	stats.MedianCents = prices[len(prices)/2]
	return stats
}

func cents(c int64) string {
	return fmt.Sprintf("%d.%02d", c/100, c%100)
}
