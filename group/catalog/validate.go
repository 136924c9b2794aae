package catalog

import (
	"fmt"
	"path/filepath"
)

// ValidationResult captures the outcome of validating one menu file. When
// Valid is true, Messages holds a short summary; otherwise it lists problems.
type ValidationResult struct {
	File     string
	Valid    bool
	Messages []string
}

// ValidateMenu returns the problems found in menu, or nil.
func ValidateMenu(menu *Menu) []string {
	var problems []string
	if menu.Name == "" {
		problems = append(problems, "name is required")
	}
	if len(menu.Items) == 0 {
		problems = append(problems, "menu has no items")
	}

	seen := make(map[string]bool, len(menu.Items))
	for i, it := range menu.Items {
		where := fmt.Sprintf("item %d", i+1)
		if it.Ref != "" {
			where = fmt.Sprintf("item %q", it.Ref)
		}
		switch {
		case it.Ref == "":
			problems = append(problems, where+": ref is required")
		case seen[it.Ref]:
			problems = append(problems, where+": duplicate ref")
		}
		seen[it.Ref] = true

		if it.Name == "" {
			problems = append(problems, where+": name is required")
		}
		if it.PriceCents < 0 {
			problems = append(problems, fmt.Sprintf("%s: price_cents must not be negative, got %d", where, it.PriceCents))
		}

		variants := make(map[string]bool, len(it.Variants))
		for _, v := range it.Variants {
			if v.Ref == "" {
				problems = append(problems, where+": variant without ref")
				continue
			}
			if variants[v.Ref] {
				problems = append(problems, fmt.Sprintf("%s: duplicate variant %q", where, v.Ref))
			}
			variants[v.Ref] = true
			if v.PriceCents < 0 {
				problems = append(problems, fmt.Sprintf("%s: variant %q has negative price", where, v.Ref))
			}
		}
	}
	return problems
}

// ValidateFile reads and validates a single menu file.
func ValidateFile(path string) ValidationResult {
	result := ValidationResult{File: filepath.Base(path), Valid: true}

	menu, err := ReadMenu(path)
	if err != nil {
		result.Valid = false
		result.Messages = append(result.Messages, err.Error())
		return result
	}
	if problems := ValidateMenu(menu); len(problems) > 0 {
		result.Valid = false
		result.Messages = problems
		return result
	}

	variants := 0
	for _, it := range menu.Items {
		variants += len(it.Variants)
	}
	result.Messages = append(result.Messages,
		fmt.Sprintf("Name: %s", menu.Name),
		fmt.Sprintf("Items: %d", len(menu.Items)),
		fmt.Sprintf("Variants: %d", variants),
	)
	return result
}

// ValidateDir validates every menu file in dir.
func ValidateDir(dir string) ([]ValidationResult, error) {
	files, err := MenuFiles(dir)
	if err != nil {
		return nil, err
	}
	results := make([]ValidationResult, 0, len(files))
	for _, f := range files {
		results = append(results, ValidateFile(f))
	}
	return results, nil
}
