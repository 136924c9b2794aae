// Package catalog loads restaurant menus used to decorate group-order carts.
//
// Menus live in a directory, one file per restaurant. The file name without
// extension is the restaurant ref. Both JSON (.json) and YAML (.yaml, .yml)
// are accepted:
//
//	id: demo-pizzeria
//	name: Demo Pizzeria
//	items:
//	  - ref: margherita
//	    name: Margherita
//	    price_cents: 1099
//	    variants:
//	      - ref: large
//	        name: Large
//	        price_cents: 1499
//
// The catalog is read-only decoration: it never validates carts and its data
// is never written back into a session.
//
// Usage:
//
//	menus, err := catalog.NewManager("menus")
//	info, ok := menus.Lookup(ctx, "demo-pizzeria", "margherita", "large")
package catalog
