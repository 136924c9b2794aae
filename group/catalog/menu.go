package catalog

// Menu is one restaurant's menu file.
type Menu struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Currency    string     `json:"currency,omitempty" yaml:"currency,omitempty"`
	Items       []MenuItem `json:"items" yaml:"items"`

	filename string
}

// MenuItem is a product on a menu.
type MenuItem struct {
	Ref        string    `json:"ref" yaml:"ref"`
	Name       string    `json:"name" yaml:"name"`
	ImageURL   string    `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	PriceCents int64     `json:"price_cents" yaml:"price_cents"`
	Variants   []Variant `json:"variants,omitempty" yaml:"variants,omitempty"`
}

// Variant overrides the item price for a size or option.
type Variant struct {
	Ref        string `json:"ref" yaml:"ref"`
	Name       string `json:"name" yaml:"name"`
	PriceCents int64  `json:"price_cents" yaml:"price_cents"`
}

// ProductInfo is the decoration attached to a cart line.
type ProductInfo struct {
	Name        string `json:"name"`
	VariantName string `json:"variant_name,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	PriceCents  int64  `json:"price_cents"`
}

// MenuInfo summarizes a menu for listings.
type MenuInfo struct {
	Filename    string `json:"filename"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ItemCount   int    `json:"item_count"`
}

func (m *Menu) item(ref string) *MenuItem {
	for i := range m.Items {
		if m.Items[i].Ref == ref {
			return &m.Items[i]
		}
	}
	return nil
}

func (it *MenuItem) info(variantRef string) ProductInfo {
	info := ProductInfo{Name: it.Name, ImageURL: it.ImageURL, PriceCents: it.PriceCents}
	for _, v := range it.Variants {
		if v.Ref == variantRef {
			info.VariantName = v.Name
			info.PriceCents = v.PriceCents
			break
		}
	}
	return info
}
