package intake

import (
	"errors"
	"fmt"
	"slices"
)

// LineItem is a purchasable service.
type LineItem struct {
	ID             string `json:"id" koanf:"id" yaml:"id"`
	Name           string `json:"name" koanf:"name" yaml:"name"`
	Duration       string `json:"duration" koanf:"duration" yaml:"duration"`
	UnitPriceCents int64  `json:"unit_price_cents" koanf:"unit_price_cents" yaml:"unit_price_cents"`
	Required       bool   `json:"required" koanf:"required" yaml:"required"`
}

// Catalog is the immutable price list. Exactly one item is required.
type Catalog struct {
	items    []LineItem
	byID     map[string]int
	required int
}

// NewCatalog validates items and builds a catalog.
func NewCatalog(items []LineItem) (*Catalog, error) {
	if len(items) == 0 {
		return nil, errors.New("intake: catalog is empty")
	}
	c := &Catalog{
		items:    slices.Clone(items),
		byID:     make(map[string]int, len(items)),
		required: -1,
	}
	for i, item := range c.items {
		if item.ID == "" {
			return nil, fmt.Errorf("intake: catalog item %d has no id", i)
		}
		if _, dup := c.byID[item.ID]; dup {
			return nil, fmt.Errorf("intake: duplicate catalog id %q", item.ID)
		}
		if item.UnitPriceCents < 0 {
			return nil, fmt.Errorf("intake: catalog item %q has negative price", item.ID)
		}
		if item.Required {
			if c.required >= 0 {
				return nil, fmt.Errorf("intake: catalog has more than one required item (%q, %q)", c.items[c.required].ID, item.ID)
			}
			c.required = i
		}
		c.byID[item.ID] = i
	}
	if c.required < 0 {
		return nil, errors.New("intake: catalog has no required item")
	}
	return c, nil
}

// DefaultCatalog is the built-in coaching price list.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]LineItem{
		{ID: "consultation", Name: "Initial Consultation", Duration: "30 min", UnitPriceCents: 2000, Required: true},
		{ID: "meal-plan", Name: "Custom Meal Plan", Duration: "1 week", UnitPriceCents: 3500},
		{ID: "grocery-list", Name: "Smart Grocery List", Duration: "1 week", UnitPriceCents: 1500},
		{ID: "prep-session", Name: "Guided Prep Session", Duration: "90 min", UnitPriceCents: 6000},
		{ID: "weekly-checkin", Name: "Weekly Check-in", Duration: "15 min", UnitPriceCents: 2500},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// Items returns the catalog entries in display order.
func (c *Catalog) Items() []LineItem {
	return slices.Clone(c.items)
}

// Required returns the mandatory line item.
func (c *Catalog) Required() LineItem {
	return c.items[c.required]
}

// IsRequired reports whether id is the mandatory line item.
func (c *Catalog) IsRequired(id string) bool {
	return c.items[c.required].ID == id
}

// Lookup finds an item by id.
func (c *Catalog) Lookup(id string) (LineItem, bool) {
	i, ok := c.byID[id]
	if !ok {
		return LineItem{}, false
	}
	return c.items[i], true
}

// Lines returns the catalog items present in selected, in catalog order.
// Unknown and repeated ids are ignored.
func (c *Catalog) Lines(selected []string) []LineItem {
	want := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		want[id] = struct{}{}
	}
	var out []LineItem
	for _, item := range c.items {
		if _, ok := want[item.ID]; ok {
			out = append(out, item)
		}
	}
	return out
}

// Total sums unit prices for the selected ids. Ids missing from the catalog
// contribute zero; the empty selection totals zero.
func (c *Catalog) Total(selected []string) int64 {
	var total int64
	for _, item := range c.Lines(selected) {
		total += item.UnitPriceCents
	}
	return total
}

// FormatCents renders cents as dollars, e.g. 5500 -> "$55.00".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
