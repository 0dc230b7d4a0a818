package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// Registry holds the default catalog together with per-product overrides.
type Registry struct {
	def       Catalog
	overrides map[string]Catalog
	products  map[string]Product
}

// NewRegistry constructs a registry. Passing nil maps is allowed.
func NewRegistry(def Catalog, products []Product, overrides map[string]Catalog) *Registry {
	r := &Registry{
		def:       def,
		overrides: make(map[string]Catalog, len(overrides)),
		products:  make(map[string]Product, len(products)),
	}
	if r.def == nil {
		r.def = Catalog{}
	}
	for id, c := range overrides {
		r.overrides[id] = c
	}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

// Product returns product metadata for id.
func (r *Registry) Product(id string) (Product, error) {
	p, ok := r.products[strings.TrimSpace(id)]
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return p, nil
}

// Catalogs returns the override and default catalogs for a product.
func (r *Registry) Catalogs(productID string) (override, def Catalog) {
	override = r.overrides[productID]
	if override == nil {
		override = Catalog{}
	}
	return override, r.def
}

// ExternalIDs maps option ids to external catalog ids for a product. The
// product's main external id is keyed by the product id.
func (r *Registry) ExternalIDs(productID string) map[string]string {
	out := map[string]string{}
	override, def := r.Catalogs(productID)
	for _, c := range []Catalog{def, override} {
		for _, step := range c {
			for optID, opt := range step.Options {
				if strings.TrimSpace(opt.ExternalID) != "" {
					out[optID] = opt.ExternalID
				}
			}
		}
	}
	if p, ok := r.products[productID]; ok && p.MainExternalID != "" {
		out[p.ID] = p.MainExternalID
	}
	return out
}

type productFile struct {
	Product Product `json:"product"`
	Catalog Catalog `json:"catalog"`
}

// LoadFS reads default.json and products/*.json from fsys. Options without an
// authored pricing kind are tagged once through ImportLegacy.
func LoadFS(fsys fs.FS, rules LegacyRules) (*Registry, error) {
	raw, err := fs.ReadFile(fsys, "default.json")
	if err != nil {
		return nil, fmt.Errorf("read default catalog: %w", err)
	}
	var def Catalog
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("decode default catalog: %w", err)
	}
	def = ImportLegacy(def, nil, rules)

	entries, err := fs.ReadDir(fsys, "products")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("list products: %w", err)
	}
	products := make([]Product, 0, len(entries))
	overrides := make(map[string]Catalog, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join("products", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read product %s: %w", entry.Name(), err)
		}
		var pf productFile
		if err := json.Unmarshal(data, &pf); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", entry.Name(), err)
		}
		if pf.Product.ID == "" {
			pf.Product.ID = strings.TrimSuffix(entry.Name(), ".json")
		}
		products = append(products, pf.Product)
		if len(pf.Catalog) > 0 {
			overrides[pf.Product.ID] = ImportLegacy(pf.Catalog, def, rules)
		}
	}
	return NewRegistry(def, products, overrides), nil
}
