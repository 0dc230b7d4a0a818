// Command catalogimport tags legacy catalogs with explicit pricing kinds.
//
// It reads default.json and products/*.json from -in, derives heater stone
// and lighting multiplier kinds from option titles, and writes the tagged
// catalogs to -out. Options that already carry a pricing kind are left alone,
// so running it twice yields the same files.
package main

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/quote-engine/internal/catalog"
	"github.com/noah-isme/quote-engine/internal/obs"
)

type productFile struct {
	Product catalog.Product `json:"product"`
	Catalog catalog.Catalog `json:"catalog,omitempty"`
}

func main() {
	var (
		in         = flag.String("in", "./catalog-legacy", "directory holding default.json and products/")
		out        = flag.String("out", "./catalog", "directory to write tagged catalogs to")
		heater     = flag.String("heater-step", "heater", "step id of the heater step")
		lighting   = flag.String("lighting-step", "lighting", "step id of the lighting step")
		descriptor = flag.String("descriptor", "led", "title token of the single-unit lighting option")
		dryRun     = flag.Bool("dry-run", false, "report the tagging without writing files")
	)
	flag.Parse()

	logger := obs.NewLogger("console", envOrDefault("OBS_LOG_LEVEL", "info"))
	rules := catalog.LegacyRules{
		HeaterStepID:    strings.TrimSpace(*heater),
		LightingStepID:  strings.TrimSpace(*lighting),
		DescriptorToken: strings.TrimSpace(*descriptor),
	}

	var def catalog.Catalog
	if err := readJSON(filepath.Join(*in, "default.json"), &def); err != nil {
		logger.Fatal().Err(err).Msg("read default catalog")
	}
	def = catalog.ImportLegacy(def, nil, rules)
	report(logger, "default", def)
	if !*dryRun {
		if err := writeJSON(filepath.Join(*out, "default.json"), def); err != nil {
			logger.Fatal().Err(err).Msg("write default catalog")
		}
	}

	paths, err := filepath.Glob(filepath.Join(*in, "products", "*.json"))
	if err != nil {
		logger.Fatal().Err(err).Msg("list products")
	}
	sort.Strings(paths)
	for _, path := range paths {
		var pf productFile
		if err := readJSON(path, &pf); err != nil {
			logger.Fatal().Err(err).Str("file", path).Msg("read product")
		}
		if pf.Product.ID == "" {
			pf.Product.ID = strings.TrimSuffix(filepath.Base(path), ".json")
		}
		if len(pf.Catalog) > 0 {
			pf.Catalog = catalog.ImportLegacy(pf.Catalog, def, rules)
		}
		report(logger, pf.Product.ID, pf.Catalog)
		if *dryRun {
			continue
		}
		if err := writeJSON(filepath.Join(*out, "products", filepath.Base(path)), pf); err != nil {
			logger.Fatal().Err(err).Str("file", path).Msg("write product")
		}
	}
	logger.Info().Int("products", len(paths)).Bool("dry_run", *dryRun).Msg("catalog import complete")
}

func report(logger zerolog.Logger, name string, c catalog.Catalog) {
	counts := map[catalog.Kind]int{}
	for stepID, step := range c {
		for optID, opt := range step.Options {
			counts[opt.Pricing.Kind]++
			if opt.Pricing.Kind == catalog.KindLightingMultiplier && opt.Pricing.BaseOptionID == "" {
				logger.Warn().Str("catalog", name).Str("step", stepID).Str("option", optID).
					Msg("lighting multiplier without base option, price will be split")
			}
		}
	}
	ev := logger.Info().Str("catalog", name)
	for kind, n := range counts {
		ev = ev.Int(string(kind), n)
	}
	ev.Msg("tagged")
}

func readJSON(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
