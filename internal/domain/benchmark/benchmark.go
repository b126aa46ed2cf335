// Package benchmark resolves the comparison index for a recommendation from
// the sector it was filed under.
package benchmark

import (
	"maps"
	"strings"
)

// DefaultSymbol is the broad-market index used when a sector is unknown.
const DefaultSymbol = "SPY"

// Table is an immutable sector to benchmark-symbol lookup. Sector names are
// matched case-insensitively.
type Table struct {
	bySector map[string]string
	fallback string
}

// DefaultSectors maps GICS sector names to their SPDR sector ETFs.
func DefaultSectors() map[string]string {
	return map[string]string{
		"Technology":             "XLK",
		"Information Technology": "XLK",
		"Financials":             "XLF",
		"Health Care":            "XLV",
		"Healthcare":             "XLV",
		"Energy":                 "XLE",
		"Consumer Discretionary": "XLY",
		"Consumer Staples":       "XLP",
		"Industrials":            "XLI",
		"Materials":              "XLB",
		"Utilities":              "XLU",
		"Real Estate":            "XLRE",
		"Communication Services": "XLC",
	}
}

// NewTable builds a table from sectors. An empty fallback means DefaultSymbol.
func NewTable(sectors map[string]string, fallback string) Table {
	t := Table{
		bySector: make(map[string]string, len(sectors)),
		fallback: normalizeSymbol(fallback),
	}
	if t.fallback == "" {
		t.fallback = DefaultSymbol
	}
	for sector, symbol := range sectors {
		key := normalizeSector(sector)
		sym := normalizeSymbol(symbol)
		if key == "" || sym == "" {
			continue
		}
		t.bySector[key] = sym
	}
	return t
}

// DefaultTable returns the built-in table with SPY as the fallback.
func DefaultTable() Table {
	return NewTable(DefaultSectors(), DefaultSymbol)
}

// Resolve returns the benchmark for sector, or the fallback symbol.
func (t Table) Resolve(sector string) string {
	if sym, ok := t.bySector[normalizeSector(sector)]; ok {
		return sym
	}
	if t.fallback == "" {
		return DefaultSymbol
	}
	return t.fallback
}

// Fallback returns the broad-market symbol.
func (t Table) Fallback() string {
	if t.fallback == "" {
		return DefaultSymbol
	}
	return t.fallback
}

// Sectors returns a copy of the normalized sector map.
func (t Table) Sectors() map[string]string {
	return maps.Clone(t.bySector)
}

func normalizeSector(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
