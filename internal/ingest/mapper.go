package ingest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"tradeledger/internal/models"
)

var (
	codePattern     = regexp.MustCompile(`\d{4}`)
	suffixedPattern = regexp.MustCompile(`^[A-Z0-9^][A-Z0-9\-]*\.[A-Z]{1,4}$`)
)

// Mapper resolves asset names from order files to ticker symbols.
type Mapper struct {
	names         []string // lowercase, longest first
	symbols       map[string]string
	defaultSuffix string
}

// NewMapper creates a mapper from a name -> symbol table. Names match as
// case-insensitive substrings of the asset name; longer names win.
func NewMapper(table map[string]string, defaultSuffix string) *Mapper {
	m := &Mapper{
		symbols:       make(map[string]string, len(table)),
		defaultSuffix: defaultSuffix,
	}
	for name, symbol := range table {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		m.symbols[key] = models.NormalizeSymbol(symbol)
		m.names = append(m.names, key)
	}
	sort.Slice(m.names, func(i, j int) bool {
		if len(m.names[i]) != len(m.names[j]) {
			return len(m.names[i]) > len(m.names[j])
		}
		return m.names[i] < m.names[j]
	})
	if m.defaultSuffix != "" && !strings.HasPrefix(m.defaultSuffix, ".") {
		m.defaultSuffix = "." + m.defaultSuffix
	}
	m.defaultSuffix = strings.ToUpper(m.defaultSuffix)
	return m
}

// Symbol resolves name. Already-suffixed tickers pass through; otherwise
// the name table is consulted, then a 4-digit code gets the default suffix.
func (m *Mapper) Symbol(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("empty asset name")
	}

	if upper := models.NormalizeSymbol(name); suffixedPattern.MatchString(upper) {
		return upper, nil
	}

	lower := strings.ToLower(name)
	for _, key := range m.names {
		if strings.Contains(lower, key) {
			return m.symbols[key], nil
		}
	}

	if code := codePattern.FindString(name); code != "" && m.defaultSuffix != "" {
		return code + m.defaultSuffix, nil
	}

	return "", fmt.Errorf("unrecognized asset name %q", name)
}
