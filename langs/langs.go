// Package langs maps human-readable language names to language codes.
package langs

import (
	"slices"
	"strings"

	"golang.org/x/text/language"
)

// DefaultFallback is the code returned by CodeFor when a name is unknown.
const DefaultFallback = "es"

// Entry is a single catalog language.
type Entry struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// builtin is the catalog shipped with the application.
// Names are the native spelling shown in the language selectors.
var builtin = []Entry{
	{"es", "Español"},
	{"en", "English"},
	{"fr", "Français"},
	{"de", "Deutsch"},
	{"it", "Italiano"},
	{"pt", "Português"},
	{"ru", "Русский"},
	{"ja", "日本語"},
	{"ko", "한국어"},
	{"zh-cn", "简体中文"},
	{"zh-tw", "繁體中文"},
	{"ar", "العربية"},
	{"hi", "हिन्दी"},
	{"nl", "Nederlands"},
	{"sv", "Svenska"},
	{"da", "Dansk"},
	{"no", "Norsk"},
	{"fi", "Suomi"},
	{"pl", "Polski"},
	{"tr", "Türkçe"},
	{"he", "עברית"},
	{"th", "ไทย"},
	{"vi", "Tiếng Việt"},
	{"cs", "Čeština"},
	{"el", "Ελληνικά"},
	{"hu", "Magyar"},
	{"ro", "Română"},
	{"uk", "Українська"},
	{"id", "Bahasa Indonesia"},
	{"ca", "Català"},
}

// Catalog is an immutable lookup table between codes and display names.
// It is safe for concurrent use.
type Catalog struct {
	fallback string
	entries  []Entry
	byCode   map[string]string
	byName   map[string]string
}

// New returns the builtin catalog. An empty fallback selects DefaultFallback.
func New(fallback string) *Catalog {
	return NewFromEntries(builtin, fallback)
}

// NewFromEntries builds a catalog from entries. Later entries repeating a
// code or a display name are ignored.
func NewFromEntries(entries []Entry, fallback string) *Catalog {
	if fallback == "" {
		fallback = DefaultFallback
	}

	c := &Catalog{
		fallback: fallback,
		entries:  make([]Entry, 0, len(entries)),
		byCode:   make(map[string]string, len(entries)),
		byName:   make(map[string]string, len(entries)),
	}
	for _, e := range entries {
		// CodeFor and NameFor stay inverse.
		if _, dup := c.byCode[e.Code]; dup {
			continue
		}
		if _, dup := c.byName[e.Name]; dup {
			continue
		}
		c.entries = append(c.entries, e)
		c.byCode[e.Code] = e.Name
		c.byName[e.Name] = e.Code
	}

	slices.SortFunc(c.entries, func(a, b Entry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return c
}

// CodeFor returns the code for a display name, or the fallback code.
func (c *Catalog) CodeFor(name string) string {
	if code, ok := c.byName[name]; ok {
		return code
	}
	return c.fallback
}

// NameFor returns the display name for a code.
func (c *Catalog) NameFor(code string) (string, bool) {
	name, ok := c.byCode[code]
	return name, ok
}

// Valid reports whether code is part of the catalog.
func (c *Catalog) Valid(code string) bool {
	_, ok := c.byCode[code]
	return ok
}

// Fallback returns the code used for unknown names.
func (c *Catalog) Fallback() string {
	return c.fallback
}

// Entries returns all entries sorted by display name.
func (c *Catalog) Entries() []Entry {
	return slices.Clone(c.entries)
}

// Codes returns all catalog codes in display-name order.
func (c *Catalog) Codes() []string {
	codes := make([]string, len(c.entries))
	for i, e := range c.entries {
		codes[i] = e.Code
	}
	return codes
}

// ISOBase reduces a code such as "zh-cn" to its ISO 639-1 base ("zh").
// Speech engines accept only base codes.
func ISOBase(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || code == "auto" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToLower(code)
	}
	base, _ := tag.Base()
	return base.String()
}
