package validate

import (
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/sells-group/place-resolver/internal/normalize"
)

// countryAliases covers common names that differ from the CLDR English
// display names.
var countryAliases = map[string]string{
	"usa":                      "US",
	"america":                  "US",
	"united states of america": "US",
	"uk":                       "GB",
	"great britain":            "GB",
	"britain":                  "GB",
	"england":                  "GB",
	"scotland":                 "GB",
	"wales":                    "GB",
	"northern ireland":         "GB",
	"holland":                  "NL",
	"the netherlands":          "NL",
	"czech republic":           "CZ",
	"russia":                   "RU",
	"russian federation":       "RU",
	"south korea":              "KR",
	"republic of korea":        "KR",
	"north korea":              "KP",
	"ivory coast":              "CI",
	"cote d ivoire":            "CI",
	"vietnam":                  "VN",
	"viet nam":                 "VN",
	"laos":                     "LA",
	"iran":                     "IR",
	"syria":                    "SY",
	"bolivia":                  "BO",
	"venezuela":                "VE",
	"tanzania":                 "TZ",
	"macedonia":                "MK",
	"burma":                    "MM",
	"turkey":                   "TR",
	"turkiye":                  "TR",
	"swaziland":                "SZ",
	"cape verde":               "CV",
	"vatican":                  "VA",
	"vatican city":             "VA",
}

// nameDictionaries lists the display languages whose country names are
// indexed. English comes first so its names win any collision.
var nameDictionaries = []*display.Dictionary{
	display.English,
	display.German,
	display.French,
	display.Spanish,
	display.Italian,
	display.Portuguese,
	display.Dutch,
	display.Swedish,
	display.Danish,
	display.Norwegian,
	display.Finnish,
	display.Polish,
}

var countryNames = sync.OnceValue(func() map[string]string {
	index := make(map[string]string, 2000)
	for alias, code := range countryAliases {
		index[alias] = code
	}
	for _, dict := range nameDictionaries {
		names := dict.Regions()
		for a := 'A'; a <= 'Z'; a++ {
			for b := 'A'; b <= 'Z'; b++ {
				r, err := language.ParseRegion(string([]rune{a, b}))
				// Deprecated codes (UK, FX, ZR) share names with their
				// replacements and must not shadow them.
				if err != nil || !r.IsCountry() || r.Canonicalize() != r {
					continue
				}
				name := normalize.Fold(names.Name(r))
				if name == "" {
					continue
				}
				if _, taken := index[name]; !taken {
					index[name] = r.String()
				}
			}
		}
	}
	return index
})

// NormalizeCountry maps a country name or ISO 3166 code ("Norway", "Norge",
// "NO", "NOR", "578") to its upper-case alpha-2 code. Deprecated codes map to
// their replacement ("UK" to "GB"). Unknown input yields "".
func NormalizeCountry(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if code, ok := countryNames()[normalize.Fold(s)]; ok {
		return code
	}
	if len(s) == 2 || len(s) == 3 {
		if r, err := language.ParseRegion(s); err == nil && r.IsCountry() {
			return r.Canonicalize().String()
		}
	}
	return ""
}
