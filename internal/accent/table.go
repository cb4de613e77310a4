// Package accent holds the per-locale accent tables that drive the
// press-and-hold popup, and the keycode-to-base-letter mapping used to
// decide which keys are accent-eligible in the first place.
package accent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/gildo/accentd/internal/evdevcodes"
)

// Table maps a lowercase base letter to its ordered list of accented
// variants. Index 0 is the first variant shown, selected with digit 1.
type Table map[string][]string

// Resolve returns the variant list for base, lowercased first, returning
// the uppercase form of every variant when shift is true. ok is false if
// base is not in the table.
func (t Table) Resolve(base string, shift bool) (variants []string, ok bool) {
	lower := strings.ToLower(base)
	v, found := t[lower]
	if !found {
		return nil, false
	}
	if !shift {
		out := make([]string, len(v))
		copy(out, v)
		return out, true
	}
	out := make([]string, len(v))
	for i, s := range v {
		out[i] = strings.ToUpper(s)
	}
	return out, true
}

// localeFile is the on-disk shape of a locale TOML overlay: a flat map of
// base letter to ordered variant list, e.g. `e = ["è", "é", "ê", "ë"]`.
type localeFile map[string][]string

// builtin holds the five shipped locales, ported from the reference
// implementation's charmap so installations with no overlay files still
// get working accent tables out of the box.
var builtin = map[string]Table{
	"it": {
		"a": {"à", "á", "â", "ã", "ä"},
		"e": {"è", "é", "ê", "ë"},
		"i": {"ì", "í", "î", "ï"},
		"o": {"ò", "ó", "ô", "õ", "ö"},
		"u": {"ù", "ú", "û", "ü"},
		"n": {"ñ"},
		"c": {"ç"},
	},
	"es": {
		"a": {"á", "à", "â", "ä"},
		"e": {"é", "è", "ê", "ë"},
		"i": {"í", "ì", "î", "ï"},
		"o": {"ó", "ò", "ô", "ö"},
		"u": {"ú", "ù", "û", "ü"},
		"n": {"ñ"},
		"y": {"ý", "ÿ"},
	},
	"fr": {
		"a": {"à", "â", "æ", "á", "ä"},
		"e": {"è", "é", "ê", "ë", "æ"},
		"i": {"î", "ï", "í", "ì"},
		"o": {"ô", "œ", "ö", "ò", "ó"},
		"u": {"ù", "û", "ü", "ú"},
		"c": {"ç"},
		"y": {"ÿ"},
	},
	"de": {
		"a": {"ä", "à", "á", "â"},
		"e": {"ë", "è", "é", "ê"},
		"i": {"ï", "ì", "í", "î"},
		"o": {"ö", "ò", "ó", "ô"},
		"u": {"ü", "ù", "ú", "û"},
		"s": {"ß"},
	},
	"pt": {
		"a": {"ã", "á", "à", "â", "ä"},
		"e": {"é", "è", "ê", "ë"},
		"i": {"í", "ì", "î", "ï"},
		"o": {"õ", "ó", "ò", "ô", "ö"},
		"u": {"ú", "ù", "û", "ü"},
		"c": {"ç"},
	},
}

// Builtin returns the built-in table for name, and false if name has no
// built-in locale.
func Builtin(name string) (Table, bool) {
	t, ok := builtin[name]
	return t, ok
}

// baseByKeycode maps the QWERTY physical keys accentd treats as
// accent-eligible to their lowercase base letter. Non-QWERTY layouts will
// see the wrong letter; this is a known, accepted limitation.
var baseByKeycode = map[evdevcodes.Code]string{
	evdevcodes.KeyA: "a",
	46:              "c", // KEY_C
	18:              "e", // KEY_E
	23:              "i", // KEY_I
	49:              "n", // KEY_N
	24:              "o", // KEY_O
	31:              "s", // KEY_S
	22:              "u", // KEY_U
	21:              "y", // KEY_Y
}

// BaseForKeycode returns the lowercase base letter for an accent-eligible
// keycode, and false if the key is not accent-eligible.
func BaseForKeycode(code evdevcodes.Code) (string, bool) {
	b, ok := baseByKeycode[code]
	return b, ok
}

// Registry resolves a locale name to its Table, preferring on-disk overlay
// directories over the built-in maps. Overlay precedence is user directory,
// then system directory, then built-in.
type Registry struct {
	userDir   string
	systemDir string
	cache     map[string]Table
}

// NewRegistry builds a Registry that looks for `<name>.toml` files first
// under userDir, then systemDir.
func NewRegistry(userDir, systemDir string) *Registry {
	return &Registry{
		userDir:   userDir,
		systemDir: systemDir,
		cache:     make(map[string]Table),
	}
}

// Load returns the table for the named locale, or an error if neither an
// overlay file nor a built-in table exists for it. An overlay file that
// fails to decode is skipped, as if it were absent.
func (r *Registry) Load(name string) (Table, error) {
	if t, ok := r.cache[name]; ok {
		return t, nil
	}

	for _, dir := range []string{r.userDir, r.systemDir} {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, name+".toml")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var lf localeFile
		if _, err := toml.Decode(string(data), &lf); err != nil {
			continue
		}
		t := Table(lf)
		r.cache[name] = t
		return t, nil
	}

	if t, ok := builtin[name]; ok {
		r.cache[name] = t
		return t, nil
	}

	return nil, fmt.Errorf("no accent table for locale %q", name)
}

// Names returns the sorted list of locales with a built-in table.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for n := range builtin {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
