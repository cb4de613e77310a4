package accent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gildo/accentd/internal/evdevcodes"
)

func TestBuiltinLocalesExist(t *testing.T) {
	for _, name := range []string{"it", "es", "fr", "de", "pt"} {
		table, ok := Builtin(name)
		require.True(t, ok, "locale %s should exist", name)
		assert.NotEmpty(t, table)
	}

	_, ok := Builtin("zz")
	assert.False(t, ok)
}

func TestItalianOrderingMatchesReference(t *testing.T) {
	it, ok := Builtin("it")
	require.True(t, ok)

	assert.Equal(t, []string{"à", "á", "â", "ã", "ä"}, it["a"])
	assert.Equal(t, []string{"è", "é", "ê", "ë"}, it["e"])
	assert.Equal(t, []string{"ñ"}, it["n"])
	assert.Equal(t, []string{"ç"}, it["c"])
}

func TestGermanPrioritizesUmlauts(t *testing.T) {
	de, ok := Builtin("de")
	require.True(t, ok)

	assert.Equal(t, "ä", de["a"][0])
	assert.Equal(t, "ö", de["o"][0])
	assert.Equal(t, "ü", de["u"][0])
	assert.Equal(t, []string{"ß"}, de["s"])
}

func TestResolveShiftUppercases(t *testing.T) {
	it, _ := Builtin("it")

	lower, ok := it.Resolve("e", false)
	require.True(t, ok)
	assert.Equal(t, []string{"è", "é", "ê", "ë"}, lower)

	upper, ok := it.Resolve("E", true)
	require.True(t, ok)
	assert.Equal(t, []string{"È", "É", "Ê", "Ë"}, upper)
}

func TestResolveUnknownBase(t *testing.T) {
	it, _ := Builtin("it")
	_, ok := it.Resolve("z", false)
	assert.False(t, ok)
}

func TestBaseForKeycode(t *testing.T) {
	base, ok := BaseForKeycode(evdevcodes.KeyA)
	require.True(t, ok)
	assert.Equal(t, "a", base)

	_, ok = BaseForKeycode(evdevcodes.KeyEsc)
	assert.False(t, ok)
}

func TestRegistryPrefersUserOverlayOverBuiltin(t *testing.T) {
	userDir := t.TempDir()
	overlay := `e = ["custom1", "custom2"]`
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "it.toml"), []byte(overlay), 0o644))

	reg := NewRegistry(userDir, "")
	table, err := reg.Load("it")
	require.NoError(t, err)
	assert.Equal(t, []string{"custom1", "custom2"}, table["e"])
}

func TestRegistryFallsBackToBuiltin(t *testing.T) {
	reg := NewRegistry(t.TempDir(), t.TempDir())
	table, err := reg.Load("fr")
	require.NoError(t, err)
	assert.Equal(t, []string{"ç"}, table["c"])
}

func TestRegistryUnknownLocale(t *testing.T) {
	reg := NewRegistry("", "")
	_, err := reg.Load("zz")
	assert.Error(t, err)
}
