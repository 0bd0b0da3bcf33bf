package scripts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedOnly(t *testing.T) {
	t.Parallel()

	lib, err := Load(Config{})
	require.NoError(t, err)
	assert.NotEmpty(t, lib.Stealth())
	_, ok := lib.Readability()
	assert.False(t, ok)
	assert.False(t, lib.HasUserScript("anything.js"))
}

func TestLoadDirectories(t *testing.T) {
	t.Parallel()

	stealthDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(stealthDir, "zz.js"), []byte("window.zz = 1;"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(stealthDir, "notes.txt"), []byte("skip"), 0o600))

	userDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "click.js"), []byte("document.body.click();"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(userDir, "sub"), 0o750))

	readability := filepath.Join(t.TempDir(), "Readability.js")
	require.NoError(t, os.WriteFile(readability, []byte("function Readability(){}"), 0o600))

	lib, err := Load(Config{StealthDir: stealthDir, UserScriptsDir: userDir, ReadabilityPath: readability})
	require.NoError(t, err)

	stealth := lib.Stealth()
	assert.Equal(t, "window.zz = 1;", stealth[len(stealth)-1])

	src, ok := lib.Readability()
	require.True(t, ok)
	assert.Contains(t, src, "function Readability")

	assert.True(t, lib.HasUserScript("click.js"))
	assert.False(t, lib.HasUserScript("missing.js"))
	assert.False(t, lib.HasUserScript("sub"))
	assert.False(t, lib.HasUserScript("../click.js"))

	body, err := lib.UserScript("click.js")
	require.NoError(t, err)
	assert.Equal(t, "document.body.click();", body)

	_, err = lib.UserScript("../../etc/passwd")
	require.Error(t, err)
}

func TestLoadMissingReadability(t *testing.T) {
	t.Parallel()

	_, err := Load(Config{ReadabilityPath: filepath.Join(t.TempDir(), "nope.js")})
	require.Error(t, err)
}

func TestArticleExpression(t *testing.T) {
	t.Parallel()

	expr, err := Article(ArticleOptions{MaxElemsToParse: 0, NbTopCandidates: 5, CharThreshold: 500})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(expr, "((options) =>"))
	assert.True(t, strings.HasSuffix(expr, `({"maxElemsToParse":0,"nbTopCandidates":5,"charThreshold":500})`))
	assert.Contains(t, Links(), "cssSel")
	assert.Contains(t, Cleanup(), "createTreeWalker")
}
