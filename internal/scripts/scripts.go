// Package scripts provides the JavaScript evaluated inside browser pages: the
// embedded link and article extractors, stealth init scripts and caller-named
// user scripts from a configured directory.
package scripts

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed js/*.js stealth/*.js
var embedded embed.FS

// Config points at the optional on-disk script locations.
type Config struct {
	// StealthDir holds extra stealth init scripts, loaded after the embedded ones.
	StealthDir string
	// UserScriptsDir holds scripts callers may name in the user-scripts parameter.
	UserScriptsDir string
	// ReadabilityPath is Mozilla's Readability.js. When empty, articles are parsed server-side.
	ReadabilityPath string
}

// Library holds the scripts loaded at startup.
type Library struct {
	stealth     []string
	userDir     string
	readability string
}

// Load reads the embedded scripts and the configured files.
func Load(cfg Config) (*Library, error) {
	lib := &Library{userDir: cfg.UserScriptsDir}

	builtin, err := readDir(embedded, "stealth")
	if err != nil {
		return nil, err
	}
	lib.stealth = builtin
	if cfg.StealthDir != "" {
		extra, err := readDir(os.DirFS(cfg.StealthDir), ".")
		if err != nil {
			return nil, fmt.Errorf("load stealth scripts: %w", err)
		}
		lib.stealth = append(lib.stealth, extra...)
	}

	if cfg.ReadabilityPath != "" {
		data, err := os.ReadFile(cfg.ReadabilityPath)
		if err != nil {
			return nil, fmt.Errorf("load readability script: %w", err)
		}
		lib.readability = string(data)
	}
	return lib, nil
}

// readDir returns the *.js files of dir in name order.
func readDir(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".js") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, pathJoin(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out = append(out, string(data))
	}
	return out, nil
}

func pathJoin(dir, name string) string {
	if dir == "." {
		return name
	}
	return dir + "/" + name
}

// Stealth returns the stealth init scripts in load order.
func (l *Library) Stealth() []string {
	return l.stealth
}

// Readability returns the Readability.js source and whether one is configured.
func (l *Library) Readability() (string, bool) {
	return l.readability, l.readability != ""
}

// HasUserScript reports whether name is a plain file in the user scripts directory.
func (l *Library) HasUserScript(name string) bool {
	path, ok := l.userScriptPath(name)
	if !ok {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// UserScript returns the source of a user script.
func (l *Library) UserScript(name string) (string, error) {
	path, ok := l.userScriptPath(name)
	if !ok {
		return "", fmt.Errorf("user script %q not found", name)
	}
	data, err := os.ReadFile(path) // #nosec G304 -- name is confined to userDir.
	if err != nil {
		return "", fmt.Errorf("read user script %q: %w", name, err)
	}
	return string(data), nil
}

func (l *Library) userScriptPath(name string) (string, bool) {
	if l.userDir == "" || name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", false
	}
	return filepath.Join(l.userDir, name), true
}

// Links is an expression returning the page's link candidates or {err}.
func Links() string {
	return mustRead("js/links.js")
}

// Cleanup is an expression that removes hidden elements and comments from the page.
func Cleanup() string {
	return mustRead("js/cleanup.js")
}

// ArticleOptions are passed to Readability's constructor.
type ArticleOptions struct {
	MaxElemsToParse int `json:"maxElemsToParse"`
	NbTopCandidates int `json:"nbTopCandidates"`
	CharThreshold   int `json:"charThreshold"`
}

// Article returns an expression that runs Readability with opts and yields the
// parsed article or {err}.
func Article(opts ArticleOptions) (string, error) {
	arg, err := json.Marshal(opts)
	if err != nil {
		return "", fmt.Errorf("marshal readability options: %w", err)
	}
	return "(" + strings.TrimSpace(mustRead("js/article.js")) + ")(" + string(arg) + ")", nil
}

func mustRead(name string) string {
	data, err := embedded.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("embedded script %s: %v", name, err))
	}
	return string(data)
}
