package api

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Htpasswd holds bcrypt password hashes keyed by user name.
type Htpasswd struct {
	users map[string][]byte
}

// LoadHtpasswd reads an htpasswd file. Only bcrypt entries are supported.
func LoadHtpasswd(path string) (*Htpasswd, error) {
	f, err := os.Open(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("open htpasswd: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseHtpasswd(f)
}

// ParseHtpasswd parses "user:hash" lines. Blank lines and # comments are skipped.
func ParseHtpasswd(r io.Reader) (*Htpasswd, error) {
	h := &Htpasswd{users: map[string][]byte{}}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		user, hash, ok := strings.Cut(text, ":")
		if !ok || user == "" {
			return nil, fmt.Errorf("htpasswd line %d: expected user:hash", line)
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("htpasswd line %d: unsupported hash for %q: %w", line, user, err)
		}
		h.users[user] = []byte(hash)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read htpasswd: %w", err)
	}
	return h, nil
}

// Len returns the number of users.
func (h *Htpasswd) Len() int {
	return len(h.users)
}

// Verify reports whether password matches the stored hash for user.
func (h *Htpasswd) Verify(user, password string) bool {
	hash, ok := h.users[user]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
