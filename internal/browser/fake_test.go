package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/scrapper/internal/params"
)

// fakePage records every call in order.
type fakePage struct {
	mu      sync.Mutex
	calls   []string
	closed  int
	onClose func()

	navigateErr error
	fullErr     error
	viewErr     error
	evalErr     map[string]error
	url         string
}

func (f *fakePage) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakePage) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePage) AddInitScript(source string) error {
	f.record("init:%s", source)
	return nil
}

func (f *fakePage) SetResourceFilter(allow []string) error {
	f.record("filter:%v", allow)
	return nil
}

func (f *fakePage) Navigate(url string, until params.WaitUntil, timeout time.Duration) error {
	f.record("navigate:%s:%s:%s", url, until, timeout)
	return f.navigateErr
}

func (f *fakePage) Evaluate(expr string, _ any) error {
	f.record("eval:%s", expr)
	return f.evalErr[expr]
}

func (f *fakePage) Content() (string, error) {
	f.record("content")
	return "<html><body>ok</body></html>", nil
}

func (f *fakePage) Title() (string, error) {
	f.record("title")
	return "Title", nil
}

func (f *fakePage) URL() (string, error) {
	f.record("url")
	return f.url, nil
}

func (f *fakePage) Screenshot(full bool) ([]byte, error) {
	f.record("screenshot:%t", full)
	if full {
		if f.fullErr != nil {
			return nil, f.fullErr
		}
		return []byte("full"), nil
	}
	if f.viewErr != nil {
		return nil, f.viewErr
	}
	return []byte("viewport"), nil
}

func (f *fakePage) Close() error {
	f.mu.Lock()
	f.closed++
	cb := f.onClose
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

type fakeFactory struct {
	mu       sync.Mutex
	sessions []*fakePage
	err      error
	onClose  func()
}

func (f *fakeFactory) NewSession(_ context.Context, _ SessionOptions) (Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePage{onClose: f.onClose}
	f.mu.Lock()
	f.sessions = append(f.sessions, p)
	f.mu.Unlock()
	return p, nil
}

type fakeScripts struct {
	stealth []string
	user    map[string]string
}

func (s fakeScripts) Stealth() []string { return s.stealth }

func (s fakeScripts) UserScript(name string) (string, error) {
	src, ok := s.user[name]
	if !ok {
		return "", fmt.Errorf("user script %q not found", name)
	}
	return src, nil
}

type fakeLimiter struct {
	page  *fakePage
	calls int
	err   error
}

func (l *fakeLimiter) Wait(_ context.Context, rawURL string) error {
	l.calls++
	if l.page != nil {
		l.page.record("limit:%s", rawURL)
	}
	return l.err
}
