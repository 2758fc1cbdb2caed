// Package deeplink extracts password-recovery codes from app links and
// holds the code until navigation can route to the reset screen.
package deeplink

import (
	"net/url"
	"strings"
	"sync"
)

// DefaultSchemes are the URL schemes the app registers.
var DefaultSchemes = []string{"linova", "com.linova.app", "exp", "exp+linova"}

var codeParams = []string{"code", "access_token", "oobCode"}

// ParseRecoveryCode returns the recovery code carried by rawURL, looking in
// the query string first and then in the fragment. Links with a scheme
// outside schemes are ignored.
func ParseRecoveryCode(rawURL string, schemes []string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !allowed(parsed.Scheme, schemes) {
		return "", false
	}
	if code, ok := lookup(parsed.Query()); ok {
		return code, true
	}
	fragment := strings.TrimPrefix(parsed.Fragment, "?")
	if fragment == "" {
		return "", false
	}
	values, err := url.ParseQuery(fragment)
	if err != nil {
		return "", false
	}
	return lookup(values)
}

func allowed(scheme string, schemes []string) bool {
	for _, candidate := range schemes {
		if strings.EqualFold(scheme, candidate) {
			return true
		}
	}
	return false
}

func lookup(values url.Values) (string, bool) {
	for _, name := range codeParams {
		if code := strings.TrimSpace(values.Get(name)); code != "" {
			return code, true
		}
	}
	return "", false
}

// Navigator routes to the password reset screen.
type Navigator interface {
	OpenPasswordReset(code string)
}

type NavigatorFunc func(code string)

func (f NavigatorFunc) OpenPasswordReset(code string) { f(code) }

// Pending is a single-slot buffer: a code delivered before a navigator is
// attached is replayed when one attaches. A newer code replaces an unsent one.
type Pending struct {
	mu   sync.Mutex
	code string
	nav  Navigator
}

func (p *Pending) Deliver(code string) {
	p.mu.Lock()
	nav := p.nav
	if nav == nil {
		p.code = code
		p.mu.Unlock()
		return
	}
	p.code = ""
	p.mu.Unlock()
	nav.OpenPasswordReset(code)
}

// Attach sets the navigator (nil detaches) and flushes a buffered code.
func (p *Pending) Attach(nav Navigator) {
	p.mu.Lock()
	p.nav = nav
	code := p.code
	if nav != nil {
		p.code = ""
	}
	p.mu.Unlock()
	if nav != nil && code != "" {
		nav.OpenPasswordReset(code)
	}
}

func (p *Pending) Buffered() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}
