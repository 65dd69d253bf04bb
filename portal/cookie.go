package portal

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

const SessionCookieName = "MRHSession"

var ErrMissingSessionCookie = errors.New("MRHSession cookie not found")

// SessionCookie returns the value of the MRHSession cookie. An empty value
// counts as missing.
func SessionCookie(cookies []*http.Cookie) (string, error) {
	for _, c := range cookies {
		if c.Name == SessionCookieName && c.Value != "" {
			return c.Value, nil
		}
	}
	return "", ErrMissingSessionCookie
}

// recordingJar remembers where each cookie was scoped so that every cookie
// still held can be listed, not only those sent to one URL. Expiry and
// deletion are left to the wrapped jar.
type recordingJar struct {
	http.CookieJar

	mu   sync.Mutex
	urls []*url.URL
	seen map[string]bool
}

func newRecordingJar(jar http.CookieJar, first *url.URL) *recordingJar {
	j := &recordingJar{CookieJar: jar, seen: map[string]bool{}}
	j.remember(first)
	return j
}

func (j *recordingJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.CookieJar.SetCookies(u, cookies)
	for _, c := range cookies {
		j.remember(scopeURL(u, c))
	}
}

// All returns every cookie held, the ones scoped to the first URL first.
func (j *recordingJar) All() []*http.Cookie {
	j.mu.Lock()
	urls := append([]*url.URL(nil), j.urls...)
	j.mu.Unlock()

	var all []*http.Cookie
	dup := map[string]bool{}
	for _, u := range urls {
		for _, c := range j.CookieJar.Cookies(u) {
			key := c.Name + "\x00" + c.Value
			if !dup[key] {
				dup[key] = true
				all = append(all, c)
			}
		}
	}
	return all
}

func (j *recordingJar) remember(u *url.URL) {
	j.mu.Lock()
	defer j.mu.Unlock()
	key := u.String()
	if j.seen[key] {
		return
	}
	j.seen[key] = true
	j.urls = append(j.urls, u)
}

// scopeURL is a URL the jar will send c to: the setting host with the
// cookie's path, or the default path of u when the cookie has none.
func scopeURL(u *url.URL, c *http.Cookie) *url.URL {
	p := c.Path
	if p == "" || p[0] != '/' {
		p = "/"
		if i := strings.LastIndex(u.Path, "/"); i > 0 {
			p = u.Path[:i]
		}
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: p}
}
