package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"golang.org/x/net/publicsuffix"
)

// Session is the browser state for one run against the portal: the cookie
// jar, the page most recently navigated to and the URL it was served from.
type Session struct {
	client    *http.Client
	jar       *recordingJar
	base      *url.URL
	userAgent string
	logger    log.Logger

	body    string
	current *url.URL
}

// NewSession prepares a session for https://<server>/. A nil transport uses
// http.DefaultTransport.
func NewSession(server, userAgent string, transport http.RoundTripper, logger log.Logger) (*Session, error) {
	base, err := url.Parse("https://" + server + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid server %q: %w", server, err)
	}
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	jar := newRecordingJar(inner, base)
	return &Session{
		client:    &http.Client{Jar: jar, Transport: transport},
		jar:       jar,
		base:      base,
		userAgent: userAgent,
		logger:    log.With(logger, "component", "session"),
		current:   base,
	}, nil
}

// Server is the portal host, with a port when one was given.
func (s *Session) Server() string { return s.base.Host }

func (s *Session) Body() string { return s.body }

func (s *Session) URL() *url.URL { return s.current }

// Cookies lists every unexpired cookie the portal has set, whatever host or
// path it was scoped to.
func (s *Session) Cookies() []*http.Cookie { return s.jar.All() }

// Token returns the MRHSession cookie currently held for the portal.
func (s *Session) Token() (string, error) {
	return SessionCookie(s.Cookies())
}

// Open navigates to ref, resolved against the portal root, and makes the
// response the current page.
func (s *Session) Open(ctx context.Context, ref string) error {
	u, err := s.base.Parse(ref)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	return s.visit(req)
}

// Peek fetches ref without touching the current page.
func (s *Session) Peek(ctx context.Context, ref string) error {
	u, err := s.base.Parse(ref)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	_, _, err = s.do(req)
	return err
}

// SubmitForm fills the named fields of the form with the given id on the
// current page and submits it. Every other successful control keeps the
// value the portal served, hidden inputs included.
func (s *Session) SubmitForm(ctx context.Context, formID string, fields map[string]string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s.body))
	if err != nil {
		return fmt.Errorf("parsing page: %w", err)
	}
	form := doc.Find(fmt.Sprintf("form[id=%q]", formID)).First()
	if form.Length() == 0 {
		return fmt.Errorf("form %q not found on %s", formID, s.current)
	}

	values, known := formValues(form)
	for name, v := range fields {
		if !known[name] {
			return fmt.Errorf("form %q has no control named %q", formID, name)
		}
		values.Set(name, v)
	}

	action, _ := form.Attr("action")
	target, err := s.current.Parse(action)
	if err != nil {
		return fmt.Errorf("invalid form action %q: %w", action, err)
	}

	var req *http.Request
	method, _ := form.Attr("method")
	if strings.EqualFold(method, http.MethodPost) {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target.String(), strings.NewReader(values.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		target.RawQuery = values.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return err
		}
	}
	req.Header.Set("Referer", s.current.String())
	return s.visit(req)
}

func (s *Session) visit(req *http.Request) error {
	body, final, err := s.do(req)
	if err != nil {
		return err
	}
	s.body = body
	s.current = final
	return nil
}

func (s *Session) do(req *http.Request) (string, *url.URL, error) {
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("reading %s: %w", req.URL, err)
	}
	level.Debug(s.logger).Log("msg", "fetched page", "method", req.Method, "url", resp.Request.URL.String(), "status", resp.StatusCode)
	if resp.StatusCode >= http.StatusBadRequest {
		return "", nil, fmt.Errorf("%s %s: unexpected status %s", req.Method, resp.Request.URL, resp.Status)
	}
	return string(body), resp.Request.URL, nil
}

// formValues collects what a browser would submit for form untouched, along
// with the names of every control it contains.
func formValues(form *goquery.Selection) (url.Values, map[string]bool) {
	values := url.Values{}
	known := map[string]bool{}

	form.Find("input, select, textarea").Each(func(_ int, c *goquery.Selection) {
		name, ok := c.Attr("name")
		if !ok || name == "" {
			return
		}
		known[name] = true

		switch goquery.NodeName(c) {
		case "textarea":
			values.Add(name, c.Text())
			return
		case "select":
			opt := c.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = c.Find("option").First()
			}
			if opt.Length() == 0 {
				return
			}
			v, ok := opt.Attr("value")
			if !ok {
				v = strings.TrimSpace(opt.Text())
			}
			values.Add(name, v)
			return
		}

		typ, _ := c.Attr("type")
		v, _ := c.Attr("value")
		switch strings.ToLower(typ) {
		case "submit", "button", "image", "reset", "file":
		case "checkbox", "radio":
			if _, checked := c.Attr("checked"); checked {
				if v == "" {
					v = "on"
				}
				values.Add(name, v)
			}
		default:
			values.Add(name, v)
		}
	})
	return values, known
}
