package trellis

import (
	"net/http"
	"time"
)

// CookieOptions carries the attributes a handler may set on a cookie.
type CookieOptions struct {
	Domain   string
	Expires  time.Time
	HTTPOnly bool
	MaxAge   int
	Path     string
	Secure   bool
	Signed   bool // consumed by cookie-signing middleware, not a wire attribute
	SameSite http.SameSite
}

// cookie pairs a value with its options.
type cookie struct {
	value   string
	options CookieOptions
}

// httpCookie maps the declaration onto the wire representation. Signed is
// metadata for middleware and stays off the cookie itself.
func (c cookie) httpCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    c.value,
		Path:     c.options.Path,
		Domain:   c.options.Domain,
		Expires:  c.options.Expires,
		MaxAge:   c.options.MaxAge,
		Secure:   c.options.Secure,
		HttpOnly: c.options.HTTPOnly,
		SameSite: c.options.SameSite,
	}
}

// Result builds an explicit response: status, headers, cookies, content
// type, and body. Returning any other value from a handler produces a
// plain 200 response with that value as the body; return a Result when the
// defaults are not enough. Builder methods mutate and return the same
// Result; treat it as immutable once returned from the handler.
type Result struct {
	status      int
	headers     map[string]string
	cookies     map[string]cookie
	contentType string
	raw         bool
	handled     bool
	body        any
	hasBody     bool
}

// NewResult creates a Result with status 200 and no body.
func NewResult() *Result {
	return &Result{
		status:  http.StatusOK,
		headers: make(map[string]string),
		cookies: make(map[string]cookie),
	}
}

// Status sets the response status code.
func (r *Result) Status(code int) *Result {
	r.status = code
	return r
}

// Header sets a response header.
func (r *Result) Header(name, value string) *Result {
	r.headers[name] = value
	return r
}

// Cookie sets a response cookie. Options beyond the first are ignored.
func (r *Result) Cookie(name, value string, options ...CookieOptions) *Result {
	c := cookie{value: value}
	if len(options) > 0 {
		c.options = options[0]
	}
	r.cookies[name] = c
	return r
}

// ContentType sets the Content-Type explicitly, overriding both a
// Content-Type header and the default.
func (r *Result) ContentType(contentType string) *Result {
	r.contentType = contentType
	return r
}

// Raw marks the body for transmission without serialization. The body
// must be a string or []byte.
func (r *Result) Raw() *Result {
	r.raw = true
	return r
}

// Handled marks the response as already written by the handler; the
// pipeline transmits nothing.
func (r *Result) Handled() *Result {
	r.handled = true
	return r
}

// Body sets the response body. A body set to nil still counts as a body
// and transmits as JSON null.
func (r *Result) Body(body any) *Result {
	r.body = body
	r.hasBody = true
	return r
}
