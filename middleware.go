package trellis

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
)

type contextKey string

const parsedBodyKey contextKey = "trellis.parsedBody"

// ParsedBody returns the request body parsed by ParseJSONBody, or nil when
// the request carried none. The dispatch pipeline reads the body from
// here, never from the wire.
func ParsedBody(ctx context.Context) any {
	return ctx.Value(parsedBodyKey)
}

// WithParsedBody returns a context carrying an already-parsed body. Tests
// and alternate body parsers use this to feed the dispatch pipeline.
func WithParsedBody(ctx context.Context, body any) context.Context {
	return context.WithValue(ctx, parsedBodyKey, body)
}

// ParseJSONBody returns middleware that reads a JSON request body and
// stores the parsed value in the context slot the dispatch pipeline reads.
// Requests without a body pass through untouched. maxBytes caps the read
// (0 = unlimited); a body that is not valid JSON is rejected with 400
// before any endpoint runs.
func ParseJSONBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			var reader io.Reader = r.Body
			if maxBytes > 0 {
				reader = io.LimitReader(r.Body, maxBytes)
			}

			data, err := io.ReadAll(reader)
			if err != nil {
				WriteError(w, ErrBadRequest.WithMessage("reading request body").WithCause(err))
				return
			}
			r.Body.Close()

			if len(data) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			var body any
			if err := json.Unmarshal(data, &body); err != nil {
				WriteError(w, ErrBadRequest.WithMessage("request body is not valid JSON"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithParsedBody(r.Context(), body)))
		})
	}
}
