package crm

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Doer sends one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type DoerFunc func(req *http.Request) (*http.Response, error)

func (f DoerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

type retriedKey struct{}

func withRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func isRetried(ctx context.Context) bool {
	retried, _ := ctx.Value(retriedKey{}).(bool)
	return retried
}

// SignRequests sets the bearer token on every request before handing it to
// next. The token source acquires a new token when the cached one is no
// longer valid.
func SignRequests(tokens TokenSource, next Doer) Doer {
	return DoerFunc(func(req *http.Request) (*http.Response, error) {
		token, err := tokens.Token(req.Context())
		if err != nil {
			return nil, err
		}

		signed := req.Clone(req.Context())
		signed.Header.Set("Authorization", "Bearer "+token)
		return next.Do(signed)
	})
}

// RetryUnauthorized replays a request once after a 401, with a freshly
// acquired token. The retry is tracked on the request context, so a 401 on
// the replayed request is returned as is.
func RetryUnauthorized(tokens TokenSource, next Doer) Doer {
	return DoerFunc(func(req *http.Request) (*http.Response, error) {
		resp, err := next.Do(req)
		if err != nil || resp.StatusCode != http.StatusUnauthorized || isRetried(req.Context()) {
			return resp, err
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		ctx := withRetried(req.Context())
		if _, err := tokens.Refresh(ctx); err != nil {
			return nil, err
		}

		retry := req.Clone(ctx)
		if req.Body != nil && req.Body != http.NoBody {
			if req.GetBody == nil {
				return nil, fmt.Errorf("%w: request body cannot be replayed", ErrUnauthorized)
			}
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to rewind request body: %w", err)
			}
			retry.Body = body
		}

		return next.Do(retry)
	})
}
