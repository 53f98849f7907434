// Package guard decides whether a navigation may proceed based on whether
// an auth token is present.
package guard

import (
	"net/url"
	"strings"
)

const LoginPath = "/login"

// TokenSource yields the current auth token, "" when signed out.
type TokenSource interface {
	Get() (string, error)
}

type Decision struct {
	// Allow is false when the caller must navigate to Redirect instead.
	Allow    bool   `json:"allow"`
	Redirect string `json:"redirect,omitempty"`
	// LoginPage is set for a signed-in visit to the login page, which renders
	// its nested content without the main layout.
	LoginPage bool `json:"login_page,omitempty"`
}

type Guard struct {
	tokens TokenSource
}

func New(tokens TokenSource) *Guard {
	return &Guard{tokens: tokens}
}

// Check evaluates a visit to path with the given raw query (no leading '?').
func (g *Guard) Check(path, rawQuery string) (Decision, error) {
	tok, err := g.tokens.Get()
	if err != nil {
		return Decision{}, err
	}
	if tok == "" {
		if path == LoginPath {
			return Decision{Allow: true}, nil
		}
		return Decision{Redirect: LoginRedirect(path, rawQuery)}, nil
	}
	return Decision{Allow: true, LoginPage: path == LoginPath}, nil
}

// LoginRedirect builds the login URL that returns to path after sign-in.
// The root path gets no redirect parameter.
func LoginRedirect(path, rawQuery string) string {
	if len(path) <= 1 {
		return LoginPath
	}
	target := path
	if rawQuery = strings.TrimPrefix(rawQuery, "?"); rawQuery != "" {
		target += "?" + rawQuery
	}
	return LoginPath + "?" + url.Values{"redirect": {target}}.Encode()
}
