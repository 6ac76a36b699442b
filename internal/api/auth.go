package api

import (
	"net/http"
	"os"
	"strings"
)

// authorizer gates the read surface behind static bearer tokens.
// AGENT_API_TOKENS holds a comma-separated list; with it unset the
// surface is open, which is what the local profile wants.
type authorizer struct {
	tokens map[string]struct{}
}

func newAuthorizerFromEnv() *authorizer {
	raw := strings.TrimSpace(os.Getenv("AGENT_API_TOKENS"))
	if raw == "" {
		return &authorizer{}
	}
	tokens := make(map[string]struct{})
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			tokens[tok] = struct{}{}
		}
	}
	return &authorizer{tokens: tokens}
}

func (a *authorizer) allow(w http.ResponseWriter, r *http.Request) bool {
	if len(a.tokens) == 0 {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return false
	}
	if _, ok := a.tokens[strings.TrimSpace(header[len(prefix):])]; !ok {
		writeError(w, http.StatusForbidden, "token not recognized")
		return false
	}
	return true
}
