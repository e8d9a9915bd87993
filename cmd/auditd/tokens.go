package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Keksclan/goRawrAudit/auth"
	"github.com/Keksclan/goRawrAudit/contextx"
)

// loadTokens reads a JSON object mapping bearer tokens to actors and
// returns a lookup over it. An empty path yields a lookup that knows no
// tokens, so every request runs anonymously.
func loadTokens(path string) (auth.TokenLookup, error) {
	tokens := map[string]contextx.Actor{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("tokens: %w", err)
		}
		if err := json.Unmarshal(raw, &tokens); err != nil {
			return nil, fmt.Errorf("tokens: parse %s: %w", path, err)
		}
		for token, a := range tokens {
			if a.Subject == "" {
				return nil, fmt.Errorf("tokens: entry %.4s... has no subject", token)
			}
		}
	}
	return func(_ context.Context, token string) (contextx.Actor, bool, error) {
		a, ok := tokens[token]
		return a, ok, nil
	}, nil
}
