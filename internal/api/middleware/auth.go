// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/prowlink/internal/models"
)

// APIKeyValidator is the slice of the key store the auth middleware needs.
type APIKeyValidator interface {
	Validate(ctx context.Context, key string) (*models.APIKey, error)
	Touch(ctx context.Context, id int) error
}

// RequireAPIKey authenticates requests via the X-API-Key header or the
// apikey query parameter. The static config token is always accepted;
// store-backed keys are memoized briefly so the hash check doesn't run on
// every request.
func RequireAPIKey(staticToken string, store APIKeyValidator) func(http.Handler) http.Handler {
	validated := ttlcache.New(ttlcache.Options[string, int]{}.SetDefaultTTL(5 * time.Minute))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("apikey")
			}
			if key == "" {
				http.Error(w, "missing API key", http.StatusUnauthorized)
				return
			}

			if staticToken != "" && subtle.ConstantTimeCompare([]byte(key), []byte(staticToken)) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			if store != nil {
				if id, ok := validated.Get(key); ok {
					go touch(store, id)
					next.ServeHTTP(w, r)
					return
				}

				apiKey, err := store.Validate(r.Context(), key)
				if err == nil {
					validated.Set(key, apiKey.ID, ttlcache.DefaultTTL)
					go touch(store, apiKey.ID)
					next.ServeHTTP(w, r)
					return
				}
			}

			http.Error(w, "invalid API key", http.StatusUnauthorized)
		})
	}
}

func touch(store APIKeyValidator, id int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Touch(ctx, id); err != nil {
		log.Debug().Err(err).Int("keyId", id).Msg("Failed to update api key last used timestamp")
	}
}
