package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ramadanhub/gatekeeper/modules/billing"
)

// headerAuth trusts identity headers injected by the authenticating reverse
// proxy in front of this service. Requests that bypass the proxy carry no
// headers and are treated as anonymous.
func headerAuth(r *http.Request) (uuid.UUID, string, bool) {
	raw := r.Header.Get("X-User-Id")
	if raw == "" {
		return uuid.Nil, "", false
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, "", false
	}
	return userID, r.Header.Get("X-User-Email"), true
}

var upstreamClient = &http.Client{Timeout: 60 * time.Second}

// newGenerator builds an HTTP client for the upstream content generation
// service, or nil when no endpoint is configured.
func newGenerator(baseURL string) billing.ContentGenerator {
	if baseURL == "" {
		return nil
	}
	return billing.GeneratorFunc(func(ctx context.Context, userID uuid.UUID, feature string, payload json.RawMessage) (string, error) {
		var out struct {
			ArtifactURL string `json:"artifact_url"`
		}
		err := postJSON(ctx, baseURL, map[string]any{
			"user_id": userID,
			"feature": feature,
			"payload": payload,
		}, &out)
		if err != nil {
			return "", err
		}
		return out.ArtifactURL, nil
	})
}

// newCheckout builds an HTTP client for the upstream checkout creation
// service, or nil when no endpoint is configured.
func newCheckout(baseURL string) billing.CheckoutInitiator {
	if baseURL == "" {
		return nil
	}
	return billing.CheckoutFunc(func(ctx context.Context, userID uuid.UUID, email, selection string) (string, error) {
		var out struct {
			URL string `json:"url"`
		}
		err := postJSON(ctx, baseURL, map[string]any{
			"user_id":   userID,
			"email":     email,
			"selection": selection,
		}, &out)
		if err != nil {
			return "", err
		}
		return out.URL, nil
	})
}

func postJSON(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode upstream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := upstreamClient.Do(req)
	if err != nil {
		return fmt.Errorf("call upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode upstream response: %w", err)
	}
	return nil
}
