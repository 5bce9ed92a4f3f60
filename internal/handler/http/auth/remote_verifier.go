package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

// RemoteVerifier verifies tokens and resolves roles against a remote
// identity service over HTTP.
//
// Calls run through a circuit breaker so a struggling identity service fails
// fast instead of stacking up in-flight requests. An open circuit surfaces
// as a verification error, which the Authenticator maps to a denied
// request: fail closed.
type RemoteVerifier struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// RemoteVerifierConfig configures a RemoteVerifier.
type RemoteVerifierConfig struct {
	// BaseURL is the identity service root, e.g. "https://identity.internal".
	BaseURL string

	// Timeout is the per-call HTTP timeout. Default: 5s.
	Timeout time.Duration
}

// NewRemoteVerifier creates a RemoteVerifier.
func NewRemoteVerifier(config RemoteVerifierConfig) *RemoteVerifier {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &RemoteVerifier{
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "identity-service",
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.Requests >= 5 &&
					float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
			},
		}),
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	Valid     bool   `json:"valid"`
	SubjectID string `json:"subject_id"`
}

type roleResponse struct {
	Role string `json:"role"`
}

// Verify calls POST {base}/v1/verify with the token.
//
// A definitive "invalid" answer from the service is not a breaker failure;
// only transport errors and non-2xx statuses count against the circuit.
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (string, bool, error) {
	body, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return "", false, fmt.Errorf("marshal verify request: %w", err)
	}

	result, err := v.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			v.baseURL+"/v1/verify", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := v.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("identity service returned status %d", resp.StatusCode)
		}

		var vr verifyResponse
		if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
			return nil, fmt.Errorf("decode verify response: %w", err)
		}
		return &vr, nil
	})
	if err != nil {
		return "", false, fmt.Errorf("verify token: %w", err)
	}

	vr := result.(*verifyResponse)
	return vr.SubjectID, vr.Valid, nil
}

// RoleOf calls GET {base}/v1/roles/{subject}.
func (v *RemoteVerifier) RoleOf(ctx context.Context, subjectID string) (string, error) {
	result, err := v.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			v.baseURL+"/v1/roles/"+url.PathEscape(subjectID), nil)
		if err != nil {
			return nil, err
		}

		resp, err := v.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("identity service returned status %d", resp.StatusCode)
		}

		var rr roleResponse
		if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
			return nil, fmt.Errorf("decode role response: %w", err)
		}
		return &rr, nil
	})
	if err != nil {
		return "", fmt.Errorf("resolve role: %w", err)
	}

	return result.(*roleResponse).Role, nil
}
