package odata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	logx "github.com/sap-order-agent/server/pkg/logger"
)

// Confirmation describes an accepted conditional update.
type Confirmation struct {
	EntitySet string
	Key       string
	Status    int
	// Stamp is the If-Match value sent, empty for unversioned entities.
	Stamp  string
	Fields map[string]any
}

// SafeWriter performs CSRF-protected, ETag-guarded partial updates.
//
// The token and cookie state belongs to the writer. A SafeWriter must not be
// used from more than one goroutine at a time; concurrent callers each take
// their own from Client.NewWriter.
type SafeWriter struct {
	client    *Client
	csrfToken string
	cookies   string
}

// HasToken reports whether a CSRF token is currently held.
func (w *SafeWriter) HasToken() bool {
	return w.csrfToken != ""
}

func (w *SafeWriter) invalidate() {
	w.csrfToken = ""
	w.cookies = ""
}

// AcquireToken fetches a fresh CSRF token and the session cookies it is bound to.
// On failure the previous state is discarded and a *TokenError returned.
func (w *SafeWriter) AcquireToken(ctx context.Context) error {
	w.invalidate()

	req, err := w.client.newRequest(ctx, http.MethodGet, w.client.rootURL(), nil)
	if err != nil {
		return &TokenError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerCSRFToken, "fetch")

	resp, err := w.client.do(req, "fetch csrf token")
	if err != nil {
		logx.Warn().Err(err).Msg("csrf token fetch failed in transport")
		return &TokenError{Err: err}
	}

	token := strings.TrimSpace(headerValue(resp.Header, headerCSRFToken))
	if !isSuccess(resp.Status) || token == "" || strings.EqualFold(token, "required") {
		logx.Warn().Int("status", resp.Status).Msg("no csrf token received")
		return &TokenError{Status: resp.Status}
	}

	w.csrfToken = token
	w.cookies = joinCookies(headerValues(resp.Header, "Set-Cookie"))
	logx.Debug().Bool("has_cookies", w.cookies != "").Msg("csrf token obtained")
	return nil
}

// FetchStamp reads the entity and returns its "d" payload and ETag. A missing
// ETag is not an error. A non-2xx read yields *NotFoundError.
func (w *SafeWriter) FetchStamp(ctx context.Context, entitySet, key string) (map[string]any, string, error) {
	rawURL := w.client.entityURL(entitySet, key) + "?" + encodeQuery([]queryParam{{"$format", "json"}})
	req, err := w.client.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", &NotFoundError{EntitySet: entitySet, Key: key, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.do(req, "read entity")
	if err != nil {
		return nil, "", &NotFoundError{EntitySet: entitySet, Key: key, Err: err}
	}
	if !isSuccess(resp.Status) {
		return nil, "", &NotFoundError{EntitySet: entitySet, Key: key, Status: resp.Status, Body: string(resp.Body)}
	}

	stamp := headerValue(resp.Header, "ETag")

	var snapshot map[string]any
	if len(resp.Body) > 0 {
		d, err := decodeEnvelope(resp.Body)
		if err != nil {
			logx.Warn().Err(err).Str("entity_set", entitySet).Str("key", key).Msg("entity snapshot not decodable")
		} else {
			snapshot = d
		}
	}
	return snapshot, stamp, nil
}

// Update applies fields to entitySet('key') as a conditional PATCH. It always
// acquires a new token and re-reads the ETag first; nothing is retried.
func (w *SafeWriter) Update(ctx context.Context, entitySet, key string, fields map[string]any) (*Confirmation, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("odata: encode update payload: %w", err)
	}

	if err := w.AcquireToken(ctx); err != nil {
		return nil, err
	}

	_, stamp, err := w.FetchStamp(ctx, entitySet, key)
	if err != nil {
		return nil, err
	}

	req, err := w.client.newRequest(ctx, http.MethodPatch, w.client.entityURL(entitySet, key), payload)
	if err != nil {
		return nil, &WriteRejected{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerCSRFToken, w.csrfToken)
	if w.cookies != "" {
		req.Header.Set("Cookie", w.cookies)
	}
	if stamp != "" {
		req.Header.Set("If-Match", stamp)
	}

	logx.Debug().
		Str("entity_set", entitySet).
		Str("key", key).
		Bool("if_match", stamp != "").
		RawJSON("payload", payload).
		Msg("issuing conditional update")

	resp, err := w.client.do(req, "update entity")
	if err != nil {
		return nil, &WriteRejected{Err: err}
	}

	switch resp.Status {
	case http.StatusOK, http.StatusNoContent:
		logx.Info().Str("entity_set", entitySet).Str("key", key).Int("status", resp.Status).Msg("entity updated")
		return &Confirmation{
			EntitySet: entitySet,
			Key:       key,
			Status:    resp.Status,
			Stamp:     stamp,
			Fields:    fields,
		}, nil
	case http.StatusForbidden:
		w.invalidate()
	}

	logx.Warn().Str("entity_set", entitySet).Str("key", key).Int("status", resp.Status).Msg("update rejected")
	return nil, &WriteRejected{Status: resp.Status, Body: string(resp.Body)}
}
