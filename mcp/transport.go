package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fwojciec/hangar"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

const maxErrorBody = 4 << 10

// authTransport authorizes every gateway request with a bearer token from
// the credential provider. A 401 invalidates the token and replays the
// request once with a fresh one; a second 401 is ErrAuthUnavailable. Any
// other non-2xx response is returned as *Error.
type authTransport struct {
	base   http.RoundTripper
	creds  hangar.CredentialProvider
	logger *slog.Logger
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	for attempt := 0; ; attempt++ {
		cred, err := t.creds.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("mcp: %w", err)
		}
		r := req.Clone(ctx)
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("mcp: replay request: %w", err)
			}
			r.Body = body
		}
		r.Header.Set("Authorization", "Bearer "+cred.AccessToken)

		resp, err := t.base.RoundTrip(r)
		if err != nil {
			return nil, &Error{Kind: hangar.ToolUnavailable, Err: err}
		}
		if resp.StatusCode == http.StatusUnauthorized {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()
			if attempt > 0 || !replayable {
				return nil, fmt.Errorf("mcp: gateway rejected a freshly issued token: %w", hangar.ErrAuthUnavailable)
			}
			t.creds.Invalidate(cred.AccessToken)
			t.logger.Info("gateway rejected token, refreshing", "method", req.Method)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			defer resp.Body.Close()
			return nil, httpFailure(resp)
		}
		return resp, nil
	}
}

// httpFailure reads a failed response. 400 and 422 are argument errors;
// every other status means the gateway could not serve the request.
func httpFailure(resp *http.Response) *Error {
	kind := hangar.ToolUnavailable
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
		kind = hangar.ToolInvalidArguments
	}
	e := &Error{Kind: kind, StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var env struct {
		Error *mcpgo.JSONRPCErrorDetails `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		e.Code = env.Error.Code
		e.Message = env.Error.Message
	} else {
		e.Message = strings.TrimSpace(string(body))
	}
	return e
}

func baseTransport(hc *http.Client) http.RoundTripper {
	if hc != nil && hc.Transport != nil {
		return hc.Transport
	}
	return http.DefaultTransport
}
