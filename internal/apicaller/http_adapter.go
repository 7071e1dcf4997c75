package apicaller

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
)

// HTTPAdapter is a minimal default implementation of Adapter. Real
// deployments are expected to supply their own Adapter bound to the
// actual Airnode off-chain HTTP adapter service (spec.md §1 scope
// boundary); this implementation exists so the keeper is runnable
// standalone against a plain JSON HTTP endpoint, and to give
// internal/apicaller something concrete to test against.
type HTTPAdapter struct {
	Client *http.Client
}

// NewHTTPAdapter builds an HTTPAdapter with a client bounded by
// DefaultTimeout as a backstop (per-attempt timeouts are also applied
// by callWithRetry via context).
func NewHTTPAdapter() *HTTPAdapter {
	return &HTTPAdapter{Client: &http.Client{Timeout: DefaultTimeout}}
}

// Call resolves req.Endpoint against a plain JSON HTTP GET and extracts
// the field named by the "_path" reserved parameter (dot-separated),
// converting it to a signed integer per "_type" (spec.md §6: "_type"
// MUST be present).
func (a *HTTPAdapter) Call(ctx context.Context, req Request) (*big.Int, error) {
	url, ok := req.Endpoint.ReservedParameters["_endpoint"]
	if !ok {
		return nil, fmt.Errorf("apicaller: endpoint %s/%s has no _endpoint reserved parameter", req.Endpoint.OISTitle, req.Endpoint.EndpointName)
	}
	typ, ok := req.Endpoint.ReservedParameters["_type"]
	if !ok {
		return nil, fmt.Errorf("apicaller: endpoint %s/%s is missing required reserved parameter _type", req.Endpoint.OISTitle, req.Endpoint.EndpointName)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for _, cred := range req.Credentials {
		for k, v := range cred.Values {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := a.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("apicaller: unexpected status %d from %s", resp.StatusCode, url)
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	path := req.Endpoint.ReservedParameters["_path"]
	value, err := extractAtPath(payload, path)
	if err != nil {
		return nil, err
	}

	return encodeSignedInt(value, typ)
}

func extractAtPath(payload any, path string) (any, error) {
	if path == "" {
		return payload, nil
	}
	current := payload
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("apicaller: cannot traverse path %q: not an object at %q", path, segment)
		}
		current, ok = m[segment]
		if !ok {
			return nil, fmt.Errorf("apicaller: path %q not found in response", path)
		}
	}
	return current, nil
}

func encodeSignedInt(value any, typ string) (*big.Int, error) {
	switch typ {
	case "int256", "int":
		switch v := value.(type) {
		case float64:
			// values frequently carry fractional precision; they are
			// always scaled by 1e6 for signed int256 beacon updates. A
			// "_times" reserved parameter is not read.
			scaled := new(big.Float).Mul(big.NewFloat(v), big.NewFloat(1_000_000))
			result, _ := scaled.Int(nil)
			return result, nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("apicaller: cannot parse %q as a number: %w", v, err)
			}
			return encodeSignedInt(f, typ)
		default:
			return nil, fmt.Errorf("apicaller: unsupported value type %T for _type %q", value, typ)
		}
	default:
		return nil, fmt.Errorf("apicaller: unsupported _type %q", typ)
	}
}
