// Package apicaller implements the API Caller (C3, spec.md §4.3): for
// each distinct template or beacon job, it builds an HTTP adapter
// request, executes it with bounded retry, and distributes the
// resolved value to every subscription sharing that template.
package apicaller

import (
	"context"
	"math/big"

	"github.com/api3dao/airkeeper-go/internal/model"
)

// Request is what the keeper passes to the off-chain HTTP adapter: an
// endpoint definition, the parameters encoded in the template, and the
// matching credentials. Building and interpreting the actual HTTP call
// is the adapter's job, not the keeper's (spec.md §1 scope boundary).
type Request struct {
	Endpoint            model.Endpoint
	EncodedParameters    []byte
	Credentials         []model.Credential
}

//go:generate go run go.uber.org/mock/mockgen -source=adapter.go -destination=mock_adapter.go -package=apicaller

// Adapter is the narrow external-collaborator interface spec.md §6
// describes: "Given {endpoint, parameters, credentials}, the adapter
// returns a structured value; the core extracts a single numeric field
// per the endpoint's reserved parameters". Implementations live outside
// this repository; a HTTPAdapter default implementation is provided for
// completeness but is not itself part of the core's contract.
type Adapter interface {
	Call(ctx context.Context, req Request) (*big.Int, error)
}
