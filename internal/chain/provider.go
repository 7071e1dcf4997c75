// Package chain implements the Provider Initializer (C4, spec.md §4.4):
// for each (chain, providerName) pair it constructs a JSON-RPC client,
// fetches the current block, and computes a gas target. A failure for
// one provider drops that provider but must not prevent others from
// proceeding.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/time/rate"

	"github.com/api3dao/airkeeper-go/internal/model"
)

// requestsPerSecond bounds the rate of the client calls against one
// provider endpoint that go through State.Wait (or, in Initialize, the
// single limiter.Wait before the block fetch), independent of how many
// goroutines are concurrently using it -- the JSON-RPC analog of the
// teacher's semaphore-bounded peer network access. Calls made without
// a preceding Wait are not limited.
const requestsPerSecond = 20

// State is everything downstream phases need about one successfully
// initialized provider (spec.md §4.4's ProviderState). voidSigner is
// not modeled separately: read-only calls in internal/condition are
// made with CallContract's implicit zero-address msg.sender.
type State struct {
	ProviderName string
	ChainID      *big.Int
	Client       *ethclient.Client
	Contracts    model.ContractAddresses
	CurrentBlock uint64
	GasTarget    GasTarget

	limiter *rate.Limiter
}

// Wait blocks until the provider's rate limiter admits one more
// request; every client call this package and its downstream
// consumers make should go through this first.
func (s *State) Wait(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}

func retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	return backoff.WithMaxRetries(b, 1) // 2 attempts total, per spec.md §5
}

// Initialize builds one provider's State, per spec.md §4.4. Both the
// current-block fetch and the gas-target fetch are retried under the
// shared retry policy; if either ultimately fails, an error is
// returned and the caller drops this provider (logged, not fatal).
func Initialize(ctx context.Context, chainCfg model.Chain, providerName, rpcURL string) (*State, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", providerName, err)
	}

	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var currentBlock uint64
	fetchBlock := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		block, err := client.BlockNumber(attemptCtx)
		if err != nil {
			return err
		}
		currentBlock = block
		return nil
	}
	if err := backoff.Retry(fetchBlock, backoff.WithContext(retryPolicy(), ctx)); err != nil {
		return nil, fmt.Errorf("chain: fetch current block for %s: %w", providerName, err)
	}

	gasTarget, err := fetchGasTarget(ctx, client, chainCfg.Options)
	if err != nil {
		return nil, fmt.Errorf("chain: fetch gas target for %s: %w", providerName, err)
	}

	chainID, ok := new(big.Int).SetString(chainCfg.ID, 10)
	if !ok {
		return nil, fmt.Errorf("chain: invalid chain id %q", chainCfg.ID)
	}

	return &State{
		ProviderName: providerName,
		ChainID:      chainID,
		Client:       client,
		Contracts:    chainCfg.Contracts,
		CurrentBlock: currentBlock,
		GasTarget:    gasTarget,
		limiter:      limiter,
	}, nil
}

func fetchGasTarget(ctx context.Context, client *ethclient.Client, options model.ChainOptions) (GasTarget, error) {
	var target GasTarget
	fetch := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if options.TxType == model.TxTypeEIP1559 {
			header, err := client.HeaderByNumber(attemptCtx, nil)
			if err != nil {
				return err
			}
			if header.BaseFee == nil {
				return fmt.Errorf("chain: chain configured for eip1559 but latest header has no base fee")
			}
			gasTarget, err := computeEIP1559GasTarget(header.BaseFee, options)
			if err != nil {
				return err
			}
			target = gasTarget
			return nil
		}

		gasPrice, err := client.SuggestGasPrice(attemptCtx)
		if err != nil {
			return err
		}
		target = GasTarget{TxType: model.TxTypeLegacy, GasPrice: gasPrice}
		return nil
	}
	err := backoff.Retry(fetch, backoff.WithContext(retryPolicy(), ctx))
	return target, err
}

// InitializeAll fans out over every (chain, providerName) pair
// concurrently and independently (spec.md §5 phase 3): a failing
// provider is dropped with a logged error, never aborting the others.
func InitializeAll(ctx context.Context, chains map[string]model.Chain) []*State {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []*State
	)

	for _, chainCfg := range chains {
		for providerName, rpcURL := range chainCfg.Providers {
			chainCfg, providerName, rpcURL := chainCfg, providerName, rpcURL
			wg.Add(1)
			go func() {
				defer wg.Done()
				state, err := Initialize(ctx, chainCfg, providerName, rpcURL)
				if err != nil {
					log.Error("dropping provider", "chainId", chainCfg.ID, "provider", providerName, "err", err)
					return
				}
				mu.Lock()
				results = append(results, state)
				mu.Unlock()
			}()
		}
	}
	wg.Wait()

	return results
}
