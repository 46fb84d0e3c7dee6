package service

import (
	"context"

	"github.com/shopspring/decimal"

	"guessrounds/internal/chain"
)

// ChainClient is the slice of the node RPC surface the engine needs.
// *chain.Client satisfies it; tests substitute a fake.
type ChainClient interface {
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
	EstimateTransferFee(ctx context.Context) (decimal.Decimal, error)
	Transfer(ctx context.Context, from *chain.Keypair, to string, amount decimal.Decimal) (string, error)
	SignatureStatuses(ctx context.Context, signatures []string) ([]chain.SignatureStatus, error)
}
