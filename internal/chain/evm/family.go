// Package evm deploys contracts to Ethereum compatible networks over JSON-RPC.
package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/compose-network/contract-deployer/internal/address"
	"github.com/compose-network/contract-deployer/internal/chain"
	"github.com/compose-network/contract-deployer/internal/contracts"
	"github.com/compose-network/contract-deployer/internal/domain"
	"github.com/compose-network/contract-deployer/internal/logger"
	"github.com/compose-network/contract-deployer/internal/signer"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

type (
	// Backend is the subset of an RPC client needed to deploy and confirm.
	// Both *ethclient.Client and the simulated backend client satisfy it.
	Backend interface {
		bind.ContractBackend
		bind.DeployBackend
		ChainID(ctx context.Context) (*big.Int, error)
		BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	}

	Options struct {
		// ChainID, when set, must match the chain the backend is connected to.
		ChainID int64
		// GasLimit of zero lets the node estimate.
		GasLimit uint64
		Verifier chain.SourceVerifier
	}

	// Family submits creation transactions signed by a single key. Submissions
	// are serialized because they share the key's nonce sequence.
	Family struct {
		backend  Backend
		key      *signer.Key
		chainID  *big.Int
		gasLimit uint64
		verifier chain.SourceVerifier
		mu       sync.Mutex
		logger   *slog.Logger
	}
)

var _ chain.Family = (*Family)(nil)

// Dial connects to the JSON-RPC endpoint at rpcURL.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return client, nil
}

// New creates an EVM family on top of backend.
func New(ctx context.Context, backend Backend, key *signer.Key, opts Options) (*Family, error) {
	log := logger.Named("evm_family")

	log.Info("fetching chain ID")
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	if opts.ChainID != 0 && chainID.Cmp(big.NewInt(opts.ChainID)) != 0 {
		return nil, &domain.ConfigurationError{
			Kind:    domain.UnknownNetwork,
			Subject: chainID.String(),
			Err:     fmt.Errorf("RPC serves chain %s, expected %d", chainID, opts.ChainID),
		}
	}
	log.With("chain_id", chainID).With("deployer", key).Info("chain ID was fetched")

	// An unfunded deployer only fails at submission, so say it early.
	balance, err := backend.BalanceAt(ctx, key.Address(), nil)
	switch {
	case err != nil:
		log.With("err", err.Error()).Warn("failed to get deployer balance")
	case balance.Sign() == 0:
		log.With("deployer", key).Warn("deployer has no balance, submissions will be rejected")
	default:
		log.With("balance", formatEther(balance)).Info("deployer balance")
	}

	return &Family{
		backend:  backend,
		key:      key,
		chainID:  chainID,
		gasLimit: opts.GasLimit,
		verifier: opts.Verifier,
		logger:   log,
	}, nil
}

// Submit signs and sends the creation transaction for compiled.
func (f *Family) Submit(ctx context.Context, compiled contracts.CompiledContract, args domain.DeploymentArgs) (chain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	auth, err := f.key.Transactor(f.chainID)
	if err != nil {
		return chain.Submission{}, err
	}

	gasPrice, err := f.backend.SuggestGasPrice(ctx)
	if err != nil {
		return chain.Submission{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	auth.Context = ctx
	auth.GasLimit = f.gasLimit
	auth.GasPrice = gasPrice

	addr, tx, _, err := bind.DeployContract(auth, compiled.ABI, compiled.Bytecode, f.backend, args.Values()...)
	if err != nil {
		return chain.Submission{}, fmt.Errorf("failed to deploy contract: %w", err)
	}

	f.logger.
		With("contract", compiled.ID).
		With("address", addr).
		With("tx_hash", tx.Hash().Hex()).
		With("gas_price", gasPrice).
		Info("contract deployment transaction sent")

	return chain.Submission{
		Contract: compiled.ID,
		TxHash:   tx.Hash().Hex(),
		Address:  addr,
		Handle:   tx,
	}, nil
}

// WaitConfirmed waits for the receipt of the creation transaction.
func (f *Family) WaitConfirmed(ctx context.Context, sub chain.Submission) (domain.DeploymentResult, error) {
	tx, ok := sub.Handle.(*types.Transaction)
	if !ok {
		return domain.DeploymentResult{}, fmt.Errorf("submission of %s was not made by the evm family", sub.Contract)
	}

	receipt, err := bind.WaitMined(ctx, f.backend, tx)
	if err != nil {
		return domain.DeploymentResult{}, fmt.Errorf("failed to wait for transaction: %w", err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return domain.DeploymentResult{}, fmt.Errorf("%w: receipt status %d in block %s", chain.ErrReverted, receipt.Status, receipt.BlockNumber)
	}
	if receipt.ContractAddress != sub.Address {
		return domain.DeploymentResult{}, fmt.Errorf("%w: receipt reports %s, expected %s", chain.ErrUnexpectedAddress, receipt.ContractAddress, sub.Address)
	}

	f.logger.
		With("contract", sub.Contract).
		With("address", receipt.ContractAddress).
		With("block", receipt.BlockNumber).
		With("gas_used", receipt.GasUsed).
		Info("contract deployment confirmed")

	return domain.DeploymentResult{
		Contract:    sub.Contract,
		Address:     receipt.ContractAddress,
		TxHash:      sub.TxHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

func (f *Family) VerifySource(ctx context.Context, req chain.VerificationRequest) (domain.VerificationOutcome, error) {
	if f.verifier == nil {
		return domain.VerificationOutcome{Message: "no verification service configured for this network"}, nil
	}
	return f.verifier.VerifySource(ctx, req)
}

func (f *Family) Codec() address.Codec {
	return address.EVMCodec{}
}

// formatEther renders a wei amount as "1.5000 ETH (1500000000000000000 wei)".
func formatEther(wei *big.Int) string {
	eth := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		new(big.Float).SetInt(big.NewInt(1e18)),
	)
	return fmt.Sprintf("%.4f ETH (%s wei)", eth, wei.String())
}

// Close releases the backend connection when the backend owns one.
func (f *Family) Close() {
	if closer, ok := f.backend.(interface{ Close() }); ok {
		closer.Close()
	}
}
