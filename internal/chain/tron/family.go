// Package tron deploys contracts to TRON networks through the TronGrid HTTP
// API. Transactions are built by the node and signed locally.
package tron

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/compose-network/contract-deployer/internal/address"
	"github.com/compose-network/contract-deployer/internal/chain"
	"github.com/compose-network/contract-deployer/internal/contracts"
	"github.com/compose-network/contract-deployer/internal/domain"
	"github.com/compose-network/contract-deployer/internal/logger"
	"github.com/compose-network/contract-deployer/internal/signer"
)

const (
	defaultFeeLimit          = 100_000_000
	defaultUserFeePercentage = 100
	defaultOriginEnergyLimit = 10_000_000
	defaultPollInterval      = 3 * time.Second

	// TRON nodes expect the recovery id shifted the way TronWeb does it.
	recoveryIDOffset = 27
)

type (
	Options struct {
		// FeeLimit is the maximum TRX burned for the deployment, in SUN.
		FeeLimit          int64
		UserFeePercentage int
		OriginEnergyLimit int64
		PollInterval      time.Duration
		Verifier          chain.SourceVerifier
	}

	Family struct {
		client *Client
		key    *signer.Key
		opts   Options
		codec  address.TronCodec
		logger *slog.Logger
	}
)

var _ chain.Family = (*Family)(nil)

// New creates a TRON family signing with key
func New(client *Client, key *signer.Key, opts Options) *Family {
	if opts.FeeLimit <= 0 {
		opts.FeeLimit = defaultFeeLimit
	}
	if opts.UserFeePercentage <= 0 {
		opts.UserFeePercentage = defaultUserFeePercentage
	}
	if opts.OriginEnergyLimit <= 0 {
		opts.OriginEnergyLimit = defaultOriginEnergyLimit
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	return &Family{
		client: client,
		key:    key,
		opts:   opts,
		logger: logger.Named("tron_family"),
	}
}

// Submit builds, signs and broadcasts the creation transaction.
func (f *Family) Submit(ctx context.Context, compiled contracts.CompiledContract, args domain.DeploymentArgs) (chain.Submission, error) {
	parameter, err := compiled.PackConstructorArgs(args)
	if err != nil {
		return chain.Submission{}, err
	}

	owner := f.key.Address()
	tx, err := f.client.DeployContract(ctx, DeployRequest{
		OwnerAddress:               address.TronHex(owner),
		ABI:                        compiled.RawABI,
		Bytecode:                   hex.EncodeToString(compiled.Bytecode),
		Parameter:                  hex.EncodeToString(parameter),
		FeeLimit:                   f.opts.FeeLimit,
		ConsumeUserResourcePercent: f.opts.UserFeePercentage,
		OriginEnergyLimit:          f.opts.OriginEnergyLimit,
		Name:                       string(compiled.ID),
	})
	if err != nil {
		return chain.Submission{}, err
	}

	contractAddr, err := f.codec.Parse(tx.ContractAddress)
	if err != nil {
		return chain.Submission{}, fmt.Errorf("node returned an invalid contract address: %w", err)
	}

	signature, err := f.sign(tx)
	if err != nil {
		return chain.Submission{}, err
	}
	tx.Signature = []string{hex.EncodeToString(signature)}

	if err := f.client.Broadcast(ctx, tx); err != nil {
		return chain.Submission{}, err
	}

	f.logger.
		With("contract", compiled.ID).
		With("owner", f.codec.Format(owner)).
		With("address", f.codec.Format(contractAddr)).
		With("tx_id", tx.TxID).
		With("fee_limit", f.opts.FeeLimit).
		Info("contract deployment transaction sent")

	return chain.Submission{
		Contract: compiled.ID,
		TxHash:   tx.TxID,
		Address:  contractAddr,
	}, nil
}

// sign checks that the node built the transaction it claims and signs its id.
func (f *Family) sign(tx Transaction) ([]byte, error) {
	raw, err := hex.DecodeString(tx.RawDataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid raw_data_hex: %w", err)
	}
	txID, err := hex.DecodeString(tx.TxID)
	if err != nil {
		return nil, fmt.Errorf("invalid txID: %w", err)
	}

	digest := sha256.Sum256(raw)
	if !bytes.Equal(digest[:], txID) {
		return nil, fmt.Errorf("txID %s does not match the transaction body", tx.TxID)
	}

	signature, err := f.key.SignHash(digest[:])
	if err != nil {
		return nil, err
	}
	signature[64] += recoveryIDOffset

	return signature, nil
}

// WaitConfirmed polls the node until the transaction is in a block.
func (f *Family) WaitConfirmed(ctx context.Context, sub chain.Submission) (domain.DeploymentResult, error) {
	ticker := time.NewTicker(f.opts.PollInterval)
	defer ticker.Stop()

	log := f.logger.With("contract", sub.Contract).With("tx_id", sub.TxHash)

	for {
		info, found, err := f.client.TransactionInfo(ctx, sub.TxHash)
		switch {
		case err != nil:
			log.With("err", err.Error()).Warn("failed to fetch transaction info")
		case found:
			return f.confirmed(sub, info)
		default:
			log.Debug("transaction not yet in a block")
		}

		select {
		case <-ctx.Done():
			return domain.DeploymentResult{}, fmt.Errorf("failed to wait for transaction: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (f *Family) confirmed(sub chain.Submission, info TransactionInfo) (domain.DeploymentResult, error) {
	if !strings.EqualFold(info.Receipt.Result, receiptResultSucceeded) {
		return domain.DeploymentResult{}, fmt.Errorf("%w: receipt result '%s' in block %d: %s",
			chain.ErrReverted, info.Receipt.Result, info.BlockNumber, decodeMessage(info.ResMessage))
	}

	addr := sub.Address
	if info.ContractAddress != "" {
		reported, err := f.codec.Parse(info.ContractAddress)
		if err != nil {
			return domain.DeploymentResult{}, fmt.Errorf("transaction info has an invalid contract address: %w", err)
		}
		if reported != sub.Address {
			return domain.DeploymentResult{}, fmt.Errorf("%w: transaction info reports %s, expected %s",
				chain.ErrUnexpectedAddress, f.codec.Format(reported), f.codec.Format(sub.Address))
		}
	}

	f.logger.
		With("contract", sub.Contract).
		With("address", f.codec.Format(addr)).
		With("block", info.BlockNumber).
		With("energy_used", info.Receipt.EnergyUsage).
		Info("contract deployment confirmed")

	return domain.DeploymentResult{
		Contract:    sub.Contract,
		Address:     addr,
		TxHash:      sub.TxHash,
		BlockNumber: info.BlockNumber,
	}, nil
}

func (f *Family) VerifySource(ctx context.Context, req chain.VerificationRequest) (domain.VerificationOutcome, error) {
	if f.opts.Verifier == nil {
		return domain.VerificationOutcome{Message: "no verification service configured for this network"}, nil
	}
	return f.opts.Verifier.VerifySource(ctx, req)
}

func (f *Family) Codec() address.Codec {
	return f.codec
}

func (f *Family) Close() {}
