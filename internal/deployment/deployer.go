package deployment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/compose-network/contract-deployer/internal/address"
	"github.com/compose-network/contract-deployer/internal/chain"
	"github.com/compose-network/contract-deployer/internal/contracts"
	"github.com/compose-network/contract-deployer/internal/domain"
	"github.com/compose-network/contract-deployer/internal/logger"
)

type (
	// SubmitWaiter is the part of a chain family the deployer drives.
	SubmitWaiter interface {
		chain.Submitter
		chain.Waiter
		Codec() address.Codec
	}

	// Deployer sends one creation transaction per call and waits for it.
	Deployer struct {
		family              SubmitWaiter
		confirmationTimeout time.Duration
		logger              *slog.Logger
	}
)

// NewDeployer creates a deployer on top of family
func NewDeployer(family SubmitWaiter, confirmationTimeout time.Duration) *Deployer {
	return &Deployer{
		family:              family,
		confirmationTimeout: confirmationTimeout,
		logger:              logger.Named("contract_deployer"),
	}
}

// Deploy submits compiled with args and blocks until the transaction has one
// confirmation or the confirmation timeout passes. It never resubmits.
func (d *Deployer) Deploy(ctx context.Context, compiled contracts.CompiledContract, args domain.DeploymentArgs) (domain.DeploymentResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.DeploymentResult{}, fmt.Errorf("deployment of %s cancelled before submission: %w", compiled.ID, err)
	}

	log := d.logger.With("contract", compiled.ID)
	log.Info("submitting contract creation")

	sub, err := d.family.Submit(ctx, compiled, args)
	if err != nil {
		var cfgErr *domain.ConfigurationError
		if errors.As(err, &cfgErr) {
			return domain.DeploymentResult{}, err
		}
		return domain.DeploymentResult{}, &domain.SubmissionError{Contract: compiled.ID, Err: err}
	}

	codec := d.family.Codec()
	log = log.With("tx_hash", sub.TxHash).With("address", codec.Format(sub.Address))
	log.With("timeout", d.confirmationTimeout).Info("waiting for confirmation")

	waitCtx := ctx
	if d.confirmationTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, d.confirmationTimeout)
		defer cancel()
	}

	result, err := d.family.WaitConfirmed(waitCtx, sub)
	if err != nil {
		if errors.Is(err, chain.ErrReverted) || errors.Is(err, chain.ErrUnexpectedAddress) {
			log.With("err", err.Error()).Error("contract creation was mined but did not produce the expected contract")
			return domain.DeploymentResult{}, &domain.SubmissionError{Contract: compiled.ID, TxHash: sub.TxHash, Err: err}
		}

		log.With("err", err.Error()).Error("confirmation did not arrive, transaction status is indeterminate")
		return domain.DeploymentResult{}, &domain.ConfirmationTimeoutError{
			Contract: compiled.ID,
			TxHash:   sub.TxHash,
			Address:  codec.Format(sub.Address),
			Err:      err,
		}
	}

	log.With("block", result.BlockNumber).Info("contract deployed")

	return result, nil
}
