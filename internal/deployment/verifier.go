package deployment

import (
	"context"
	"log/slog"
	"time"

	"github.com/compose-network/contract-deployer/internal/address"
	"github.com/compose-network/contract-deployer/internal/chain"
	"github.com/compose-network/contract-deployer/internal/contracts"
	"github.com/compose-network/contract-deployer/internal/domain"
	"github.com/compose-network/contract-deployer/internal/logger"
)

// Verifier publishes the source of a deployed contract together with the
// exact constructor arguments it was created with.
type Verifier struct {
	source              chain.SourceVerifier
	codec               address.Codec
	verificationTimeout time.Duration
	logger              *slog.Logger
}

func NewVerifier(source chain.SourceVerifier, codec address.Codec, verificationTimeout time.Duration) *Verifier {
	return &Verifier{
		source:              source,
		codec:               codec,
		verificationTimeout: verificationTimeout,
		logger:              logger.Named("contract_verifier"),
	}
}

// Verify encodes args against the constructor of compiled and submits them
// for the contract at result.Address. Any outcome other than verified is
// returned as a *domain.VerificationError alongside the outcome.
func (v *Verifier) Verify(ctx context.Context, compiled contracts.CompiledContract, result domain.DeploymentResult, args domain.DeploymentArgs) (domain.VerificationOutcome, error) {
	encoded, err := compiled.PackConstructorArgs(args)
	if err != nil {
		return domain.VerificationOutcome{}, err
	}

	addr := v.codec.Format(result.Address)
	log := v.logger.With("contract", compiled.ID).With("address", addr)
	log.Info("verifying contract source")

	if v.verificationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.verificationTimeout)
		defer cancel()
	}

	outcome, err := v.source.VerifySource(ctx, chain.VerificationRequest{
		Contract:        compiled,
		Address:         result.Address,
		ConstructorArgs: encoded,
	})
	if err != nil {
		log.With("err", err.Error()).Error("verification request failed")
		return outcome, &domain.VerificationError{Contract: compiled.ID, Address: addr, Err: err}
	}
	if !outcome.Verified {
		log.With("message", outcome.Message).Error("verification rejected")
		return outcome, &domain.VerificationError{Contract: compiled.ID, Address: addr, Message: outcome.Message}
	}

	log.With("message", outcome.Message).Info("contract verified")

	return outcome, nil
}
