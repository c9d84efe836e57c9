// Package chain defines the capabilities every chain family provides to the
// deployment pipeline: submitting a creation transaction, waiting for it to
// be mined and publishing source code for verification.
package chain

import (
	"context"
	"errors"

	"github.com/compose-network/contract-deployer/internal/address"
	"github.com/compose-network/contract-deployer/internal/contracts"
	"github.com/compose-network/contract-deployer/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// ErrReverted is returned by WaitConfirmed when the creation transaction was
// mined but failed.
var ErrReverted = errors.New("contract creation reverted")

// ErrUnexpectedAddress is returned by WaitConfirmed when the creation
// transaction was mined but created a contract at another address.
var ErrUnexpectedAddress = errors.New("contract created at an unexpected address")

type (
	// Submission identifies a creation transaction that has left the process.
	Submission struct {
		Contract domain.ContractID
		TxHash   string
		// Address is where the contract will live once mined.
		Address common.Address
		// Handle carries family specific state from Submit to WaitConfirmed.
		Handle any
	}

	VerificationRequest struct {
		Contract        contracts.CompiledContract
		Address         common.Address
		ConstructorArgs []byte
	}

	Submitter interface {
		// Submit sends exactly one creation transaction.
		Submit(ctx context.Context, compiled contracts.CompiledContract, args domain.DeploymentArgs) (Submission, error)
	}

	Waiter interface {
		// WaitConfirmed blocks until the transaction has one confirmation or
		// ctx is done. Returning early never cancels the transaction.
		WaitConfirmed(ctx context.Context, sub Submission) (domain.DeploymentResult, error)
	}

	SourceVerifier interface {
		// VerifySource is idempotent; verifying an already verified contract
		// succeeds.
		VerifySource(ctx context.Context, req VerificationRequest) (domain.VerificationOutcome, error)
	}

	// Family is the capability set of one chain class.
	Family interface {
		Submitter
		Waiter
		SourceVerifier
		Codec() address.Codec
		Close()
	}
)
