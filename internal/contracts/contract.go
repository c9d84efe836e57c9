package contracts

import (
	"encoding/json"
	"fmt"

	"github.com/compose-network/contract-deployer/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

// CompiledContract is the build output of one deployable contract.
type CompiledContract struct {
	ID         domain.ContractID
	ABI        abi.ABI
	RawABI     string
	Bytecode   []byte
	SourceName string
	// StandardInput is the solc standard-JSON input submitted to the
	// verification service.
	StandardInput json.RawMessage
}

// FullyQualifiedName is "path/to/Source.sol:Name", the form verification
// services expect.
func (c CompiledContract) FullyQualifiedName() string {
	if c.SourceName == "" {
		return string(c.ID)
	}
	return fmt.Sprintf("%s:%s", c.SourceName, c.ID)
}

// CheckArgs fails when args do not belong to this contract or their count
// differs from the constructor inputs.
func (c CompiledContract) CheckArgs(args domain.DeploymentArgs) error {
	if args.Contract() != c.ID {
		return &domain.ConfigurationError{
			Kind:    domain.ArityMismatch,
			Subject: string(c.ID),
			Err:     fmt.Errorf("arguments belong to %s", args.Contract()),
		}
	}

	want := len(c.ABI.Constructor.Inputs)
	if got := len(args.Values()); got != want {
		return &domain.ConfigurationError{
			Kind:    domain.ArityMismatch,
			Subject: string(c.ID),
			Err:     fmt.Errorf("constructor takes %d arguments, got %d", want, got),
		}
	}

	return nil
}

// PackConstructorArgs ABI-encodes args against the constructor signature.
func (c CompiledContract) PackConstructorArgs(args domain.DeploymentArgs) ([]byte, error) {
	if err := c.CheckArgs(args); err != nil {
		return nil, err
	}

	packed, err := c.ABI.Pack("", args.Values()...)
	if err != nil {
		return nil, &domain.ConfigurationError{Kind: domain.MalformedArgs, Subject: string(c.ID), Err: err}
	}

	return packed, nil
}
