package domain

import (
	"github.com/ethereum/go-ethereum/common"
)

type (
	// DeploymentResult is a confirmed contract creation.
	DeploymentResult struct {
		Contract    ContractID
		Address     common.Address
		TxHash      string
		BlockNumber uint64
	}

	// VerificationOutcome is the terminal answer of the verification service.
	VerificationOutcome struct {
		Verified bool
		Message  string
		GUID     string
	}
)
