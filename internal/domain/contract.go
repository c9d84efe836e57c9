package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type ContractID string

const (
	ContractLevelStakingPool   ContractID = "LevelStakingPool"
	ContractLevelUsdPointsFarm ContractID = "LevelUsdPointsFarm"
	ContractZtakingPool        ContractID = "ZtakingPool"
)

// Contracts lists every deployable contract the deployer knows a constructor for.
var Contracts = []ContractID{
	ContractLevelStakingPool,
	ContractLevelUsdPointsFarm,
	ContractZtakingPool,
}

// KnownContract reports whether id names one of Contracts.
func KnownContract(id ContractID) bool {
	for _, known := range Contracts {
		if known == id {
			return true
		}
	}
	return false
}

type (
	// DeploymentArgs is the constructor tuple of one contract. Each contract
	// has its own variant so that argument shapes never leak into each other.
	DeploymentArgs interface {
		Contract() ContractID
		// Values returns the constructor arguments in declaration order,
		// typed for ABI packing.
		Values() []any
		// Describe returns the same arguments by name for logs and records.
		Describe() []NamedValue
	}

	NamedValue struct {
		Name  string
		Value any
	}

	// StakingPoolArgs is constructor(address signer, address[] tokensAllowed, uint256[] limits, address weth).
	StakingPoolArgs struct {
		Signer        common.Address
		TokensAllowed []common.Address
		Limits        []*big.Int
		WETH          common.Address
	}

	// PointsFarmArgs is constructor(address initialOwner).
	PointsFarmArgs struct {
		InitialOwner common.Address
	}

	// ZtakingPoolArgs is constructor(address signer, address[] tokensAllowed, address weth).
	ZtakingPoolArgs struct {
		Signer        common.Address
		TokensAllowed []common.Address
		WETH          common.Address
	}
)

func (a *StakingPoolArgs) Contract() ContractID { return ContractLevelStakingPool }

func (a *StakingPoolArgs) Values() []any {
	return []any{a.Signer, a.TokensAllowed, a.Limits, a.WETH}
}

func (a *StakingPoolArgs) Describe() []NamedValue {
	return []NamedValue{
		{Name: "signer", Value: a.Signer},
		{Name: "tokensAllowed", Value: a.TokensAllowed},
		{Name: "limits", Value: a.Limits},
		{Name: "weth", Value: a.WETH},
	}
}

func (a *PointsFarmArgs) Contract() ContractID { return ContractLevelUsdPointsFarm }

func (a *PointsFarmArgs) Values() []any {
	return []any{a.InitialOwner}
}

func (a *PointsFarmArgs) Describe() []NamedValue {
	return []NamedValue{{Name: "initialOwner", Value: a.InitialOwner}}
}

func (a *ZtakingPoolArgs) Contract() ContractID { return ContractZtakingPool }

func (a *ZtakingPoolArgs) Values() []any {
	return []any{a.Signer, a.TokensAllowed, a.WETH}
}

func (a *ZtakingPoolArgs) Describe() []NamedValue {
	return []NamedValue{
		{Name: "signer", Value: a.Signer},
		{Name: "tokensAllowed", Value: a.TokensAllowed},
		{Name: "weth", Value: a.WETH},
	}
}
