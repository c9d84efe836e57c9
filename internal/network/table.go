package network

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"slices"
	"strings"

	"github.com/compose-network/contract-deployer/configs"
	"github.com/compose-network/contract-deployer/internal/address"
	"github.com/compose-network/contract-deployer/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

type (
	// Profile is one target network with its constructor arguments. It is
	// built once at startup and never mutated.
	Profile struct {
		Name              configs.NetworkName
		ChainClass        configs.ChainClass
		ChainID           int64
		RPCURL            string
		Signer            configs.Signer
		APIKey            configs.APIKey
		Explorer          configs.Explorer
		GasLimit          uint64
		FeeLimit          int64
		UserFeePercentage int
		OriginEnergyLimit int64
		Codec             address.Codec

		args map[domain.ContractID]domain.DeploymentArgs
	}

	// Table maps network names to profiles.
	Table struct {
		profiles map[configs.NetworkName]*Profile
	}
)

// NewTable builds a profile for every configured network. Any malformed
// argument fails the whole table so that no network ever exposes a partially
// populated tuple.
func NewTable(networks map[configs.NetworkName]configs.Network) (*Table, error) {
	table := &Table{profiles: make(map[configs.NetworkName]*Profile, len(networks))}

	var errs []error
	for name, cfg := range networks {
		profile, err := newProfile(name, cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		table.profiles[name] = profile
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return table, nil
}

// Resolve returns the constructor arguments of contract on network.
func (t *Table) Resolve(network configs.NetworkName, contract domain.ContractID) (domain.DeploymentArgs, error) {
	profile, err := t.Profile(network)
	if err != nil {
		return nil, err
	}

	args, ok := profile.args[contract]
	if !ok {
		return nil, &domain.ConfigurationError{
			Kind:    domain.UnknownContract,
			Subject: string(contract),
			Err:     fmt.Errorf("no parameters on network '%s'", network),
		}
	}

	return args, nil
}

func (t *Table) Profile(network configs.NetworkName) (*Profile, error) {
	profile, ok := t.profiles[network]
	if !ok {
		return nil, &domain.ConfigurationError{Kind: domain.UnknownNetwork, Subject: string(network)}
	}
	return profile, nil
}

// Networks returns every profile ordered by name.
func (t *Table) Networks() []*Profile {
	profiles := make([]*Profile, 0, len(t.profiles))
	for _, profile := range t.profiles {
		profiles = append(profiles, profile)
	}
	slices.SortFunc(profiles, func(a, b *Profile) int {
		return strings.Compare(string(a.Name), string(b.Name))
	})
	return profiles
}

// Contracts lists the contracts configured on the profile in declaration order.
func (p *Profile) Contracts() []domain.ContractID {
	var ids []domain.ContractID
	for _, id := range domain.Contracts {
		if _, ok := p.args[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func newProfile(name configs.NetworkName, cfg configs.Network) (*Profile, error) {
	codec, err := address.ForChainClass(cfg.ChainClass)
	if err != nil {
		return nil, &domain.ConfigurationError{Kind: domain.MalformedArgs, Subject: string(name), Err: err}
	}

	profile := &Profile{
		Name:              name,
		ChainClass:        cfg.ChainClass,
		ChainID:           cfg.ChainID,
		RPCURL:            os.ExpandEnv(cfg.RPCURL),
		Signer:            cfg.Signer,
		APIKey:            cfg.APIKey,
		Explorer:          cfg.Explorer,
		GasLimit:          cfg.GasLimit,
		FeeLimit:          cfg.FeeLimit,
		UserFeePercentage: cfg.UserFeePercentage,
		OriginEnergyLimit: cfg.OriginEnergyLimit,
		Codec:             codec,
		args:              make(map[domain.ContractID]domain.DeploymentArgs),
	}

	p := &argParser{codec: codec}

	if c := cfg.Contracts.LevelStakingPool; c != nil {
		args := &domain.StakingPoolArgs{
			Signer:        p.address("signer", c.Signer),
			TokensAllowed: p.addresses("tokens-allowed", c.TokensAllowed),
			Limits:        p.amounts("limits", c.Limits),
			WETH:          p.address("weth", c.WETH),
		}
		if len(args.Limits) != len(args.TokensAllowed) {
			p.fail(fmt.Errorf("limits has %d entries but tokens-allowed has %d", len(args.Limits), len(args.TokensAllowed)))
		}
		if err := p.done(name, domain.ContractLevelStakingPool); err != nil {
			return nil, err
		}
		profile.args[domain.ContractLevelStakingPool] = args
	}

	if c := cfg.Contracts.LevelUsdPointsFarm; c != nil {
		args := &domain.PointsFarmArgs{
			InitialOwner: p.address("initial-owner", c.InitialOwner),
		}
		if err := p.done(name, domain.ContractLevelUsdPointsFarm); err != nil {
			return nil, err
		}
		profile.args[domain.ContractLevelUsdPointsFarm] = args
	}

	if c := cfg.Contracts.ZtakingPool; c != nil {
		args := &domain.ZtakingPoolArgs{
			Signer:        p.address("signer", c.Signer),
			TokensAllowed: p.addresses("tokens-allowed", c.TokensAllowed),
			WETH:          p.address("weth", c.WETH),
		}
		if err := p.done(name, domain.ContractZtakingPool); err != nil {
			return nil, err
		}
		profile.args[domain.ContractZtakingPool] = args
	}

	return profile, nil
}

// argParser collects every field error of one contract block.
type argParser struct {
	codec address.Codec
	errs  []error
}

func (p *argParser) fail(err error) {
	p.errs = append(p.errs, err)
}

func (p *argParser) address(field, value string) common.Address {
	if strings.TrimSpace(value) == "" {
		p.fail(fmt.Errorf("%s is required", field))
		return common.Address{}
	}
	addr, err := p.codec.Parse(value)
	if err != nil {
		p.fail(fmt.Errorf("%s: %w", field, err))
	}
	return addr
}

func (p *argParser) addresses(field string, values []string) []common.Address {
	out := make([]common.Address, 0, len(values))
	for i, value := range values {
		out = append(out, p.address(fmt.Sprintf("%s[%d]", field, i), value))
	}
	return out
}

func (p *argParser) amounts(field string, values []string) []*big.Int {
	out := make([]*big.Int, 0, len(values))
	for i, value := range values {
		amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 0)
		switch {
		case !ok || amount.Sign() < 0:
			p.fail(fmt.Errorf("%s[%d]: '%s' is not a non-negative integer", field, i, value))
			amount = new(big.Int)
		case amount.Cmp(math.MaxBig256) > 0:
			p.fail(fmt.Errorf("%s[%d]: '%s' does not fit in uint256", field, i, value))
			amount = new(big.Int)
		}
		out = append(out, amount)
	}
	return out
}

func (p *argParser) done(network configs.NetworkName, contract domain.ContractID) error {
	if len(p.errs) == 0 {
		return nil
	}
	err := &domain.ConfigurationError{
		Kind:    domain.MalformedArgs,
		Subject: fmt.Sprintf("%s.%s", network, contract),
		Err:     errors.Join(p.errs...),
	}
	p.errs = nil
	return err
}
