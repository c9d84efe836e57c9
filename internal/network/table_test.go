package network

import (
	"errors"
	"math/big"
	"testing"

	"github.com/compose-network/contract-deployer/configs"
	"github.com/compose-network/contract-deployer/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable(configs.MustDefaultConfig().Networks)
	require.NoError(t, err)
	return table
}

func TestResolveSepoliaStakingPool(t *testing.T) {
	table := defaultTable(t)

	args, err := table.Resolve("sepolia", domain.ContractLevelStakingPool)
	require.NoError(t, err)

	pool, ok := args.(*domain.StakingPoolArgs)
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0xe9AF0428143E4509df4379Bd10C4850b223F2EcB"), pool.Signer)
	assert.Equal(t, []common.Address{common.HexToAddress("0xf08a50178dfcde18524640ea6618a1f965821715")}, pool.TokensAllowed)
	assert.Equal(t, []*big.Int{big.NewInt(1)}, pool.Limits)
	assert.Equal(t, common.HexToAddress("0x7b79995e5f793a07bc00c21412e50ecae098e7f9"), pool.WETH)
	assert.Len(t, args.Values(), 4)
}

func TestResolveReturnsSameInstance(t *testing.T) {
	table := defaultTable(t)

	first, err := table.Resolve("mainnet", domain.ContractLevelUsdPointsFarm)
	require.NoError(t, err)
	second, err := table.Resolve("mainnet", domain.ContractLevelUsdPointsFarm)
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestResolveTronArgs(t *testing.T) {
	table := defaultTable(t)

	args, err := table.Resolve("shasta", domain.ContractLevelStakingPool)
	require.NoError(t, err)

	pool := args.(*domain.StakingPoolArgs)
	profile, err := table.Profile("shasta")
	require.NoError(t, err)
	assert.Equal(t, "TSKRuchx7iyQZucrmXNhk3wPmRNP1L2mZk", profile.Codec.Format(pool.Signer))
	assert.Equal(t, "100000000000000", pool.Limits[0].String())
}

func TestResolveErrors(t *testing.T) {
	table := defaultTable(t)

	tests := []struct {
		name     string
		network  configs.NetworkName
		contract domain.ContractID
		wantKind domain.ConfigurationErrorKind
	}{
		{name: "unknown network", network: "unknown-chain", contract: domain.ContractLevelStakingPool, wantKind: domain.UnknownNetwork},
		{name: "contract not on network", network: "sepolia", contract: domain.ContractZtakingPool, wantKind: domain.UnknownContract},
		{name: "tron network without contracts", network: "tron", contract: domain.ContractLevelStakingPool, wantKind: domain.UnknownContract},
		{name: "unknown contract", network: "sepolia", contract: "Nope", wantKind: domain.UnknownContract},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := table.Resolve(tt.network, tt.contract)
			assert.Nil(t, args)

			var cfgErr *domain.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.wantKind, cfgErr.Kind)
		})
	}
}

func TestEveryResolvedTupleIsComplete(t *testing.T) {
	table := defaultTable(t)

	arity := map[domain.ContractID]int{
		domain.ContractLevelStakingPool:   4,
		domain.ContractLevelUsdPointsFarm: 1,
		domain.ContractZtakingPool:        3,
	}

	for _, profile := range table.Networks() {
		for _, contract := range domain.Contracts {
			args, err := table.Resolve(profile.Name, contract)
			if err != nil {
				var cfgErr *domain.ConfigurationError
				assert.True(t, errors.As(err, &cfgErr), "%s/%s", profile.Name, contract)
				continue
			}
			assert.Len(t, args.Values(), arity[contract], "%s/%s", profile.Name, contract)
			assert.Equal(t, contract, args.Contract())
		}
	}
}

func TestNewTableRejectsMalformedArgs(t *testing.T) {
	base := configs.Network{
		ChainClass: configs.ChainClassEVM,
		ChainID:    1,
		RPCURL:     "http://localhost:8545",
		Signer:     configs.Signer{KeyEnv: "PRIVATE_KEY"},
	}

	tests := []struct {
		name      string
		contracts configs.Contracts
		wantErr   string
	}{
		{
			name: "bad signer",
			contracts: configs.Contracts{LevelUsdPointsFarm: &configs.PointsFarmArgs{
				InitialOwner: "0x1234",
			}},
			wantErr: "initial-owner",
		},
		{
			name: "missing weth",
			contracts: configs.Contracts{ZtakingPool: &configs.ZtakingPoolArgs{
				Signer: "0xe9AF0428143E4509df4379Bd10C4850b223F2EcB",
			}},
			wantErr: "weth is required",
		},
		{
			name: "negative limit",
			contracts: configs.Contracts{LevelStakingPool: &configs.StakingPoolArgs{
				Signer:        "0xe9AF0428143E4509df4379Bd10C4850b223F2EcB",
				TokensAllowed: []string{"0xf08a50178dfcde18524640ea6618a1f965821715"},
				Limits:        []string{"-1"},
				WETH:          "0x7b79995e5f793a07bc00c21412e50ecae098e7f9",
			}},
			wantErr: "limits[0]",
		},
		{
			name: "limit above uint256",
			contracts: configs.Contracts{LevelStakingPool: &configs.StakingPoolArgs{
				Signer:        "0xe9AF0428143E4509df4379Bd10C4850b223F2EcB",
				TokensAllowed: []string{"0xf08a50178dfcde18524640ea6618a1f965821715"},
				Limits:        []string{"115792089237316195423570985008687907853269984665640564039457584007913129639936"},
				WETH:          "0x7b79995e5f793a07bc00c21412e50ecae098e7f9",
			}},
			wantErr: "does not fit in uint256",
		},
		{
			name: "bad initial owner checksum",
			contracts: configs.Contracts{LevelUsdPointsFarm: &configs.PointsFarmArgs{
				InitialOwner: "0xE9af0428143E4509df4379Bd10C4850b223F2EcB",
			}},
			wantErr: "invalid address checksum",
		},
		{
			name: "limits do not pair with tokens",
			contracts: configs.Contracts{LevelStakingPool: &configs.StakingPoolArgs{
				Signer:        "0xe9AF0428143E4509df4379Bd10C4850b223F2EcB",
				TokensAllowed: []string{"0xf08a50178dfcde18524640ea6618a1f965821715"},
				Limits:        []string{"1", "2"},
				WETH:          "0x7b79995e5f793a07bc00c21412e50ecae098e7f9",
			}},
			wantErr: "limits has 2 entries but tokens-allowed has 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.Contracts = tt.contracts

			table, err := NewTable(map[configs.NetworkName]configs.Network{"local": cfg})
			assert.Nil(t, table)

			var cfgErr *domain.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, domain.MalformedArgs, cfgErr.Kind)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProfileExpandsRPCURL(t *testing.T) {
	t.Setenv("ALCHEMY_API_KEY", "secret")
	table := defaultTable(t)

	profile, err := table.Profile("sepolia")
	require.NoError(t, err)
	assert.Equal(t, "https://eth-sepolia.g.alchemy.com/v2/secret", profile.RPCURL)
	assert.Equal(t, []domain.ContractID{domain.ContractLevelStakingPool, domain.ContractLevelUsdPointsFarm}, profile.Contracts())
}
