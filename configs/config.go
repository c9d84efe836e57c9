package configs

import (
	"errors"
	"fmt"
	"time"
)

var Values Config

type (
	NetworkName string
	ChainClass  string

	Config struct {
		Network     NetworkName             `mapstructure:"network"`
		LogLevel    string                  `mapstructure:"log-level"`
		Artifacts   string                  `mapstructure:"artifacts"`
		OutputDir   string                  `mapstructure:"output-dir"`
		MetricsFile string                  `mapstructure:"metrics-file"`
		Deploy      Deploy                  `mapstructure:"deploy"`
		Networks    map[NetworkName]Network `mapstructure:"networks"`
	}

	Deploy struct {
		ConfirmationTimeout time.Duration `mapstructure:"confirmation-timeout"`
		VerificationTimeout time.Duration `mapstructure:"verification-timeout"`
		PollInterval        time.Duration `mapstructure:"poll-interval"`
		Parallelism         int           `mapstructure:"parallelism"`
		SkipVerify          bool          `mapstructure:"skip-verify"`
	}

	Network struct {
		ChainClass        ChainClass `mapstructure:"chain-class"`
		ChainID           int64      `mapstructure:"chain-id"`
		RPCURL            string     `mapstructure:"rpc-url"`
		Signer            Signer     `mapstructure:"signer"`
		APIKey            APIKey     `mapstructure:"api-key"`
		Explorer          Explorer   `mapstructure:"explorer"`
		GasLimit          uint64     `mapstructure:"gas-limit"`
		FeeLimit          int64      `mapstructure:"fee-limit"`
		UserFeePercentage int        `mapstructure:"user-fee-percentage"`
		OriginEnergyLimit int64      `mapstructure:"origin-energy-limit"`
		Contracts         Contracts  `mapstructure:"contracts"`
	}

	// Signer names where the signing key comes from. PrivateKey is only
	// decoded so that Validate can reject keys written into config files.
	Signer struct {
		KeyEnv     string `mapstructure:"key-env"`
		PrivateKey string `mapstructure:"private-key"`
	}

	// APIKey is an RPC access key sent as a request header.
	APIKey struct {
		Header string `mapstructure:"header"`
		Env    string `mapstructure:"env"`
	}

	Explorer struct {
		APIURL          string `mapstructure:"api-url"`
		APIKeyEnv       string `mapstructure:"api-key-env"`
		CompilerVersion string `mapstructure:"compiler-version"`
	}

	// Contracts holds one optional constructor-argument block per deployable
	// contract. A nil block means the contract is not configured on the network.
	Contracts struct {
		LevelStakingPool   *StakingPoolArgs `mapstructure:"level-staking-pool"`
		LevelUsdPointsFarm *PointsFarmArgs  `mapstructure:"level-usd-points-farm"`
		ZtakingPool        *ZtakingPoolArgs `mapstructure:"ztaking-pool"`
	}

	StakingPoolArgs struct {
		Signer        string   `mapstructure:"signer"`
		TokensAllowed []string `mapstructure:"tokens-allowed"`
		Limits        []string `mapstructure:"limits"`
		WETH          string   `mapstructure:"weth"`
	}

	PointsFarmArgs struct {
		InitialOwner string `mapstructure:"initial-owner"`
	}

	ZtakingPoolArgs struct {
		Signer        string   `mapstructure:"signer"`
		TokensAllowed []string `mapstructure:"tokens-allowed"`
		WETH          string   `mapstructure:"weth"`
	}
)

const (
	ChainClassEVM  ChainClass = "evm"
	ChainClassTron ChainClass = "tron"
)

func (c *Config) Validate() error {
	var errs []error

	if c.Network == "" {
		errs = append(errs, errors.New("network is required"))
	} else if _, ok := c.Networks[c.Network]; !ok {
		errs = append(errs, fmt.Errorf("network '%s' is not configured", c.Network))
	}
	if c.Artifacts == "" {
		errs = append(errs, errors.New("artifacts is required"))
	}
	if err := c.Deploy.Validate(); err != nil {
		errs = append(errs, err)
	}

	for name, network := range c.Networks {
		if err := network.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("networks.%s: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

func (d *Deploy) Validate() error {
	var errs []error

	if d.ConfirmationTimeout <= 0 {
		errs = append(errs, errors.New("deploy.confirmation-timeout must be positive"))
	}
	if d.VerificationTimeout <= 0 {
		errs = append(errs, errors.New("deploy.verification-timeout must be positive"))
	}
	if d.PollInterval <= 0 {
		errs = append(errs, errors.New("deploy.poll-interval must be positive"))
	}
	if d.Parallelism < 1 {
		errs = append(errs, errors.New("deploy.parallelism must be at least 1"))
	}

	return errors.Join(errs...)
}

func (n *Network) Validate() error {
	var errs []error

	switch n.ChainClass {
	case ChainClassEVM:
		if n.ChainID == 0 {
			errs = append(errs, errors.New("chain-id is required for evm networks"))
		}
	case ChainClassTron:
		if n.FeeLimit <= 0 {
			errs = append(errs, errors.New("fee-limit is required for tron networks"))
		}
		if n.UserFeePercentage < 0 || n.UserFeePercentage > 100 {
			errs = append(errs, errors.New("user-fee-percentage must be between 0 and 100"))
		}
	default:
		errs = append(errs, fmt.Errorf("chain-class must be either '%s' or '%s'", ChainClassEVM, ChainClassTron))
	}

	if n.RPCURL == "" {
		errs = append(errs, errors.New("rpc-url is required"))
	}
	if n.Signer.PrivateKey != "" {
		errs = append(errs, errors.New("signer.private-key must not be set in configuration, use signer.key-env"))
	}
	if n.Signer.KeyEnv == "" {
		errs = append(errs, errors.New("signer.key-env is required"))
	}
	if n.APIKey.Env != "" && n.APIKey.Header == "" {
		errs = append(errs, errors.New("api-key.header is required when api-key.env is set"))
	}

	return errors.Join(errs...)
}
