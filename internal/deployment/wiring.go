package deployment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/compose-network/contract-deployer/configs"
	"github.com/compose-network/contract-deployer/internal/chain"
	"github.com/compose-network/contract-deployer/internal/chain/etherscan"
	"github.com/compose-network/contract-deployer/internal/chain/evm"
	"github.com/compose-network/contract-deployer/internal/chain/tron"
	"github.com/compose-network/contract-deployer/internal/contracts"
	"github.com/compose-network/contract-deployer/internal/infra/filesystem/json"
	"github.com/compose-network/contract-deployer/internal/logger"
	"github.com/compose-network/contract-deployer/internal/metrics"
	"github.com/compose-network/contract-deployer/internal/network"
	"github.com/compose-network/contract-deployer/internal/output"
	"github.com/compose-network/contract-deployer/internal/signer"
)

const httpRetryMax = 3

type (
	mode int

	// session is everything one command opens against the active network.
	session struct {
		orchestrator *Orchestrator
		profile      *network.Profile
		metrics      *metrics.Recorder
		records      *output.Generator
		family       chain.Family
	}
)

const (
	modeDeploy mode = iota
	// modeVerify needs neither a signer nor an RPC connection.
	modeVerify
)

func openSession(ctx context.Context, cfg configs.Config, out io.Writer, m mode) (*session, error) {
	log := logger.Named("wiring").With("network", cfg.Network)

	table, err := network.NewTable(cfg.Networks)
	if err != nil {
		return nil, err
	}
	profile, err := table.Profile(cfg.Network)
	if err != nil {
		return nil, err
	}

	s := &session{
		profile: profile,
		metrics: metrics.NewRecorder(string(profile.Name)),
		records: output.NewGenerator(cfg.OutputDir, output.NetworkInfo{
			Name:       string(profile.Name),
			ChainClass: string(profile.ChainClass),
			ChainID:    profile.ChainID,
		}, profile.Codec, json.NewReader(), json.NewWriter()),
	}

	source := newSourceVerifier(profile, cfg.Deploy, log)
	var (
		deployer ContractDeployer
		verifier chain.SourceVerifier = source
	)

	if m == modeDeploy {
		key, err := signer.FromEnv(profile.Signer.KeyEnv)
		if err != nil {
			return nil, err
		}
		log.With("deployer", key).Info("signer loaded")

		family, err := newFamily(ctx, profile, key, source, cfg.Deploy)
		if err != nil {
			return nil, err
		}
		s.family = family
		deployer = NewDeployer(family, cfg.Deploy.ConfirmationTimeout)
		verifier = family
	}

	s.orchestrator = NewOrchestrator(
		Options{
			Network:     profile.Name,
			Codec:       profile.Codec,
			Out:         out,
			SkipVerify:  cfg.Deploy.SkipVerify,
			Parallelism: cfg.Deploy.Parallelism,
			Records:     s.records,
			Metrics:     s.metrics,
		},
		table,
		contracts.NewLoader(cfg.Artifacts, json.NewReader()),
		deployer,
		NewVerifier(verifier, profile.Codec, cfg.Deploy.VerificationTimeout),
	)

	return s, nil
}

func (s *session) close() {
	if s.family != nil {
		s.family.Close()
	}
}

func newFamily(ctx context.Context, profile *network.Profile, key *signer.Key, source chain.SourceVerifier, deploy configs.Deploy) (chain.Family, error) {
	switch profile.ChainClass {
	case configs.ChainClassEVM:
		client, err := evm.Dial(ctx, profile.RPCURL)
		if err != nil {
			return nil, err
		}
		family, err := evm.New(ctx, client, key, evm.Options{
			ChainID:  profile.ChainID,
			GasLimit: profile.GasLimit,
			Verifier: source,
		})
		if err != nil {
			client.Close()
			return nil, err
		}
		return family, nil

	case configs.ChainClassTron:
		client := tron.NewClient(tron.ClientOptions{
			BaseURL:  profile.RPCURL,
			Headers:  apiKeyHeaders(profile),
			RetryMax: httpRetryMax,
		})
		return tron.New(client, key, tron.Options{
			FeeLimit:          profile.FeeLimit,
			UserFeePercentage: profile.UserFeePercentage,
			OriginEnergyLimit: profile.OriginEnergyLimit,
			PollInterval:      deploy.PollInterval,
			Verifier:          source,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported chain class '%s'", profile.ChainClass)
	}
}

func newSourceVerifier(profile *network.Profile, deploy configs.Deploy, log *slog.Logger) *etherscan.Client {
	apiKey := ""
	if profile.Explorer.APIKeyEnv != "" {
		apiKey = os.Getenv(profile.Explorer.APIKeyEnv)
		if apiKey == "" {
			log.With("env", profile.Explorer.APIKeyEnv).Warn("explorer API key is not set, verification will likely be rejected")
		}
	}

	return etherscan.New(etherscan.Options{
		APIURL:          profile.Explorer.APIURL,
		APIKey:          apiKey,
		ChainID:         profile.ChainID,
		CompilerVersion: profile.Explorer.CompilerVersion,
		Headers:         apiKeyHeaders(profile),
		Codec:           profile.Codec,
		PollInterval:    deploy.PollInterval,
		RetryMax:        httpRetryMax,
	})
}

// apiKeyHeaders returns the RPC access-key header of the profile, if any.
func apiKeyHeaders(profile *network.Profile) map[string]string {
	if profile.APIKey.Header == "" || profile.APIKey.Env == "" {
		return nil
	}
	value := os.Getenv(profile.APIKey.Env)
	if value == "" {
		return nil
	}
	return map[string]string{profile.APIKey.Header: value}
}
