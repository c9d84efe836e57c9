package deployment

import (
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/compose-network/contract-deployer/configs"
	"github.com/compose-network/contract-deployer/internal/domain"
	"github.com/compose-network/contract-deployer/internal/network"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	DeployCMD = &cobra.Command{
		Use:   "deploy [contract...]",
		Short: "Deploy and verify contracts on the active network",
		Long: "Deploys each named contract with the constructor arguments configured for the active network, " +
			"prints its address and verifies its source. Without arguments every contract configured on the network is deployed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configs.Values
			slog.With("network", cfg.Network).With("contracts", args).Info("starting deploy command. Validating config")

			if err := cfg.Validate(); err != nil {
				return err
			}

			s, err := openSession(cmd.Context(), cfg, cmd.OutOrStdout(), modeDeploy)
			if err != nil {
				return err
			}
			defer s.close()

			ids, err := contractIDs(args, s.profile)
			if err != nil {
				return err
			}

			_, runErr := s.orchestrator.RunAll(cmd.Context(), ids...)

			if err := s.metrics.WriteTextfile(cfg.MetricsFile); err != nil {
				slog.With("err", err.Error()).Warn("failed to write metrics")
			}
			if runErr != nil {
				return runErr
			}

			slog.With("record", s.records.Path()).Info("deployment finished")

			return nil
		},
	}

	VerifyCMD = &cobra.Command{
		Use:   "verify <contract> <address>",
		Short: "Verify an already deployed contract",
		Long: "Submits the source of a deployed contract for verification using the constructor arguments " +
			"configured for the active network. Nothing is deployed.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configs.Values
			slog.With("network", cfg.Network).With("contract", args[0]).Info("starting verify command. Validating config")

			if err := cfg.Validate(); err != nil {
				return err
			}

			id, err := parseContractID(args[0])
			if err != nil {
				return err
			}

			s, err := openSession(cmd.Context(), cfg, cmd.OutOrStdout(), modeVerify)
			if err != nil {
				return err
			}
			defer s.close()

			outcome, verifyErr := s.orchestrator.Reverify(cmd.Context(), id, args[1])

			if err := s.metrics.WriteTextfile(cfg.MetricsFile); err != nil {
				slog.With("err", err.Error()).Warn("failed to write metrics")
			}
			if verifyErr != nil {
				return verifyErr
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s at %s verified: %s\n", id, args[1], outcome.Message)
			return err
		},
	}

	NetworksCMD = &cobra.Command{
		Use:   "networks",
		Short: "List configured networks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := network.NewTable(configs.Values.Networks)
			if err != nil {
				return err
			}

			return renderNetworks(cmd, table, configs.Values.Network)
		},
	}
)

func renderNetworks(cmd *cobra.Command, table *network.Table, active configs.NetworkName) error {
	writer := tablewriter.NewWriter(cmd.OutOrStdout())
	writer.Header("Active", "Name", "Class", "Chain ID", "RPC Host", "Contracts", "Verification")

	for _, profile := range table.Networks() {
		marker := ""
		if profile.Name == active {
			marker = "*"
		}

		chainID := "-"
		if profile.ChainID != 0 {
			chainID = strconv.FormatInt(profile.ChainID, 10)
		}

		contractNames := make([]string, 0, len(profile.Contracts()))
		for _, id := range profile.Contracts() {
			contractNames = append(contractNames, string(id))
		}

		verification := "none"
		if profile.Explorer.APIURL != "" {
			verification = rpcHost(profile.Explorer.APIURL)
		}

		if err := writer.Append([]string{
			marker,
			string(profile.Name),
			string(profile.ChainClass),
			chainID,
			rpcHost(profile.RPCURL),
			strings.Join(contractNames, ", "),
			verification,
		}); err != nil {
			return err
		}
	}

	return writer.Render()
}

// rpcHost keeps URLs short and keeps keys embedded in paths out of the output.
func rpcHost(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}
	return parsed.Host
}

// contractIDs parses the requested contracts, defaulting to every contract
// configured on the profile.
func contractIDs(args []string, profile *network.Profile) ([]domain.ContractID, error) {
	if len(args) == 0 {
		ids := profile.Contracts()
		if len(ids) == 0 {
			return nil, &domain.ConfigurationError{
				Kind:    domain.UnknownContract,
				Subject: string(profile.Name),
				Err:     fmt.Errorf("no contracts are configured on the network"),
			}
		}
		return ids, nil
	}

	ids := make([]domain.ContractID, 0, len(args))
	for _, arg := range args {
		id, err := parseContractID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseContractID accepts "LevelStakingPool" as well as "level-staking-pool".
func parseContractID(value string) (domain.ContractID, error) {
	normalized := normalizeContractName(value)
	for _, id := range domain.Contracts {
		if normalizeContractName(string(id)) == normalized {
			return id, nil
		}
	}
	return "", &domain.ConfigurationError{Kind: domain.UnknownContract, Subject: value}
}

func normalizeContractName(value string) string {
	return strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(strings.TrimSpace(value)))
}
