package deployment

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/compose-network/contract-deployer/configs"
	"github.com/compose-network/contract-deployer/internal/address"
	"github.com/compose-network/contract-deployer/internal/chain"
	"github.com/compose-network/contract-deployer/internal/domain"
	"github.com/compose-network/contract-deployer/internal/metrics"
	"github.com/compose-network/contract-deployer/internal/output"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	family   *fakeFamily
	table    *fakeTable
	deployer *spyDeployer
	verifier *spyVerifier
	records  *memoryRecords
	metrics  *metrics.Recorder
	out      *bytes.Buffer
}

func newHarness(family *fakeFamily) *harness {
	return &harness{
		family:   family,
		table:    &fakeTable{args: sepoliaArgs()},
		deployer: &spyDeployer{inner: NewDeployer(family, time.Second)},
		verifier: &spyVerifier{inner: NewVerifier(family, family.Codec(), time.Second)},
		records:  &memoryRecords{},
		metrics:  metrics.NewRecorder("sepolia"),
		out:      &bytes.Buffer{},
	}
}

func (h *harness) orchestrator(network configs.NetworkName, mutate ...func(*Options)) *Orchestrator {
	opts := Options{
		Network: network,
		Codec:   address.EVMCodec{},
		Out:     h.out,
		Records: h.records,
		Metrics: h.metrics,
	}
	for _, m := range mutate {
		m(&opts)
	}
	return NewOrchestrator(opts, h.table, newLoader(), h.deployer, h.verifier)
}

func TestRunSepoliaStakingPool(t *testing.T) {
	h := newHarness(&fakeFamily{})

	run, err := h.orchestrator("sepolia").Run(context.Background(), domain.ContractLevelStakingPool)
	require.NoError(t, err)

	assert.Equal(t, StateVerified, run.State)
	require.NotNil(t, run.Result)
	assert.Equal(t, deployedAddr, run.Result.Address)
	assert.NotEqual(t, common.Address{}, run.Result.Address)
	require.NotNil(t, run.Verification)
	assert.True(t, run.Verification.Verified)

	args, ok := run.Args.(*domain.StakingPoolArgs)
	require.True(t, ok)
	assert.Equal(t, "0xe9AF0428143E4509df4379Bd10C4850b223F2EcB", args.Signer.Hex())
	assert.Equal(t, "1", args.Limits[0].String())

	// The verifier sees the very instance resolved for the deployment.
	require.Len(t, h.deployer.args, 1)
	require.Len(t, h.verifier.args, 1)
	assert.Same(t, h.deployer.args[0], h.verifier.args[0])
	assert.Same(t, run.Args, h.verifier.args[0])
	assert.Equal(t, deployedAddr, h.verifier.results[0].Address)

	assert.Equal(t, "LevelStakingPool deployed to: "+deployedAddr.Hex()+"\n", h.out.String())

	require.Len(t, h.records.entries, 2)
	assert.Equal(t, output.VerificationNotVerified, h.records.entries[0].Verification.Status)
	assert.Equal(t, output.VerificationVerified, h.records.entries[1].Verification.Status)
}

func TestRunUnknownNetworkHalts(t *testing.T) {
	h := newHarness(&fakeFamily{})

	run, err := h.orchestrator("unknown-chain").Run(context.Background(), domain.ContractLevelStakingPool)

	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, domain.UnknownNetwork, cfgErr.Kind)
	assert.Equal(t, StateFailed, run.State)

	assert.Empty(t, h.deployer.args)
	assert.Empty(t, h.verifier.args)
	assert.Zero(t, h.family.submits)
	assert.Empty(t, h.out.String())
	assert.Empty(t, h.records.entries)
}

func TestRunUnknownContractHalts(t *testing.T) {
	h := newHarness(&fakeFamily{})

	_, err := h.orchestrator("sepolia").Run(context.Background(), domain.ContractZtakingPool)

	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, domain.UnknownContract, cfgErr.Kind)
	assert.Zero(t, h.family.submits)
	assert.Empty(t, h.verifier.args)
}

func TestRunArityMismatchHaltsBeforeSubmission(t *testing.T) {
	h := newHarness(&fakeFamily{})
	h.table.args[domain.ContractLevelStakingPool] = &domain.PointsFarmArgs{}

	_, err := h.orchestrator("sepolia").Run(context.Background(), domain.ContractLevelStakingPool)

	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, domain.ArityMismatch, cfgErr.Kind)
	assert.Zero(t, h.family.submits)
}

func TestRunDeployFailureSkipsVerification(t *testing.T) {
	h := newHarness(&fakeFamily{submitErr: errors.New("nonce too low")})
	orchestrator := h.orchestrator("sepolia")

	run, err := orchestrator.Run(context.Background(), domain.ContractLevelUsdPointsFarm)
	var subErr *domain.SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, StateFailed, run.State)
	assert.Nil(t, run.Result)
	assert.Empty(t, h.verifier.args)
	assert.Empty(t, h.out.String())

	// A retried invocation inside the same run returns the recorded error.
	again, againErr := orchestrator.Run(context.Background(), domain.ContractLevelUsdPointsFarm)
	assert.Equal(t, err, againErr)
	assert.Equal(t, StateFailed, again.State)
	assert.Equal(t, 1, h.family.submits)

	count, err := testutil.GatherAndCount(h.metrics.Registry(), "contract_deployer_deployments_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunVerificationFailureKeepsAddress(t *testing.T) {
	h := newHarness(&fakeFamily{verify: func(chain.VerificationRequest) (domain.VerificationOutcome, error) {
		return domain.VerificationOutcome{Message: "Fail - Unable to verify"}, nil
	}})

	run, err := h.orchestrator("sepolia").Run(context.Background(), domain.ContractLevelUsdPointsFarm)

	var verErr *domain.VerificationError
	require.True(t, errors.As(err, &verErr))
	assert.Equal(t, StateFailed, run.State)
	require.NotNil(t, run.Result)
	assert.Equal(t, deployedAddr, run.Result.Address)
	assert.Contains(t, h.out.String(), deployedAddr.Hex())

	last := h.records.entries[len(h.records.entries)-1]
	assert.Equal(t, output.VerificationFailed, last.Verification.Status)
	assert.Equal(t, deployedAddr, last.Result.Address)
}

func TestRunTwiceDeploysOnce(t *testing.T) {
	h := newHarness(&fakeFamily{})
	orchestrator := h.orchestrator("sepolia")

	first, err := orchestrator.Run(context.Background(), domain.ContractLevelUsdPointsFarm)
	require.NoError(t, err)
	second, err := orchestrator.Run(context.Background(), domain.ContractLevelUsdPointsFarm)
	require.NoError(t, err)

	assert.Equal(t, 1, h.family.submits)
	assert.Len(t, h.verifier.args, 2)
	assert.Same(t, h.verifier.args[0], h.verifier.args[1])
	assert.Equal(t, first.Result.Address, second.Result.Address)
	assert.Equal(t, 1, strings.Count(h.out.String(), "deployed to"))
}

func TestRunSkipVerify(t *testing.T) {
	h := newHarness(&fakeFamily{})

	run, err := h.orchestrator("sepolia", func(o *Options) { o.SkipVerify = true }).
		Run(context.Background(), domain.ContractLevelUsdPointsFarm)
	require.NoError(t, err)

	assert.Equal(t, StateDeployed, run.State)
	assert.Empty(t, h.verifier.args)
	require.Len(t, h.records.entries, 1)
	assert.Equal(t, output.VerificationSkipped, h.records.entries[0].Verification.Status)
}

func TestRunConfirmationTimeoutIsNotRetried(t *testing.T) {
	family := &fakeFamily{waitErr: context.DeadlineExceeded}
	h := newHarness(family)
	h.deployer.inner = NewDeployer(family, 20*time.Millisecond)
	orchestrator := h.orchestrator("sepolia")

	_, err := orchestrator.Run(context.Background(), domain.ContractLevelUsdPointsFarm)
	var timeoutErr *domain.ConfirmationTimeoutError
	require.True(t, errors.As(err, &timeoutErr))

	_, err = orchestrator.Run(context.Background(), domain.ContractLevelUsdPointsFarm)
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, 1, family.submits)
	assert.Empty(t, h.verifier.args)
}

func TestRunAll(t *testing.T) {
	h := newHarness(&fakeFamily{})
	orchestrator := h.orchestrator("sepolia", func(o *Options) { o.Parallelism = 2 })

	runs, err := orchestrator.RunAll(context.Background(),
		domain.ContractLevelStakingPool,
		domain.ContractLevelUsdPointsFarm,
		domain.ContractLevelStakingPool,
	)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, StateVerified, run.State)
	}
	assert.Equal(t, 2, h.family.submits)
}

func TestRunAllHaltsAfterResolutionFailure(t *testing.T) {
	h := newHarness(&fakeFamily{})
	orchestrator := h.orchestrator("sepolia")

	runs, err := orchestrator.RunAll(context.Background(),
		domain.ContractZtakingPool,
		domain.ContractLevelUsdPointsFarm,
	)

	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Len(t, runs, 1)
	assert.Equal(t, domain.ContractZtakingPool, runs[0].Contract)
	assert.Zero(t, h.family.submits)
}

func TestRunAllContinuesAfterVerificationFailure(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	h := newHarness(&fakeFamily{verify: func(chain.VerificationRequest) (domain.VerificationOutcome, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return domain.VerificationOutcome{Message: "Fail - Unable to verify"}, nil
		}
		return domain.VerificationOutcome{Verified: true}, nil
	}})

	runs, err := h.orchestrator("sepolia").RunAll(context.Background(),
		domain.ContractLevelStakingPool,
		domain.ContractLevelUsdPointsFarm,
	)

	var verErr *domain.VerificationError
	require.True(t, errors.As(err, &verErr))
	require.Len(t, runs, 2)
	assert.Equal(t, StateFailed, runs[0].State)
	assert.Equal(t, StateVerified, runs[1].State)
	assert.Equal(t, 2, h.family.submits)
}

func TestReverifyUsesResolvedArgs(t *testing.T) {
	h := newHarness(&fakeFamily{})
	orchestrator := h.orchestrator("sepolia")

	outcome, err := orchestrator.Reverify(context.Background(), domain.ContractLevelStakingPool, deployedAddr.Hex())
	require.NoError(t, err)
	assert.True(t, outcome.Verified)

	assert.Zero(t, h.family.submits)
	require.Len(t, h.verifier.args, 1)
	resolved, err := h.table.Resolve("sepolia", domain.ContractLevelStakingPool)
	require.NoError(t, err)
	assert.Same(t, resolved, h.verifier.args[0])
	require.Len(t, h.records.updates, 1)
	assert.Equal(t, output.VerificationVerified, h.records.updates[0].Status)
}

func TestReverifyRejectsMalformedAddress(t *testing.T) {
	h := newHarness(&fakeFamily{})

	_, err := h.orchestrator("sepolia").Reverify(context.Background(), domain.ContractLevelStakingPool, "not-an-address")

	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, domain.MalformedArgs, cfgErr.Kind)
	assert.Empty(t, h.verifier.args)
}

func TestVerifyOnlyOrchestratorRefusesToDeploy(t *testing.T) {
	h := newHarness(&fakeFamily{})
	orchestrator := NewOrchestrator(Options{Network: "sepolia"}, h.table, newLoader(), nil, h.verifier)

	_, err := orchestrator.Run(context.Background(), domain.ContractLevelUsdPointsFarm)
	require.ErrorIs(t, err, errVerifyOnly)
	assert.Zero(t, h.family.submits)
}
