package deployment

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/compose-network/contract-deployer/configs"
	"github.com/compose-network/contract-deployer/internal/address"
	"github.com/compose-network/contract-deployer/internal/chain"
	"github.com/compose-network/contract-deployer/internal/contracts"
	"github.com/compose-network/contract-deployer/internal/domain"
	"github.com/compose-network/contract-deployer/internal/infra/filesystem/json"
	"github.com/compose-network/contract-deployer/internal/output"
	"github.com/ethereum/go-ethereum/common"
)

const artifactsPath = "../contracts/testdata/contracts.json"

var deployedAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

// fakeFamily records every call and answers from its configured errors.
type fakeFamily struct {
	mu sync.Mutex

	submitErr error
	waitErr   error
	verify    func(req chain.VerificationRequest) (domain.VerificationOutcome, error)

	submits  int
	waits    int
	verifies []chain.VerificationRequest
}

func (f *fakeFamily) Submit(_ context.Context, compiled contracts.CompiledContract, _ domain.DeploymentArgs) (chain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.submits++
	if f.submitErr != nil {
		return chain.Submission{}, f.submitErr
	}
	return chain.Submission{Contract: compiled.ID, TxHash: "0xfeed", Address: deployedAddr}, nil
}

func (f *fakeFamily) WaitConfirmed(ctx context.Context, sub chain.Submission) (domain.DeploymentResult, error) {
	f.mu.Lock()
	f.waits++
	waitErr := f.waitErr
	f.mu.Unlock()

	if errors.Is(waitErr, context.DeadlineExceeded) {
		<-ctx.Done()
		return domain.DeploymentResult{}, ctx.Err()
	}
	if waitErr != nil {
		return domain.DeploymentResult{}, waitErr
	}
	return domain.DeploymentResult{Contract: sub.Contract, Address: sub.Address, TxHash: sub.TxHash, BlockNumber: 1}, nil
}

func (f *fakeFamily) VerifySource(_ context.Context, req chain.VerificationRequest) (domain.VerificationOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.verifies = append(f.verifies, req)
	if f.verify != nil {
		return f.verify(req)
	}
	return domain.VerificationOutcome{Verified: true, Message: "Pass - Verified"}, nil
}

func (f *fakeFamily) Codec() address.Codec { return address.EVMCodec{} }

func (f *fakeFamily) Close() {}

// fakeTable resolves from a fixed map and counts lookups.
type fakeTable struct {
	mu    sync.Mutex
	args  map[domain.ContractID]domain.DeploymentArgs
	calls int
}

func (t *fakeTable) Resolve(network configs.NetworkName, contract domain.ContractID) (domain.DeploymentArgs, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls++
	if network != "sepolia" {
		return nil, &domain.ConfigurationError{Kind: domain.UnknownNetwork, Subject: string(network)}
	}
	args, ok := t.args[contract]
	if !ok {
		return nil, &domain.ConfigurationError{Kind: domain.UnknownContract, Subject: string(contract)}
	}
	return args, nil
}

func sepoliaArgs() map[domain.ContractID]domain.DeploymentArgs {
	return map[domain.ContractID]domain.DeploymentArgs{
		domain.ContractLevelStakingPool: &domain.StakingPoolArgs{
			Signer:        common.HexToAddress("0xe9AF0428143E4509df4379Bd10C4850b223F2EcB"),
			TokensAllowed: []common.Address{common.HexToAddress("0xf08a50178dfcde18524640ea6618a1f965821715")},
			Limits:        []*big.Int{big.NewInt(1)},
			WETH:          common.HexToAddress("0x7b79995e5f793a07bc00c21412e50ecae098e7f9"),
		},
		domain.ContractLevelUsdPointsFarm: &domain.PointsFarmArgs{
			InitialOwner: common.HexToAddress("0xe9AF0428143E4509df4379Bd10C4850b223F2EcB"),
		},
	}
}

// spyDeployer and spyVerifier capture the exact argument values they receive.
type spyDeployer struct {
	mu    sync.Mutex
	inner ContractDeployer
	args  []domain.DeploymentArgs
}

func (s *spyDeployer) Deploy(ctx context.Context, compiled contracts.CompiledContract, args domain.DeploymentArgs) (domain.DeploymentResult, error) {
	s.mu.Lock()
	s.args = append(s.args, args)
	s.mu.Unlock()
	return s.inner.Deploy(ctx, compiled, args)
}

type spyVerifier struct {
	mu      sync.Mutex
	inner   ContractVerifier
	args    []domain.DeploymentArgs
	results []domain.DeploymentResult
}

func (s *spyVerifier) Verify(ctx context.Context, compiled contracts.CompiledContract, result domain.DeploymentResult, args domain.DeploymentArgs) (domain.VerificationOutcome, error) {
	s.mu.Lock()
	s.args = append(s.args, args)
	s.results = append(s.results, result)
	s.mu.Unlock()
	return s.inner.Verify(ctx, compiled, result, args)
}

type memoryRecords struct {
	mu      sync.Mutex
	entries []output.Entry
	updates []output.Verification
}

func (m *memoryRecords) Save(entry output.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryRecords) UpdateVerification(_ domain.ContractID, _ string, verification output.Verification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, verification)
	return nil
}

func newLoader() *contracts.Loader {
	return contracts.NewLoader(artifactsPath, json.NewReader())
}
