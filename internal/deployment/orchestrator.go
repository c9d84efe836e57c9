package deployment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/compose-network/contract-deployer/configs"
	"github.com/compose-network/contract-deployer/internal/address"
	"github.com/compose-network/contract-deployer/internal/contracts"
	"github.com/compose-network/contract-deployer/internal/domain"
	"github.com/compose-network/contract-deployer/internal/logger"
	"github.com/compose-network/contract-deployer/internal/metrics"
	"github.com/compose-network/contract-deployer/internal/output"
	"golang.org/x/sync/errgroup"
)

type State string

const (
	StateIdle           State = "idle"
	StateParamsResolved State = "params_resolved"
	StateDeployed       State = "deployed"
	StateVerified       State = "verified"
	StateFailed         State = "failed"
)

var errVerifyOnly = errors.New("deployer is not configured, only verification is available")

type (
	Resolver interface {
		Resolve(network configs.NetworkName, contract domain.ContractID) (domain.DeploymentArgs, error)
	}

	ArtifactLoader interface {
		Load(id domain.ContractID) (contracts.CompiledContract, error)
	}

	ContractDeployer interface {
		Deploy(ctx context.Context, compiled contracts.CompiledContract, args domain.DeploymentArgs) (domain.DeploymentResult, error)
	}

	ContractVerifier interface {
		Verify(ctx context.Context, compiled contracts.CompiledContract, result domain.DeploymentResult, args domain.DeploymentArgs) (domain.VerificationOutcome, error)
	}

	RecordSaver interface {
		Save(entry output.Entry) error
		UpdateVerification(contract domain.ContractID, addr string, verification output.Verification) error
	}

	Options struct {
		Network configs.NetworkName
		Codec   address.Codec
		// Out receives deployed addresses, one line per contract.
		Out         io.Writer
		SkipVerify  bool
		Parallelism int
		Records     RecordSaver
		Metrics     *metrics.Recorder
	}

	// Run is a snapshot of the pipeline of one contract.
	Run struct {
		Contract     domain.ContractID
		State        State
		Args         domain.DeploymentArgs
		Result       *domain.DeploymentResult
		Verification *domain.VerificationOutcome
		Err          error
	}

	// Orchestrator drives resolve, deploy and verify for the contracts of one
	// network. It deploys each contract at most once for its whole lifetime.
	Orchestrator struct {
		opts      Options
		resolver  Resolver
		artifacts ArtifactLoader
		deployer  ContractDeployer
		verifier  ContractVerifier
		logger    *slog.Logger

		mu      sync.Mutex
		entries map[domain.ContractID]*entry
	}

	entry struct {
		mu        sync.Mutex
		run       Run
		compiled  contracts.CompiledContract
		submitted bool
	}
)

// NewOrchestrator wires the pipeline. deployer may be nil when the
// orchestrator is only used for Reverify.
func NewOrchestrator(opts Options, resolver Resolver, artifacts ArtifactLoader, deployer ContractDeployer, verifier ContractVerifier) *Orchestrator {
	if opts.Codec == nil {
		opts.Codec = address.EVMCodec{}
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}

	return &Orchestrator{
		opts:      opts,
		resolver:  resolver,
		artifacts: artifacts,
		deployer:  deployer,
		verifier:  verifier,
		logger:    logger.Named("orchestrator").With("network", opts.Network),
		entries:   make(map[domain.ContractID]*entry),
	}
}

// Run deploys and verifies one contract. Calling it again for a contract that
// is already deployed only repeats verification; calling it again after a
// submission failed returns the recorded error.
func (o *Orchestrator) Run(ctx context.Context, id domain.ContractID) (*Run, error) {
	e := o.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	log := o.logger.With("contract", id)

	switch {
	case e.run.Result != nil:
		log.Info("contract already deployed in this run, repeating verification only")
		if o.opts.SkipVerify {
			return e.snapshot(), nil
		}
		err := o.verify(ctx, e)
		return e.snapshot(), err
	case e.submitted:
		log.Warn("a submission was already attempted in this run, not deploying again")
		return e.snapshot(), e.run.Err
	}

	e.run = Run{Contract: id, State: StateIdle}

	args, err := o.resolver.Resolve(o.opts.Network, id)
	if err != nil {
		return o.fail(e, err)
	}
	e.run.Args = args
	e.run.State = StateParamsResolved
	log.With("args", describe(o.opts.Codec, args)).Info("deployment parameters resolved")

	compiled, err := o.artifacts.Load(id)
	if err != nil {
		return o.fail(e, err)
	}
	if err := compiled.CheckArgs(args); err != nil {
		return o.fail(e, err)
	}
	e.compiled = compiled

	if o.deployer == nil {
		return o.fail(e, errVerifyOnly)
	}
	if err := ctx.Err(); err != nil {
		return o.fail(e, err)
	}

	started := time.Now()
	result, err := o.deployer.Deploy(ctx, compiled, args)
	e.submitted = err == nil || submissionAttempted(err)
	o.opts.Metrics.ObserveDeployment(string(id), deploymentOutcome(err), time.Since(started))
	if err != nil {
		return o.fail(e, err)
	}

	e.run.Result = &result
	e.run.State = StateDeployed

	if _, err := fmt.Fprintf(o.opts.Out, "%s deployed to: %s\n", id, o.opts.Codec.Format(result.Address)); err != nil {
		log.With("err", err.Error()).Warn("failed to print deployed address")
	}

	if o.opts.SkipVerify {
		o.opts.Metrics.ObserveVerification(string(id), metrics.OutcomeSkipped)
		o.save(e, output.Verification{Status: output.VerificationSkipped})
		return e.snapshot(), nil
	}
	o.save(e, output.Verification{Status: output.VerificationNotVerified})

	err = o.verify(ctx, e)
	return e.snapshot(), err
}

// RunAll runs every distinct contract in ids, at most Parallelism at a time.
// Once a contract fails to resolve or deploy, contracts that have not started
// are skipped. Verification failures do not stop the others.
func (o *Orchestrator) RunAll(ctx context.Context, ids ...domain.ContractID) ([]*Run, error) {
	ids = distinct(ids)
	runs := make([]*Run, len(ids))

	var (
		halted atomic.Bool
		errsMu sync.Mutex
		errs   []error
	)

	var group errgroup.Group
	group.SetLimit(o.opts.Parallelism)

	for i, id := range ids {
		group.Go(func() error {
			if halted.Load() {
				o.logger.With("contract", id).Warn("skipping contract after an earlier failure")
				return nil
			}

			run, err := o.Run(ctx, id)
			runs[i] = run
			if err != nil {
				var verErr *domain.VerificationError
				if !errors.As(err, &verErr) {
					halted.Store(true)
				}
				errsMu.Lock()
				errs = append(errs, err)
				errsMu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()

	started := make([]*Run, 0, len(runs))
	for _, run := range runs {
		if run != nil {
			started = append(started, run)
		}
	}

	return started, errors.Join(errs...)
}

// Reverify verifies an existing deployment at rawAddress using the
// constructor arguments the table resolves for id.
func (o *Orchestrator) Reverify(ctx context.Context, id domain.ContractID, rawAddress string) (domain.VerificationOutcome, error) {
	log := o.logger.With("contract", id).With("address", rawAddress)

	addr, err := o.opts.Codec.Parse(rawAddress)
	if err != nil {
		return domain.VerificationOutcome{}, &domain.ConfigurationError{Kind: domain.MalformedArgs, Subject: rawAddress, Err: err}
	}

	args, err := o.resolver.Resolve(o.opts.Network, id)
	if err != nil {
		return domain.VerificationOutcome{}, err
	}
	compiled, err := o.artifacts.Load(id)
	if err != nil {
		return domain.VerificationOutcome{}, err
	}
	if err := compiled.CheckArgs(args); err != nil {
		return domain.VerificationOutcome{}, err
	}

	log.Info("re-verifying deployed contract")
	outcome, err := o.verifier.Verify(ctx, compiled, domain.DeploymentResult{Contract: id, Address: addr}, args)
	o.opts.Metrics.ObserveVerification(string(id), verificationOutcome(err))

	if o.opts.Records != nil {
		if recErr := o.opts.Records.UpdateVerification(id, o.opts.Codec.Format(addr), recordVerification(outcome, err)); recErr != nil {
			log.With("err", recErr.Error()).Warn("failed to update deployment record")
		}
	}

	return outcome, err
}

func (o *Orchestrator) entry(id domain.ContractID) *entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.entries[id]
	if !ok {
		e = &entry{run: Run{Contract: id, State: StateIdle}}
		o.entries[id] = e
	}
	return e
}

func (o *Orchestrator) verify(ctx context.Context, e *entry) error {
	outcome, err := o.verifier.Verify(ctx, e.compiled, *e.run.Result, e.run.Args)
	e.run.Verification = &outcome
	o.opts.Metrics.ObserveVerification(string(e.run.Contract), verificationOutcome(err))
	o.save(e, recordVerification(outcome, err))

	if err != nil {
		e.run.State = StateFailed
		e.run.Err = err
		o.logger.
			With("contract", e.run.Contract).
			With("address", o.opts.Codec.Format(e.run.Result.Address)).
			With("err", err.Error()).
			Error("contract deployed but not verified")
		return err
	}

	e.run.State = StateVerified
	e.run.Err = nil
	return nil
}

func (o *Orchestrator) fail(e *entry, err error) (*Run, error) {
	e.run.State = StateFailed
	e.run.Err = err
	o.logger.With("contract", e.run.Contract).With("err", err.Error()).Error("contract pipeline failed")
	return e.snapshot(), err
}

func (o *Orchestrator) save(e *entry, verification output.Verification) {
	if o.opts.Records == nil || e.run.Result == nil {
		return
	}

	err := o.opts.Records.Save(output.Entry{
		Contract:     e.run.Contract,
		Result:       *e.run.Result,
		Args:         e.run.Args,
		RawABI:       e.compiled.RawABI,
		Verification: verification,
	})
	if err != nil {
		o.logger.With("contract", e.run.Contract).With("err", err.Error()).Warn("failed to write deployment record")
	}
}

func (e *entry) snapshot() *Run {
	run := e.run
	if e.run.Result != nil {
		result := *e.run.Result
		run.Result = &result
	}
	if e.run.Verification != nil {
		verification := *e.run.Verification
		run.Verification = &verification
	}
	return &run
}

func submissionAttempted(err error) bool {
	var (
		subErr     *domain.SubmissionError
		timeoutErr *domain.ConfirmationTimeoutError
	)
	return errors.As(err, &subErr) || errors.As(err, &timeoutErr)
}

func deploymentOutcome(err error) string {
	var (
		cfgErr     *domain.ConfigurationError
		subErr     *domain.SubmissionError
		timeoutErr *domain.ConfirmationTimeoutError
	)
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &cfgErr):
		return metrics.OutcomeConfigError
	case errors.As(err, &subErr):
		return metrics.OutcomeRejected
	case errors.As(err, &timeoutErr):
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeFailure
	}
}

func verificationOutcome(err error) string {
	var verErr *domain.VerificationError
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &verErr) && verErr.Err == nil:
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeFailure
	}
}

func recordVerification(outcome domain.VerificationOutcome, err error) output.Verification {
	if err == nil {
		return output.Verification{Status: output.VerificationVerified, Message: outcome.Message}
	}
	return output.Verification{Status: output.VerificationFailed, Message: err.Error()}
}

// describe renders args for logs in the network's address notation.
func describe(codec address.Codec, args domain.DeploymentArgs) map[string]string {
	described := make(map[string]string)
	for _, arg := range args.Describe() {
		described[arg.Name] = fmt.Sprint(output.FormatValue(codec, arg.Value))
	}
	return described
}

func distinct(ids []domain.ContractID) []domain.ContractID {
	seen := make(map[domain.ContractID]bool, len(ids))
	out := make([]domain.ContractID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
