package contracts

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/compose-network/contract-deployer/internal/domain"
	"github.com/compose-network/contract-deployer/internal/infra/filesystem"
	"github.com/compose-network/contract-deployer/internal/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Loader reads compiled contracts from a contracts.json file keyed by
// contract name.
type Loader struct {
	path   string
	reader filesystem.Reader
	logger *slog.Logger
}

// NewLoader creates a loader for the artifacts file at path
func NewLoader(path string, reader filesystem.Reader) *Loader {
	return &Loader{
		path:   path,
		reader: reader,
		logger: logger.Named("contracts_loader"),
	}
}

// Load returns the compiled contract for id.
func (l *Loader) Load(id domain.ContractID) (CompiledContract, error) {
	l.logger.With("path", l.path).With("contract", id).Debug("loading compiled contract")

	var raw map[string]rawContract
	if err := l.reader.ReadJSON(l.path, &raw); err != nil {
		return CompiledContract{}, fmt.Errorf("failed to read compiled contracts: %w", err)
	}

	entry, ok := raw[string(id)]
	if !ok {
		return CompiledContract{}, &domain.ConfigurationError{
			Kind:    domain.UnknownContract,
			Subject: string(id),
			Err:     fmt.Errorf("not present in %s", l.path),
		}
	}

	compiled, err := entry.parse(id)
	if err != nil {
		return CompiledContract{}, err
	}

	l.logger.
		With("contract", id).
		With("bytecode_len", len(compiled.Bytecode)).
		With("constructor_inputs", len(compiled.ABI.Constructor.Inputs)).
		Debug("compiled contract loaded")

	return compiled, nil
}

type rawContract struct {
	ABI           json.RawMessage `json:"abi"`
	Bytecode      string          `json:"bytecode"`
	SourceName    string          `json:"sourceName"`
	StandardInput json.RawMessage `json:"input"`
}

func (r rawContract) parse(id domain.ContractID) (CompiledContract, error) {
	parsedABI, err := abi.JSON(strings.NewReader(string(r.ABI)))
	if err != nil {
		return CompiledContract{}, fmt.Errorf("failed to parse ABI for %s: %w", id, err)
	}

	bytecodeHex := strings.TrimPrefix(strings.TrimSpace(r.Bytecode), "0x")
	if bytecodeHex == "" {
		return CompiledContract{}, fmt.Errorf("bytecode for %s is empty", id)
	}
	if strings.Contains(bytecodeHex, "__$") {
		return CompiledContract{}, fmt.Errorf("bytecode for %s has unlinked library placeholders", id)
	}

	return CompiledContract{
		ID:            id,
		ABI:           parsedABI,
		RawABI:        string(r.ABI),
		Bytecode:      common.FromHex(bytecodeHex),
		SourceName:    r.SourceName,
		StandardInput: r.StandardInput,
	}, nil
}
