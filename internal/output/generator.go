// Package output keeps a YAML record of the contracts deployed on each network.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"path/filepath"
	"sync"

	"github.com/compose-network/contract-deployer/internal/address"
	"github.com/compose-network/contract-deployer/internal/domain"
	"github.com/compose-network/contract-deployer/internal/infra/filesystem"
	"github.com/compose-network/contract-deployer/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const fileExtension = ".yaml"

type (
	NetworkInfo struct {
		Name       string
		ChainClass string
		ChainID    int64
	}

	// Entry is the state of one contract to be recorded.
	Entry struct {
		Contract     domain.ContractID
		Result       domain.DeploymentResult
		Args         domain.DeploymentArgs
		RawABI       string
		Verification Verification
	}

	// Generator rewrites <dir>/<network>.yaml whenever an entry is saved.
	// Records of contracts deployed by earlier runs are preserved.
	Generator struct {
		dir     string
		network NetworkInfo
		codec   address.Codec
		reader  filesystem.Reader
		writer  filesystem.Writer
		logger  *slog.Logger

		mu    sync.Mutex
		model *Model
	}
)

func NewGenerator(dir string, network NetworkInfo, codec address.Codec, reader filesystem.Reader, writer filesystem.Writer) *Generator {
	return &Generator{
		dir:     dir,
		network: network,
		codec:   codec,
		reader:  reader,
		writer:  writer,
		logger:  logger.Named("output_generator"),
	}
}

// Path is the record file of the network.
func (g *Generator) Path() string {
	return filepath.Join(g.dir, g.network.Name+fileExtension)
}

// Save records entry and rewrites the file.
func (g *Generator) Save(entry Entry) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.load(); err != nil {
		return err
	}

	record := ContractRecord{
		Address:      g.codec.Format(entry.Result.Address),
		TxHash:       entry.Result.TxHash,
		BlockNumber:  entry.Result.BlockNumber,
		Verification: entry.Verification,
		ABI:          SingleQuotedString(compactJSON(entry.RawABI)),
	}
	if entry.Args != nil {
		for _, arg := range entry.Args.Describe() {
			record.ConstructorArgs = append(record.ConstructorArgs, Argument{
				Name:  arg.Name,
				Value: FormatValue(g.codec, arg.Value),
			})
		}
	}
	g.model.Contracts[string(entry.Contract)] = record

	return g.flush(entry.Contract, entry.Verification.Status)
}

// UpdateVerification changes the verification status of the recorded
// contract if it was recorded at addr. Unknown contracts are left alone.
func (g *Generator) UpdateVerification(contract domain.ContractID, addr string, verification Verification) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.load(); err != nil {
		return err
	}

	record, ok := g.model.Contracts[string(contract)]
	if !ok || record.Address != addr {
		g.logger.With("contract", contract).With("address", addr).Debug("no matching deployment record to update")
		return nil
	}

	record.Verification = verification
	g.model.Contracts[string(contract)] = record

	return g.flush(contract, verification.Status)
}

func (g *Generator) flush(contract domain.ContractID, status string) error {
	data, err := yaml.Marshal(g.model)
	if err != nil {
		return fmt.Errorf("could not marshal output model. Err: '%w'", err)
	}

	if err := g.writer.WriteBytes(g.Path(), data); err != nil {
		return fmt.Errorf("could not write output file. Err: '%w'", err)
	}

	g.logger.
		With("path", g.Path()).
		With("contract", contract).
		With("verification", status).
		Debug("deployment record written")

	return nil
}

func (g *Generator) load() error {
	if g.model != nil {
		return nil
	}

	model := &Model{}
	exists, err := g.reader.Exists(g.Path())
	if err != nil {
		return err
	}
	if exists {
		data, err := g.reader.ReadBytes(g.Path())
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, model); err != nil {
			return fmt.Errorf("could not parse existing output file '%s'. Err: '%w'", g.Path(), err)
		}
	}

	model.Network = g.network.Name
	model.ChainClass = g.network.ChainClass
	model.ChainID = g.network.ChainID
	if model.Contracts == nil {
		model.Contracts = make(map[string]ContractRecord)
	}

	g.model = model
	return nil
}

// FormatValue renders constructor arguments in the network's own notation.
func FormatValue(codec address.Codec, value any) any {
	switch v := value.(type) {
	case common.Address:
		return codec.Format(v)
	case []common.Address:
		out := make([]string, len(v))
		for i, addr := range v {
			out[i] = codec.Format(addr)
		}
		return out
	case *big.Int:
		return v.String()
	case []*big.Int:
		out := make([]string, len(v))
		for i, amount := range v {
			out[i] = amount.String()
		}
		return out
	default:
		return v
	}
}

func compactJSON(jsonStr string) string {
	if jsonStr == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(jsonStr)); err != nil {
		return jsonStr
	}
	return buf.String()
}
