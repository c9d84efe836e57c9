package output

import (
	"gopkg.in/yaml.v3"
)

const (
	VerificationVerified    = "verified"
	VerificationNotVerified = "not-verified"
	VerificationFailed      = "failed"
	VerificationSkipped     = "skipped"
)

type (
	// Model is the deployment record of one network.
	Model struct {
		Network    string                    `yaml:"network"`
		ChainClass string                    `yaml:"chain-class"`
		ChainID    int64                     `yaml:"chain-id,omitempty"`
		Contracts  map[string]ContractRecord `yaml:"contracts"`
	}

	ContractRecord struct {
		Address         string             `yaml:"address"`
		TxHash          string             `yaml:"tx-hash"`
		BlockNumber     uint64             `yaml:"block-number"`
		ConstructorArgs []Argument         `yaml:"constructor-args"`
		Verification    Verification       `yaml:"verification"`
		ABI             SingleQuotedString `yaml:"abi,omitempty"`
	}

	Argument struct {
		Name  string `yaml:"name"`
		Value any    `yaml:"value"`
	}

	Verification struct {
		Status  string `yaml:"status"`
		Message string `yaml:"message,omitempty"`
	}

	SingleQuotedString string
)

func (s SingleQuotedString) MarshalYAML() (any, error) {
	node := &yaml.Node{
		Kind:  yaml.ScalarNode,
		Style: yaml.SingleQuotedStyle,
		Value: string(s),
	}
	return node, nil
}
