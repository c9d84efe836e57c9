package tron

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/compose-network/contract-deployer/internal/logger"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	pathDeployContract     = "/wallet/deploycontract"
	pathBroadcast          = "/wallet/broadcasttransaction"
	pathTransactionInfo    = "/wallet/gettransactioninfobyid"
	receiptResultSucceeded = "SUCCESS"
)

type (
	ClientOptions struct {
		BaseURL  string
		Headers  map[string]string
		RetryMax int
	}

	// Client talks to the TronGrid wallet HTTP API. Reads are retried;
	// broadcasts are sent exactly once.
	Client struct {
		baseURL   string
		headers   map[string]string
		reads     *retryablehttp.Client
		broadcast *retryablehttp.Client
		logger    *slog.Logger
	}

	DeployRequest struct {
		OwnerAddress               string `json:"owner_address"`
		ABI                        string `json:"abi"`
		Bytecode                   string `json:"bytecode"`
		Parameter                  string `json:"parameter,omitempty"`
		FeeLimit                   int64  `json:"fee_limit"`
		CallValue                  int64  `json:"call_value"`
		ConsumeUserResourcePercent int    `json:"consume_user_resource_percent"`
		OriginEnergyLimit          int64  `json:"origin_energy_limit"`
		Name                       string `json:"name"`
		Visible                    bool   `json:"visible"`
	}

	// Transaction is an unsigned or signed transaction as returned by the
	// node. RawData is kept verbatim so that it is broadcast unchanged.
	Transaction struct {
		Visible         bool            `json:"visible"`
		TxID            string          `json:"txID"`
		ContractAddress string          `json:"contract_address,omitempty"`
		RawData         json.RawMessage `json:"raw_data"`
		RawDataHex      string          `json:"raw_data_hex"`
		Signature       []string        `json:"signature,omitempty"`
	}

	TransactionInfo struct {
		ID              string  `json:"id"`
		BlockNumber     uint64  `json:"blockNumber"`
		ContractAddress string  `json:"contract_address"`
		Result          string  `json:"result"`
		ResMessage      string  `json:"resMessage"`
		Receipt         Receipt `json:"receipt"`
	}

	Receipt struct {
		Result      string `json:"result"`
		EnergyUsage int64  `json:"energy_usage_total"`
		NetFee      int64  `json:"net_fee"`
	}

	deployResponse struct {
		Transaction
		Error string `json:"Error"`
	}

	broadcastResponse struct {
		Result  bool   `json:"result"`
		Code    string `json:"code"`
		Message string `json:"message"`
		TxID    string `json:"txid"`
	}
)

// NewClient creates a TronGrid client
func NewClient(opts ClientOptions) *Client {
	log := logger.Named("tron_client")

	reads := retryablehttp.NewClient()
	reads.RetryMax = opts.RetryMax
	reads.Logger = log

	broadcast := retryablehttp.NewClient()
	broadcast.RetryMax = 0
	broadcast.Logger = log

	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		headers:   opts.Headers,
		reads:     reads,
		broadcast: broadcast,
		logger:    log,
	}
}

// DeployContract asks the node to build an unsigned creation transaction.
func (c *Client) DeployContract(ctx context.Context, req DeployRequest) (Transaction, error) {
	var resp deployResponse
	if err := c.post(ctx, c.reads, pathDeployContract, req, &resp); err != nil {
		return Transaction{}, err
	}
	if resp.Error != "" {
		return Transaction{}, fmt.Errorf("node rejected deployment: %s", resp.Error)
	}
	if resp.TxID == "" || resp.RawDataHex == "" {
		return Transaction{}, fmt.Errorf("node returned an incomplete transaction")
	}

	return resp.Transaction, nil
}

// Broadcast sends a signed transaction once.
func (c *Client) Broadcast(ctx context.Context, tx Transaction) error {
	var resp broadcastResponse
	if err := c.post(ctx, c.broadcast, pathBroadcast, tx, &resp); err != nil {
		return err
	}
	if !resp.Result {
		return fmt.Errorf("broadcast rejected: %s: %s", resp.Code, decodeMessage(resp.Message))
	}

	return nil
}

// TransactionInfo returns the execution info of txID. The boolean is false
// while the transaction is not yet in a block.
func (c *Client) TransactionInfo(ctx context.Context, txID string) (TransactionInfo, bool, error) {
	var info TransactionInfo
	if err := c.post(ctx, c.reads, pathTransactionInfo, map[string]string{"value": txID}, &info); err != nil {
		return TransactionInfo{}, false, err
	}
	if info.ID == "" {
		return TransactionInfo{}, false, nil
	}

	return info, true, nil
}

func (c *Client) post(ctx context.Context, client *retryablehttp.Client, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request for %s: %w", path, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	c.logger.With("path", path).Debug("calling node")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(content)))
	}

	if err := json.Unmarshal(content, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}

// decodeMessage turns the hex encoded messages of the node into text.
func decodeMessage(message string) string {
	decoded, err := hex.DecodeString(message)
	if err != nil {
		return message
	}
	return string(decoded)
}
