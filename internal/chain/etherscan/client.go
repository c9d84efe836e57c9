// Package etherscan submits contract sources to an Etherscan-compatible
// verification API and polls for the result.
package etherscan

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/compose-network/contract-deployer/internal/address"
	"github.com/compose-network/contract-deployer/internal/chain"
	"github.com/compose-network/contract-deployer/internal/domain"
	"github.com/compose-network/contract-deployer/internal/logger"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	codeFormatStandardJSON = "solidity-standard-json-input"

	statusOK = "1"
)

type (
	Options struct {
		APIURL          string
		APIKey          string
		ChainID         int64
		CompilerVersion string
		// Headers are added to every request, e.g. an API-key header.
		Headers      map[string]string
		Codec        address.Codec
		PollInterval time.Duration
		RetryMax     int
	}

	// Client verifies contracts through the verifysourcecode and
	// checkverifystatus actions.
	Client struct {
		opts   Options
		http   *retryablehttp.Client
		logger *slog.Logger
	}

	response struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Result  string `json:"result"`
	}
)

// New creates a verification client
func New(opts Options) *Client {
	if opts.Codec == nil {
		opts.Codec = address.EVMCodec{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}

	log := logger.Named("etherscan_client")

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = opts.RetryMax
	httpClient.Logger = log

	return &Client{
		opts:   opts,
		http:   httpClient,
		logger: log,
	}
}

// VerifySource submits the standard-JSON input and waits for a terminal status.
func (c *Client) VerifySource(ctx context.Context, req chain.VerificationRequest) (domain.VerificationOutcome, error) {
	addr := c.opts.Codec.Format(req.Address)
	log := c.logger.With("contract", req.Contract.ID).With("address", addr)

	if c.opts.APIURL == "" {
		return domain.VerificationOutcome{Message: "no verification service configured for this network"}, nil
	}
	if len(req.Contract.StandardInput) == 0 {
		return domain.VerificationOutcome{Message: fmt.Sprintf("no standard JSON input available for %s", req.Contract.ID)}, nil
	}

	form := url.Values{}
	form.Set("apikey", c.opts.APIKey)
	form.Set("module", "contract")
	form.Set("action", "verifysourcecode")
	form.Set("contractaddress", addr)
	form.Set("sourceCode", string(req.Contract.StandardInput))
	form.Set("codeformat", codeFormatStandardJSON)
	form.Set("contractname", req.Contract.FullyQualifiedName())
	form.Set("compilerversion", c.opts.CompilerVersion)
	// The API spells this parameter with a typo.
	form.Set("constructorArguements", hex.EncodeToString(req.ConstructorArgs))

	log.Info("submitting source for verification")
	submitted, err := c.do(ctx, http.MethodPost, nil, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.VerificationOutcome{}, fmt.Errorf("failed to submit verification: %w", err)
	}

	if submitted.Status != statusOK {
		if alreadyVerified(submitted.Result) {
			log.Info("contract is already verified")
			return domain.VerificationOutcome{Verified: true, Message: submitted.Result}, nil
		}
		if notIndexedYet(submitted.Result) {
			hint := fmt.Sprintf("the explorer has not indexed the bytecode yet, retry later with: deployer verify %s %s", req.Contract.ID, addr)
			log.With("result", submitted.Result).Warn(hint)
			return domain.VerificationOutcome{Message: submitted.Result + "; " + hint}, nil
		}
		return domain.VerificationOutcome{Message: submitted.Result}, nil
	}

	guid := submitted.Result
	log.With("guid", guid).Info("verification submitted, polling for status")

	return c.poll(ctx, guid, log)
}

func (c *Client) poll(ctx context.Context, guid string, log *slog.Logger) (domain.VerificationOutcome, error) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	query := url.Values{}
	query.Set("apikey", c.opts.APIKey)
	query.Set("module", "contract")
	query.Set("action", "checkverifystatus")
	query.Set("guid", guid)

	for {
		select {
		case <-ctx.Done():
			return domain.VerificationOutcome{GUID: guid}, fmt.Errorf("stopped waiting for verification %s: %w", guid, ctx.Err())
		case <-ticker.C:
		}

		status, err := c.do(ctx, http.MethodGet, query, nil)
		if err != nil {
			return domain.VerificationOutcome{GUID: guid}, fmt.Errorf("failed to check verification status: %w", err)
		}

		result := strings.ToLower(status.Result)
		switch {
		case strings.Contains(result, "pending"), strings.Contains(result, "in progress"):
			log.With("status", status.Result).Debug("verification pending")
			continue
		case strings.HasPrefix(result, "pass"), alreadyVerified(result):
			return domain.VerificationOutcome{Verified: true, Message: status.Result, GUID: guid}, nil
		default:
			return domain.VerificationOutcome{Message: status.Result, GUID: guid}, nil
		}
	}
}

func (c *Client) do(ctx context.Context, method string, query url.Values, body io.Reader) (response, error) {
	endpoint, err := url.Parse(c.opts.APIURL)
	if err != nil {
		return response{}, fmt.Errorf("invalid api url '%s': %w", c.opts.APIURL, err)
	}

	params := endpoint.Query()
	if c.opts.ChainID != 0 {
		params.Set("chainid", strconv.FormatInt(c.opts.ChainID, 10))
	}
	for key, values := range query {
		for _, value := range values {
			params.Add(key, value)
		}
	}
	endpoint.RawQuery = params.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return response{}, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for key, value := range c.opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return response{}, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return response{}, fmt.Errorf("failed to decode response: %w", err)
	}

	return decoded, nil
}

func alreadyVerified(result string) bool {
	return strings.Contains(strings.ToLower(result), "already verified")
}

// notIndexedYet matches the answer given for a contract deployed moments ago.
func notIndexedYet(result string) bool {
	return strings.Contains(strings.ToLower(result), "unable to locate contractcode")
}
