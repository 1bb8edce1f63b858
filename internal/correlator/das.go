// ==================================
// File: internal/correlator/das.go
// ==================================
package correlator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/solwatch/solwatch/internal/types"
)

// dasTimeout is the deadline for the secondary metadata fetch.
const dasTimeout = 15 * time.Second

// DASClient is the secondary metadata fetch against a DAS-style asset
// endpoint, used once per pending pump.fun event after the cache
// retries are exhausted.
type DASClient struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewDASClient builds the fallback client. An empty endpoint disables
// the capability.
func NewDASClient(endpoint string, logger *zap.Logger) *DASClient {
	if endpoint == "" {
		return nil
	}
	return &DASClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: dasTimeout},
		logger:   logger.Named("das-fallback"),
	}
}

type dasRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  dasAssetQuery `json:"params"`
}

type dasAssetQuery struct {
	ID string `json:"id"`
}

type dasResponse struct {
	Result struct {
		Content struct {
			Metadata struct {
				Name   string `json:"name"`
				Symbol string `json:"symbol"`
			} `json:"metadata"`
		} `json:"content"`
	} `json:"result"`
}

// FetchAsset resolves (name, symbol) for a mint via the getAsset
// method. Failures return ok=false; they are never escalated.
func (d *DASClient) FetchAsset(ctx context.Context, mint solana.PublicKey) (types.TokenMetadata, bool) {
	ctx, cancel := context.WithTimeout(ctx, dasTimeout)
	defer cancel()

	body, err := json.Marshal(dasRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getAsset",
		Params:  dasAssetQuery{ID: mint.String()},
	})
	if err != nil {
		return types.TokenMetadata{}, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return types.TokenMetadata{}, false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Debug("DAS fetch failed", zap.String("mint", mint.String()), zap.Error(err))
		return types.TokenMetadata{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.logger.Debug("DAS fetch non-200",
			zap.String("mint", mint.String()),
			zap.String("status", fmt.Sprintf("%d", resp.StatusCode)))
		return types.TokenMetadata{}, false
	}

	var parsed dasResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return types.TokenMetadata{}, false
	}
	meta := parsed.Result.Content.Metadata
	if meta.Name == "" && meta.Symbol == "" {
		return types.TokenMetadata{}, false
	}

	return types.TokenMetadata{
		Mint:     mint,
		Name:     meta.Name,
		Symbol:   meta.Symbol,
		CachedAt: time.Now(),
	}, true
}
