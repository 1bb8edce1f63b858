// ================================
// File: internal/emitter/sink.go
// ================================
package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/solwatch/solwatch/internal/types"
)

const sinkTimeout = 5 * time.Second

// Alert agents and types recognised by the monitor-alert endpoint.
const (
	AgentScout = "SCOUT"

	AlertDiscovery  = "discovery"
	AlertGraduation = "graduation"
	AlertGeneric    = "alert"
)

// MonitorAlert is the alert payload of the downstream command
// endpoint.
type MonitorAlert struct {
	Agent    string                 `json:"agent"`
	Type     string                 `json:"type"`
	Message  string                 `json:"message"`
	Severity string                 `json:"severity"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

type alertEnvelope struct {
	Type  string       `json:"type"`
	Alert MonitorAlert `json:"alert"`
}

type alertBatchEnvelope struct {
	Type   string         `json:"type"`
	Alerts []MonitorAlert `json:"alerts"`
}

// SinkClient posts monitor alerts to the dashboard backend. Every
// failure is logged and swallowed: the pipeline must never stall on
// the remote sink.
type SinkClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// NewSinkClient builds a sink client; an empty base URL disables it.
func NewSinkClient(baseURL, token string, logger *zap.Logger) *SinkClient {
	if baseURL == "" {
		return nil
	}
	return &SinkClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: sinkTimeout},
		logger:  logger.Named("sink"),
	}
}

// alertFor converts a pool event into its monitor alert.
func alertFor(event types.PoolEvent) MonitorAlert {
	snap := event.Snapshot
	data := map[string]interface{}{
		"mint":        snap.BaseMint.String(),
		"dex":         string(snap.DEX),
		"poolAddress": snap.PoolAddress.String(),
	}
	if snap.Enriched.LiquiditySOL > 0 {
		data["liquiditySol"] = snap.Enriched.LiquiditySOL
	}

	label := snap.BaseMint.String()
	if event.TokenSymbol != "" {
		label = event.TokenSymbol
	}

	switch event.Kind {
	case types.EventGraduation:
		data["graduatedFrom"] = string(event.GraduatedFrom)
		data["bondingCurveTime"] = event.BondingCurveDuration
		return MonitorAlert{
			Agent:    AgentScout,
			Type:     AlertGraduation,
			Message:  fmt.Sprintf("%s graduated to %s after %dms on the curve", label, snap.DEX, event.BondingCurveDuration),
			Severity: "info",
			Data:     data,
		}
	case types.EventPriceUpdate:
		data["priceSolPerToken"] = snap.Enriched.PriceSOLPerToken
		return MonitorAlert{
			Agent:    AgentScout,
			Type:     AlertGeneric,
			Message:  fmt.Sprintf("%s price moved to %.9f SOL", label, snap.Enriched.PriceSOLPerToken),
			Severity: "info",
			Data:     data,
		}
	default:
		return MonitorAlert{
			Agent:    AgentScout,
			Type:     AlertDiscovery,
			Message:  fmt.Sprintf("New %s pool for %s", snap.DEX, label),
			Severity: "info",
			Data:     data,
		}
	}
}

// Post sends one alert.
func (s *SinkClient) Post(ctx context.Context, alert MonitorAlert) error {
	return s.post(ctx, alertEnvelope{Type: "monitor_alert", Alert: alert})
}

// PostBatch sends a set of correlated alerts atomically.
func (s *SinkClient) PostBatch(ctx context.Context, alerts []MonitorAlert) error {
	return s.post(ctx, alertBatchEnvelope{Type: "monitor_alert_batch", Alerts: alerts})
}

func (s *SinkClient) post(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/agents/command", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sink post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sink responded %d", resp.StatusCode)
	}
	return nil
}
