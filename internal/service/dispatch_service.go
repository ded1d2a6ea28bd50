package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"pooled-asset-vault/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// dispatchRetryIntervals defines the in-call retry schedule for transfer
// delivery. A transfer that exhausts the schedule stays DISPATCHED until the
// transport refunds it into escrow.
var dispatchRetryIntervals = []time.Duration{
	2 * time.Second,
	10 * time.Second,
}

// Transport signature headers, verified by the receiving replica's
// transport-auth middleware.
const (
	HeaderReplicaSource    = "X-Replica-Source"
	HeaderReplicaTimestamp = "X-Replica-Timestamp"
	HeaderReplicaNonce     = "X-Replica-Nonce"
	HeaderReplicaSignature = "X-Replica-Signature"
)

const receivePath = "/api/v1/replica/receive"

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// dispatchService implements ports.DispatchClient: it delivers signed
// transfer messages to peer replica endpoints.
type dispatchService struct {
	replicaID  string
	secretKey  string
	peers      map[string]string // destination identifier -> base URL
	sigSvc     ports.SignatureService
	httpClient HTTPClient
	log        zerolog.Logger
}

// NewDispatchClient creates a new dispatch client. peers maps destination
// replica identifiers to their base URLs.
func NewDispatchClient(
	replicaID string,
	secretKey string,
	peers map[string]string,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	log zerolog.Logger,
) ports.DispatchClient {
	return &dispatchService{
		replicaID:  replicaID,
		secretKey:  secretKey,
		peers:      peers,
		sigSvc:     sigSvc,
		httpClient: httpClient,
		log:        log,
	}
}

// Send delivers a signed transfer message to the destination replica,
// retrying on transient failures. Delivery failure is not fatal to the
// dispatch: the caller's transfer stays DISPATCHED for refund.
func (s *dispatchService) Send(ctx context.Context, destination string, msg ports.TransferMessage) error {
	baseURL, ok := s.peers[destination]
	if !ok {
		return fmt.Errorf("unknown destination replica %q", destination)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal transfer message: %w", err)
	}
	url := baseURL + receivePath

	var lastErr error
	for attempt := 0; attempt <= len(dispatchRetryIntervals); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(dispatchRetryIntervals[attempt-1]):
			}
		}

		if err := s.deliver(ctx, url, body); err != nil {
			lastErr = err
			s.log.Warn().Err(err).
				Str("transfer_id", msg.TransferID.String()).
				Str("destination", destination).
				Int("attempt", attempt+1).
				Msg("transfer delivery failed")
			continue
		}

		s.log.Info().
			Str("transfer_id", msg.TransferID.String()).
			Str("destination", destination).
			Int("attempt", attempt+1).
			Msg("transfer delivered")
		return nil
	}

	return fmt.Errorf("deliver transfer %s to %s: %w", msg.TransferID, destination, lastErr)
}

func (s *dispatchService) deliver(ctx context.Context, url string, body []byte) error {
	timestamp := time.Now().Unix()
	nonce := uuid.NewString()
	canonical := s.sigSvc.BuildCanonicalString(http.MethodPost, receivePath, timestamp, nonce, string(body))
	signature := s.sigSvc.Sign(s.secretKey, canonical)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderReplicaSource, s.replicaID)
	req.Header.Set(HeaderReplicaTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(HeaderReplicaNonce, nonce)
	req.Header.Set(HeaderReplicaSignature, signature)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("peer returned status %d", resp.StatusCode)
	}
	return nil
}
