package service

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"pooled-asset-vault/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHTTPClient struct {
	requests  []*http.Request
	bodies    []string
	responses []*http.Response
	errs      []error
}

func (c *fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	body, _ := io.ReadAll(req.Body)
	c.requests = append(c.requests, req)
	c.bodies = append(c.bodies, string(body))

	i := len(c.requests) - 1
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	resp := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(""))}
	if i < len(c.responses) && c.responses[i] != nil {
		resp = c.responses[i]
	}
	return resp, nil
}

func testTransferMessage() ports.TransferMessage {
	return ports.TransferMessage{
		TransferID:         uuid.New(),
		VaultID:            uuid.New(),
		Source:             "replica-a",
		SourceAccount:      uuid.New(),
		Asset:              baseUSD,
		Amount:             units(100),
		OriginUnitaryValue: units(1),
		Mode:               "TRANSFER",
	}
}

func TestDispatchClient_Send_SignsRequest(t *testing.T) {
	httpClient := &fakeHTTPClient{}
	sigSvc := NewHMACSignatureService()
	client := NewDispatchClient("replica-a", "topsecret",
		map[string]string{"replica-b": "http://replica-b:8080"},
		sigSvc, httpClient, zerolog.Nop())

	msg := testTransferMessage()
	require.NoError(t, client.Send(context.Background(), "replica-b", msg))
	require.Len(t, httpClient.requests, 1)

	req := httpClient.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "http://replica-b:8080/api/v1/replica/receive", req.URL.String())
	assert.Equal(t, "replica-a", req.Header.Get(HeaderReplicaSource))

	timestamp := req.Header.Get(HeaderReplicaTimestamp)
	nonce := req.Header.Get(HeaderReplicaNonce)
	signature := req.Header.Get(HeaderReplicaSignature)
	require.NotEmpty(t, timestamp)
	require.NotEmpty(t, nonce)

	// The receiving middleware must be able to reproduce the signature from
	// the headers and raw body alone.
	canonical := http.MethodPost + "|/api/v1/replica/receive|" + timestamp + "|" + nonce + "|" + httpClient.bodies[0]
	assert.True(t, sigSvc.Verify("topsecret", canonical, signature))
	assert.Contains(t, httpClient.bodies[0], msg.TransferID.String())
}

func TestDispatchClient_Send_UnknownDestination(t *testing.T) {
	client := NewDispatchClient("replica-a", "topsecret",
		map[string]string{}, NewHMACSignatureService(), &fakeHTTPClient{}, zerolog.Nop())

	err := client.Send(context.Background(), "replica-z", testTransferMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown destination")
}

func TestDispatchClient_Send_RetriesOnFailure(t *testing.T) {
	httpClient := &fakeHTTPClient{
		responses: []*http.Response{
			{StatusCode: http.StatusBadGateway, Body: io.NopCloser(strings.NewReader(""))},
		},
	}
	client := NewDispatchClient("replica-a", "topsecret",
		map[string]string{"replica-b": "http://replica-b:8080"},
		NewHMACSignatureService(), httpClient, zerolog.Nop())

	require.NoError(t, client.Send(context.Background(), "replica-b", testTransferMessage()))
	assert.Len(t, httpClient.requests, 2, "first attempt fails with 502, second succeeds")
}

func TestDispatchClient_Send_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	httpClient := &fakeHTTPClient{
		responses: []*http.Response{
			{StatusCode: http.StatusBadGateway, Body: io.NopCloser(strings.NewReader(""))},
		},
	}
	client := NewDispatchClient("replica-a", "topsecret",
		map[string]string{"replica-b": "http://replica-b:8080"},
		NewHMACSignatureService(), httpClient, zerolog.Nop())

	err := client.Send(ctx, "replica-b", testTransferMessage())
	assert.ErrorIs(t, err, context.Canceled)
}
