package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	pgerrors "github.com/peergramhq/peergram/pkg/errors"
)

// Client wraps the IPFS Cluster HTTP API for content-addressed storage.
// Store submits a blob and returns its content identifier; failures surface
// as transport errors, never as panics.
type Client struct {
	clusterAPIURL string
	apiURL        string
	httpClient    *http.Client
	logger        *zap.Logger
}

// Config holds configuration for the storage client
type Config struct {
	// ClusterAPIURL is the base URL for the IPFS Cluster HTTP API
	// If empty, defaults to "http://localhost:9094"
	ClusterAPIURL string

	// APIURL is the IPFS HTTP API used for content retrieval
	// If empty, defaults to "http://localhost:5001"
	APIURL string

	// Timeout is the timeout for client operations
	// If zero, defaults to 60 seconds
	Timeout time.Duration
}

// addResponse is one NDJSON chunk streamed back by the cluster /add endpoint
type addResponse struct {
	Name string `json:"name"`
	Cid  string `json:"cid"`
	Size int64  `json:"size"`
}

// NewClient creates a new storage client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	clusterAPIURL := cfg.ClusterAPIURL
	if clusterAPIURL == "" {
		clusterAPIURL = "http://localhost:9094"
	}

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "http://localhost:5001"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		clusterAPIURL: clusterAPIURL,
		apiURL:        apiURL,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger,
	}, nil
}

// Health checks if the cluster API is reachable
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.clusterAPIURL+"/id", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %d", resp.StatusCode)
	}

	return nil
}

// Store submits a blob to the storage network and returns its content
// identifier. The returned identifier is validated before being reported
// back so that a malformed cluster response never reaches the registry.
func (c *Client) Store(ctx context.Context, data []byte, name string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", pgerrors.NewStorageError(fmt.Errorf("failed to create form file: %w", err))
	}

	if _, err := part.Write(data); err != nil {
		return "", pgerrors.NewStorageError(fmt.Errorf("failed to copy data: %w", err))
	}

	if err := writer.Close(); err != nil {
		return "", pgerrors.NewStorageError(fmt.Errorf("failed to close writer: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.clusterAPIURL+"/add", &buf)
	if err != nil {
		return "", pgerrors.NewStorageError(fmt.Errorf("failed to create add request: %w", err))
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pgerrors.NewStorageError(fmt.Errorf("add request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", pgerrors.NewStorageError(fmt.Errorf("add failed with status %d: %s", resp.StatusCode, string(body)))
	}

	// The cluster streams NDJSON responses. Drain the entire stream so the
	// connection is not closed prematurely, which would cancel the cluster's
	// pinning operation. The last object carries the final CID.
	dec := json.NewDecoder(resp.Body)
	var last addResponse
	var hasResult bool

	for {
		var chunk addResponse
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", pgerrors.NewStorageError(fmt.Errorf("failed to decode add response: %w", err))
		}
		last = chunk
		hasResult = true
	}

	if !hasResult || last.Cid == "" {
		return "", pgerrors.NewStorageError(fmt.Errorf("add response missing CID"))
	}

	if _, err := cid.Decode(last.Cid); err != nil {
		return "", pgerrors.NewStorageError(fmt.Errorf("invalid CID %q in add response: %w", last.Cid, err))
	}

	c.logger.Debug("content stored",
		zap.String("cid", last.Cid),
		zap.String("name", name),
		zap.Int("size", len(data)),
	)

	return last.Cid, nil
}

// Get retrieves content by its identifier through the IPFS HTTP API
func (c *Client) Get(ctx context.Context, contentID string) (io.ReadCloser, error) {
	if _, err := cid.Decode(contentID); err != nil {
		return nil, fmt.Errorf("invalid content identifier %q: %w", contentID, err)
	}

	url := fmt.Sprintf("%s/api/v0/cat?arg=%s", c.apiURL, contentID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create get request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("content not found: %s", contentID)
		}
		return nil, fmt.Errorf("get failed with status %d: %s", resp.StatusCode, string(body))
	}

	return resp.Body, nil
}
