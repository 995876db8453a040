package network

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bitrise-io/go-steputils/v2/stepconf"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// GatewayParams ...
type GatewayParams struct {
	BaseURL       string
	Token         stepconf.Secret
	ContainerName string
	ObjectName    string
}

type commitRequest struct {
	BlockIDs []string `json:"block_ids"`
}

// gatewayBlockStore talks to a blob gateway service exposing the stage/commit
// protocol over HTTP. Transient failures are retried by the HTTP client.
type gatewayBlockStore struct {
	httpClient    *retryablehttp.Client
	baseURL       string
	token         string
	containerName string
	objectName    string
	logger        log.Logger
}

// NewGatewayBlockStore creates a BlockStore backed by a blob gateway service.
func NewGatewayBlockStore(params GatewayParams, logger log.Logger) (BlockStore, error) {
	if params.BaseURL == "" {
		return nil, fmt.Errorf("BaseURL must not be empty")
	}
	if params.ContainerName == "" {
		return nil, fmt.Errorf("ContainerName must not be empty")
	}
	if params.ObjectName == "" {
		return nil, fmt.Errorf("ObjectName must not be empty")
	}

	return &gatewayBlockStore{
		httpClient:    retryhttp.NewClient(logger),
		baseURL:       params.BaseURL,
		token:         string(params.Token),
		containerName: params.ContainerName,
		objectName:    params.ObjectName,
		logger:        logger,
	}, nil
}

func (c *gatewayBlockStore) ValidateContainer(ctx context.Context) (bool, error) {
	url := fmt.Sprintf("%s/containers/%s", c.baseURL, c.containerName)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, err
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, unwrapError(resp)
	}
}

func (c *gatewayBlockStore) CreateObject(ctx context.Context) error {
	url := fmt.Sprintf("%s/containers/%s/objects/%s", c.baseURL, c.containerName, c.objectName)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, url, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return unwrapError(resp)
	}
	return nil
}

func (c *gatewayBlockStore) StageBlock(ctx context.Context, blockID string, data []byte) error {
	url := fmt.Sprintf("%s/containers/%s/objects/%s/blocks/%s", c.baseURL, c.containerName, c.objectName, blockID)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, url, data)
	if err != nil {
		return err
	}
	c.setAuth(req)
	req.Header.Set("Content-Type", "application/octet-stream")

	// Add Content-Length header manually because retryablehttp doesn't do it automatically
	req.Header.Set("Content-Length", fmt.Sprintf("%d", len(data)))
	req.ContentLength = int64(len(data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return unwrapError(resp)
	}
	return nil
}

func (c *gatewayBlockStore) CommitObject(ctx context.Context, blockIDs []string) error {
	if blockIDs == nil {
		blockIDs = []string{}
	}

	body, err := json.Marshal(commitRequest{BlockIDs: blockIDs})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/containers/%s/objects/%s/blocklist", c.baseURL, c.containerName, c.objectName)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return err
	}
	c.setAuth(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return unwrapError(resp)
	}
	return nil
}

func (c *gatewayBlockStore) Close() {
	c.httpClient.HTTPClient.CloseIdleConnections()
}

func (c *gatewayBlockStore) setAuth(req *retryablehttp.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}
}

func unwrapError(resp *http.Response) error {
	errorResp, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorResp)
}
