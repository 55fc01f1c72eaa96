package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/project-sunbird/sunbird-lock-service/lib/logger"
)

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// ClientConfig holds the connection settings for the owning system's API.
type ClientConfig struct {
	BaseURL       string // e.g. "http://content-service:5000/api"
	TimeoutSecond int    // Request timeout in seconds
	RetryCount    int    // Retries on network errors
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		TimeoutSecond: 10,
		RetryCount:    3,
	}
}

// --------------------------------------------------------------------------
// HTTP Client
// --------------------------------------------------------------------------

// NewHTTPClient creates a client for the owning system's API implementing
// both IResourceValidator and IVersionNotifier.
//
// Only the "content" resource type has a remote validation endpoint; all
// other types are rejected as not lockable without a network round trip.
func NewHTTPClient(config ClientConfig, log logger.ILogger) *HTTPClient {
	if config.TimeoutSecond <= 0 {
		config.TimeoutSecond = DefaultClientConfig().TimeoutSecond
	}
	if config.RetryCount <= 0 {
		config.RetryCount = DefaultClientConfig().RetryCount
	}
	if log == nil {
		log = logger.NewNoOp()
	}
	return &HTTPClient{
		config: config,
		logger: log.WithComponent("resource-client"),
		client: &http.Client{
			Timeout: time.Duration(config.TimeoutSecond) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     time.Duration(config.TimeoutSecond) * time.Second,
			},
		},
	}
}

// HTTPClient implements IResourceValidator and IVersionNotifier over the
// owning system's REST API.
type HTTPClient struct {
	config ClientConfig
	client *http.Client
	logger logger.ILogger
}

// --------------------------------------------------------------------------
// Wire Types
// --------------------------------------------------------------------------

type validationRequest struct {
	Request struct {
		ResourceID   string `json:"resourceId"`
		ResourceType string `json:"resourceType"`
	} `json:"request"`
}

type validationResponse struct {
	Result struct {
		Validation bool            `json:"validation"`
		Message    string          `json:"message"`
		Data       json.RawMessage `json:"contentdata"`
	} `json:"result"`
}

type updateRequest struct {
	Request struct {
		Content struct {
			LockKey    string `json:"lockKey"`
			VersionKey string `json:"versionKey"`
		} `json:"content"`
	} `json:"request"`
}

type updateResponse struct {
	ResponseCode string `json:"responseCode"`
	Result       struct {
		VersionKey string `json:"versionKey"`
	} `json:"result"`
}

// --------------------------------------------------------------------------
// Interface Methods (docu see resource.IResourceValidator and
// resource.IVersionNotifier)
// --------------------------------------------------------------------------

func (c *HTTPClient) Check(ctx context.Context, ref ResourceRef, headers map[string]string) (CheckResult, error) {
	if strings.ToLower(ref.ResourceType) != "content" {
		return CheckResult{Lockable: false, Reason: "Resource type is not valid"}, nil
	}

	var reqBody validationRequest
	reqBody.Request.ResourceID = ref.ResourceID
	reqBody.Request.ResourceType = ref.ResourceType

	var respBody validationResponse
	if err := c.post(ctx, "/v1/content/getContentLockValidation", headers, &reqBody, &respBody); err != nil {
		return CheckResult{}, err
	}

	result := CheckResult{
		Lockable: respBody.Result.Validation,
		Reason:   respBody.Result.Message,
	}
	if result.Reason == "" {
		// a response without a message is treated as a denial
		result.Lockable = false
		result.Reason = "resource validation gave no verdict"
	}
	if len(respBody.Result.Data) > 0 {
		var data struct {
			VersionKey string `json:"versionKey"`
			LockKey    string `json:"lockKey"`
		}
		if err := json.Unmarshal(respBody.Result.Data, &data); err != nil {
			return CheckResult{}, fmt.Errorf("malformed resource data in validation response: %w", err)
		}
		result.Snapshot = ResourceSnapshot{
			VersionKey: data.VersionKey,
			LockKey:    data.LockKey,
			Raw:        respBody.Result.Data,
		}
	}
	return result, nil
}

func (c *HTTPClient) Notify(ctx context.Context, resourceID, lockID, versionKey string, headers map[string]string) (NotifyResult, error) {
	var reqBody updateRequest
	reqBody.Request.Content.LockKey = lockID
	reqBody.Request.Content.VersionKey = versionKey

	var respBody updateResponse
	if err := c.post(ctx, "/v1/content/update/"+resourceID, headers, &reqBody, &respBody); err != nil {
		return NotifyResult{}, err
	}

	if respBody.ResponseCode != "OK" {
		c.logger.Warningf("version update for %s rejected with responseCode %q", resourceID, respBody.ResponseCode)
		return NotifyResult{Accepted: false}, nil
	}
	return NotifyResult{Accepted: true, VersionKey: respBody.Result.VersionKey}, nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// post sends a JSON request to the given path and decodes the JSON
// response, retrying on network errors.
func (c *HTTPClient) post(ctx context.Context, path string, headers map[string]string, reqBody, respBody interface{}) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	requestURL := strings.TrimRight(c.config.BaseURL, "/") + path

	var httpResponse *http.Response
	defer func() {
		if httpResponse != nil {
			if err := httpResponse.Body.Close(); err != nil {
				c.logger.Errorf("failed to close response body: %v", err)
			}
		}
	}()
	for i := 0; i < c.config.RetryCount; i++ {
		var httpRequest *http.Request
		httpRequest, err = http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		httpRequest.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			httpRequest.Header.Set(k, v)
		}

		httpResponse, err = c.client.Do(httpRequest)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}

	if httpResponse.StatusCode != http.StatusOK {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, httpResponse.Body)
		return fmt.Errorf("http error: %s", httpResponse.Status)
	}

	return json.NewDecoder(httpResponse.Body).Decode(respBody)
}
