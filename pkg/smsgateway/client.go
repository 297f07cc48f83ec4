// Package smsgateway delivers subscriber notifications through an
// HTTP SMS gateway. Any gateway accepting a JSON POST with to/message
// fields and an API-key header works.
package smsgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	apiKey     string
	sender     string
	httpClient *http.Client
}

type sendRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func NewClient(baseURL, apiKey, sender string, httpClient *http.Client) *Client {
	client := httpClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		sender:     strings.TrimSpace(sender),
		httpClient: client,
	}
}

// Send posts one message to the gateway. Satisfies the notification
// dispatcher's Sender interface.
func (c *Client) Send(ctx context.Context, recipient, text string) error {
	if c == nil || c.baseURL == "" {
		return errors.New("sms gateway is not configured")
	}
	if strings.TrimSpace(recipient) == "" {
		return errors.New("recipient is required")
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("message is empty")
	}

	body, err := json.Marshal(sendRequest{
		To:      strings.TrimSpace(recipient),
		From:    c.sender,
		Message: text,
	})
	if err != nil {
		return err
	}

	endpointURL, err := url.Parse(c.baseURL + "/messages")
	if err != nil {
		return err
	}
	if !strings.EqualFold(endpointURL.Scheme, "https") && !strings.EqualFold(endpointURL.Scheme, "http") {
		return errors.New("invalid sms gateway endpoint")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var apiResp apiResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&apiResp); decodeErr != nil && resp.StatusCode < http.StatusBadRequest {
		// Some gateways answer 2xx with an empty body.
		return nil
	}

	if resp.StatusCode >= http.StatusBadRequest || (apiResp.Description != "" && !apiResp.OK) {
		if apiResp.Description == "" {
			apiResp.Description = "sms gateway request failed"
		}
		return fmt.Errorf("sms gateway error: %s", apiResp.Description)
	}

	return nil
}
