/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"sms-rupee-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// HTTPGateway drives a phone-side SMS gateway app over HTTP.
type HTTPGateway struct {
	baseURL     string
	token       string
	client      http.Client
	sendTimeout time.Duration
}

type sendRequest struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
	SimSlot   int    `json:"simSlot"`
}

type sendResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type permissionResponse struct {
	Granted bool `json:"granted"`
}

func NewHTTPGateway(cfg models.DeviceConfig) (*HTTPGateway, error) {
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("gateway mode requires DEVICE_GATEWAY_URL")
	}

	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	return &HTTPGateway{
		baseURL:     strings.TrimRight(cfg.GatewayURL, "/"),
		token:       cfg.GatewayToken,
		client:      httpClient,
		sendTimeout: 60 * time.Second,
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

func (g *HTTPGateway) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	return req, nil
}

// SendSMS posts the message and reports the gateway's verdict through exactly one callback.
func (g *HTTPGateway) SendSMS(recipient, message string, slot int, onFailure func(string), onSuccess func(string)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.sendTimeout)
		defer cancel()

		confirmation, err := g.send(ctx, sendRequest{Recipient: recipient, Message: message, SimSlot: slot})
		if err != nil {
			zap.L().Warn("Gateway send failed", zap.Int("slot", slot), zap.Error(err))
			onFailure(err.Error())
			return
		}
		onSuccess(confirmation)
	}()
}

func (g *HTTPGateway) send(ctx context.Context, payload sendRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("unable to encode send request: %w", err)
	}

	req, err := g.newRequest(ctx, http.MethodPost, "/send", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("unable to build send request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	var out sendResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil && resp.StatusCode < 300 {
		return "", fmt.Errorf("unable to decode gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || out.Status != "sent" {
		reason := out.Message
		if reason == "" {
			reason = resp.Status
		}
		return "", fmt.Errorf("gateway rejected send: %s", reason)
	}
	return out.Message, nil
}

func (g *HTTPGateway) RequestSendPermission(ctx context.Context) (bool, error) {
	req, err := g.newRequest(ctx, http.MethodGet, "/permission", nil)
	if err != nil {
		return false, fmt.Errorf("unable to build permission request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("permission request failed: %s", resp.Status)
	}

	var out permissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("unable to decode permission response: %w", err)
	}
	return out.Granted, nil
}
