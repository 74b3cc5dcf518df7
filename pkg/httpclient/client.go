/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Interface is the minimal HTTP surface the backend drivers use.
type Interface interface {
	Get(ctx context.Context, url string, headers ...string) (*Result, error)
	Post(ctx context.Context, url string, body interface{}, headers ...string) (*Result, error)
	Delete(ctx context.Context, url string, headers ...string) (*Result, error)
}

// client wraps the standard http.Client with request building and retry.
type client struct {
	*http.Client
}

const (
	DefaultTimeout = 30 * time.Second
	DefaultMaxTry  = 2
)

// NewHttpClient creates an HTTP client with connection pooling suited for
// control-plane to backend traffic. Certificate verification is skipped:
// backend endpoints commonly present self-signed certificates.
func NewHttpClient() Interface {
	return &client{
		Client: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: true,
				},
				TLSHandshakeTimeout:   10 * time.Second,
				MaxIdleConns:          128,
				MaxConnsPerHost:       64,
				IdleConnTimeout:       1 * time.Minute,
				ExpectContinueTimeout: 10 * time.Second,
			},
		},
	}
}

// Get sends an HTTP GET request to the specified URL with optional headers.
func (c *client) Get(ctx context.Context, url string, headers ...string) (*Result, error) {
	return c.do(ctx, url, http.MethodGet, nil, headers...)
}

// Post sends an HTTP POST request with a JSON body and optional headers.
func (c *client) Post(ctx context.Context, url string, body interface{}, headers ...string) (*Result, error) {
	return c.do(ctx, url, http.MethodPost, body, headers...)
}

// Delete sends an HTTP DELETE request to the specified URL with optional headers.
func (c *client) Delete(ctx context.Context, url string, headers ...string) (*Result, error) {
	return c.do(ctx, url, http.MethodDelete, nil, headers...)
}

func (c *client) do(ctx context.Context, url, method string, body interface{}, headers ...string) (*Result, error) {
	req, err := BuildRequest(ctx, url, method, body, headers...)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Do executes the HTTP request, retrying transport failures up to
// DefaultMaxTry times. On success the body is fully read and closed.
func (c *client) Do(req *http.Request) (*Result, error) {
	var rsp *http.Response
	var err error
	for i := 0; i < DefaultMaxTry; i++ {
		if rsp, err = c.Client.Do(req); err == nil {
			break
		} else if i == DefaultMaxTry-1 {
			return nil, err
		}
	}
	if rsp == nil {
		return nil, fmt.Errorf("no result")
	}
	data, err := io.ReadAll(rsp.Body)
	defer rsp.Body.Close()
	if err != nil {
		return nil, err
	}
	return &Result{StatusCode: rsp.StatusCode, Body: data, Header: rsp.Header}, nil
}

// BuildRequest creates an HTTP request with the given URL, method, body and
// header key/value pairs. Content-Type is always application/json.
func BuildRequest(ctx context.Context, url, method string, body interface{}, headers ...string) (*http.Request, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	reader, err := cvtIOReader(body)
	if err != nil {
		return nil, err
	}
	request, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	for i := 0; i+1 < len(headers); i += 2 {
		request.Header.Set(headers[i], headers[i+1])
	}
	request.Header.Set("Content-Type", "application/json")
	return request, nil
}

func cvtIOReader(body interface{}) (io.Reader, error) {
	if body == nil {
		return nil, nil
	}
	switch v := body.(type) {
	case string:
		return strings.NewReader(v), nil
	case io.Reader:
		return v, nil
	case []byte:
		return bytes.NewReader(v), nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	}
}
