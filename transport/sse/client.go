package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/c0deZ3R0/pixel-chunk/errors"
)

const opSubscribe = errors.Op("sse.Subscribe")

type Client struct {
	BaseURL string
	Client  *http.Client
}

// NewClient creates a new SSE client
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{BaseURL: baseURL, Client: httpClient}
}

// Subscribe streams versions of projectID to handler until ctx is done, the
// server ends the stream, or handler returns an error. since may be empty.
func (c *Client) Subscribe(ctx context.Context, projectID, since string, handler func(VersionEvent) error) error {
	u := c.BaseURL + "/projects/" + url.PathEscape(projectID) + "/versions/stream"
	if since != "" {
		u += "?since=" + url.QueryEscape(since)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.E(opSubscribe, component, errors.KindInvalid, err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.E(opSubscribe, component, errors.KindConnectionLost, err, "http request")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return errors.E(opSubscribe, component, errors.KindNoSuchProject, fmt.Sprintf("project %s not found", projectID))
	default:
		return errors.E(opSubscribe, component, errors.KindInternal, fmt.Sprintf("unexpected status %s", resp.Status))
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		var ev VersionEvent
		if err := json.Unmarshal(bytes.TrimPrefix(line, []byte("data: ")), &ev); err != nil {
			return errors.E(opSubscribe, component, errors.KindInvalid, err, "decode payload")
		}
		if err := handler(ev); err != nil {
			return errors.E(opSubscribe, component, err, "handler")
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return errors.E(opSubscribe, component, errors.KindConnectionLost, err, "scan")
	}
	return nil
}
