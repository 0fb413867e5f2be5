package httptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/snapshot"
)

// Client calls the REST API.
type Client struct {
	client  *http.Client
	baseURL string
	options *ClientOptions
}

// NewClient creates a REST client.
// If a custom http.Client is not provided, http.DefaultClient will be used.
func NewClient(baseURL string, client *http.Client, opts ...ClientOption) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		client:  client,
		baseURL: baseURL,
		options: applyClientOptions(opts...),
	}
}

// CreateProject creates a project; zero rows or cols use the server default.
func (c *Client) CreateProject(ctx context.Context, rows, cols int) (snapshot.Project, error) {
	q := url.Values{}
	if rows > 0 {
		q.Set("rows", strconv.Itoa(rows))
	}
	if cols > 0 {
		q.Set("cols", strconv.Itoa(cols))
	}
	u := c.baseURL + "/projects"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var project snapshot.Project
	err := c.do(ctx, errors.OpCreate, http.MethodPost, u, http.StatusCreated, &project)
	return project, err
}

// GetProject reads a project's grid at version, or at its latest snapshot
// when version is empty, together with its history.
func (c *Client) GetProject(ctx context.Context, projectID, version string) (ProjectState, error) {
	u := c.baseURL + "/projects/" + url.PathEscape(projectID)
	if version != "" {
		u += "?version=" + url.QueryEscape(version)
	}

	var state ProjectState
	err := c.do(ctx, errors.OpLoad, http.MethodGet, u, http.StatusOK, &state)
	return state, err
}

func (c *Client) do(ctx context.Context, op errors.Op, method, u string, want int, out interface{}) error {
	if c.options.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.options.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return errors.E(op, component, errors.KindInvalid, err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.options.CompressionEnabled {
		// setting this ourselves turns off the transport's transparent decompression
		req.Header.Set("Accept-Encoding", "gzip")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	reader, cleanup, err := createSafeResponseReader(resp, c.options)
	if err != nil {
		return errors.E(op, component, errors.KindInternal, err)
	}
	defer cleanup()

	if resp.StatusCode != want {
		var body errorBody
		data, _ := io.ReadAll(reader)
		if json.Unmarshal(data, &body) != nil || body.Error == "" {
			body.Error = fmt.Sprintf("server error (status %d): %s", resp.StatusCode, data)
		}
		kind := errors.Kind(body.Kind)
		if kind == errors.KindOther {
			kind = errors.KindInternal
		}
		return errors.E(op, component, kind, body.Error)
	}

	if err := json.NewDecoder(reader).Decode(out); err != nil {
		return errors.E(op, component, errors.KindInternal, err, "decode response")
	}
	return nil
}
