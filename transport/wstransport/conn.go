package wstransport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c0deZ3R0/pixel-chunk/client"
	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/protocol"
)

const opDial = errors.Op("ws.Dial")

// Dialer opens edit connections against a server base URL (http, https, ws
// or wss).
type Dialer struct {
	BaseURL  string
	Header   http.Header
	settings Settings
	ws       *websocket.Dialer
}

var _ client.Dialer = (*Dialer)(nil)

func NewDialer(baseURL string, settings *Settings) *Dialer {
	st := settingsOrDefault(settings)
	return &Dialer{
		BaseURL:  baseURL,
		settings: st,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: st.HandshakeTimeout,
		},
	}
}

// Dial opens an edit connection using default settings.
func Dial(ctx context.Context, baseURL, projectID string) (*Conn, error) {
	return NewDialer(baseURL, nil).dial(ctx, projectID)
}

func (d *Dialer) Dial(ctx context.Context, projectID string) (client.Transport, error) {
	return d.dial(ctx, projectID)
}

func (d *Dialer) dial(ctx context.Context, projectID string) (*Conn, error) {
	u, err := EditURL(d.BaseURL, projectID)
	if err != nil {
		return nil, errors.E(opDial, component, errors.KindInvalid, err)
	}
	ws, resp, err := d.ws.DialContext(ctx, u, d.Header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				return nil, errors.E(opDial, component, errors.KindNoSuchProject, fmt.Sprintf("project %s not found", projectID))
			}
		}
		return nil, errors.E(opDial, component, errors.KindConnectionLost, err)
	}
	return newConn(ws, d.settings), nil
}

// EditURL returns the websocket URL of projectID's edit endpoint.
func EditURL(baseURL, projectID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/projects/" + url.PathEscape(projectID) + "/edit"
	return u.String(), nil
}

// Conn is the client end of an edit connection. A background reader keeps
// answering pings while the caller is idle.
type Conn struct {
	ws       *websocket.Conn
	settings Settings

	writeMu sync.Mutex
	results chan protocol.Result
	failed  chan struct{}
	done    chan struct{}
	err     error

	closeOnce sync.Once
}

var _ client.Transport = (*Conn)(nil)

func newConn(ws *websocket.Conn, settings Settings) *Conn {
	c := &Conn{
		ws:       ws,
		settings: settings,
		results:  make(chan protocol.Result, 4),
		failed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	ws.SetReadLimit(settings.MaxMessageBytes)
	ws.SetReadDeadline(time.Now().Add(settings.ReadTimeout))
	ws.SetPingHandler(func(data string) error {
		ws.SetReadDeadline(time.Now().Add(settings.ReadTimeout))
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(settings.WriteTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	go c.readLoop()
	return c
}

func (c *Conn) readLoop() {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			c.err = err
			close(c.failed)
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		result, err := protocol.DecodeResult(data)
		if err != nil {
			c.err = err
			close(c.failed)
			return
		}
		select {
		case c.results <- result:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) Send(ctx context.Context, req protocol.Request) error {
	data, err := protocol.EncodeRequest(req)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.settings.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.E(errors.OpTransport, component, errors.KindConnectionLost, err)
	}
	return nil
}

func (c *Conn) Receive(ctx context.Context) (protocol.Result, error) {
	select {
	case r := <-c.results:
		return r, nil
	case <-c.failed:
		select {
		case r := <-c.results:
			return r, nil
		default:
		}
		return nil, errors.E(errors.OpTransport, component, errors.KindConnectionLost, c.err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.settings.WriteTimeout))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
