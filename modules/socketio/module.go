// Package socketio provides the 'socketio' source kind: a streaming cell
// bound to a Socket.IO event. The cell fulfills on every received event
// payload, so downstream cells recompute live as events arrive.
package socketio

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/ctxlog"
	"github.com/vk/cellgridgo/internal/notebook"
	"github.com/vk/cellgridgo/internal/registry"
)

// Module implements the registry.Source interface for this package.
type Module struct{}

// input defines the attributes of a socketio cell.
type input struct {
	URL                string `hcl:"url,attr"`
	Namespace          string `hcl:"namespace,optional"`
	OnEvent            string `hcl:"on_event,attr"`
	EmitEvent          string `hcl:"emit_event,optional"`
	ConnectTimeout     string `hcl:"connect_timeout,optional"`
	InsecureSkipVerify bool   `hcl:"insecure_skip_verify,optional"`
}

// Kind returns the source kind this module compiles.
func (m *Module) Kind() string { return "socketio" }

// Compile builds a streaming definition that connects to the configured
// Socket.IO endpoint and emits every payload received for on_event.
func (m *Module) Compile(_ context.Context, c *notebook.Cell) (cell.Definition, error) {
	in := &input{ConnectTimeout: "10s"}
	if diags := gohcl.DecodeBody(c.Remain, nil, in); diags.HasErrors() {
		return cell.Definition{}, fmt.Errorf("cell %q: %w", c.Name, diags)
	}

	timeout, err := time.ParseDuration(in.ConnectTimeout)
	if err != nil {
		return cell.Definition{}, fmt.Errorf("cell %q: invalid connect_timeout: %w", c.Name, err)
	}

	parsedURL, err := url.Parse(in.URL)
	if err != nil {
		return cell.Definition{}, fmt.Errorf("cell %q: invalid url: %w", c.Name, err)
	}

	compute := func(ctx context.Context, _ map[string]any) (cell.Result, error) {
		return m.connect(ctx, c.Name, parsedURL, in, timeout)
	}

	return cell.Definition{
		Output:  c.Name,
		Compute: compute,
		Flags:   cell.Flags{Autodisplay: c.Display()},
	}, nil
}

// connect establishes the Socket.IO connection synchronously, then hands
// the event flow to a background forwarder. Connection failure rejects the
// cell; a later transport drop just ends the stream.
func (m *Module) connect(ctx context.Context, name string, parsedURL *url.URL, in *input, timeout time.Duration) (cell.Result, error) {
	logger := ctxlog.FromContext(ctx).With("cell", name, "url", in.URL, "onEvent", in.OnEvent)
	logger.Debug("Connecting Socket.IO source.")

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if in.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(in.Namespace, opts)

	connected := make(chan error, 1)
	events := make(chan any, 16)

	io.On(types.EventName("connect"), func(...any) {
		logger.Info("Socket.IO source connected.", "namespace", in.Namespace, "sid", io.Id())
		if in.EmitEvent != "" {
			io.Emit(in.EmitEvent)
		}
		select {
		case connected <- nil:
		default:
		}
	})

	io.On(types.EventName("connect_error"), func(errs ...any) {
		var err error
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			} else {
				err = fmt.Errorf("connect_error: %v", errs[0])
			}
		} else {
			err = fmt.Errorf("connect_error")
		}
		select {
		case connected <- err:
		default:
		}
	})

	io.On(types.EventName(in.OnEvent), func(data ...any) {
		var payload any
		if len(data) > 0 {
			payload = data[0]
		}
		select {
		case events <- payload:
		case <-ctx.Done():
		}
	})

	io.Connect()

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case <-connectCtx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("timed out waiting for initial connection to %s", in.URL)
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, err
		}
	}

	ch := make(chan any)
	go func() {
		defer close(ch)
		defer func() {
			logger.Debug("Disconnecting Socket.IO source.")
			io.Disconnect()
		}()
		for {
			select {
			case payload := <-events:
				select {
				case ch <- payload:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return cell.StreamOf(ch), nil
}

var _ registry.Source = (*Module)(nil)
