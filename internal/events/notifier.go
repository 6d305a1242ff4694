package events

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// EventName is the socket.io event carrying pipe events.
const EventName = "pipe_event"

// ConnectTimeout bounds the initial connection.
const ConnectTimeout = 15 * time.Second

// Notifier streams events to a socket.io server.
type Notifier struct {
	io *socket.Socket
}

// NotifierOptions configure the connection.
type NotifierOptions struct {
	Namespace          string
	InsecureSkipVerify bool
}

// NewNotifier connects to rawURL and waits for the connection to be
// established.
func NewNotifier(ctx context.Context, rawURL string, o NotifierOptions) (*Notifier, error) {
	logger := ctxlog.FromContext(ctx).With("sink", "socketio", "url", rawURL)
	logger.Debug("Connecting event notifier...")

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("events URL %q must include a scheme and a host", rawURL)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if o.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(o.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Event notifier connected.", "sid", io.Id())
		reportConnect(connectChan, nil)
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		reportConnect(connectChan, err)
	})
	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &Notifier{io: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(ConnectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", ConnectTimeout)
	}
}

// reportConnect hands the first connection outcome to the waiting caller.
// Later outcomes, such as a connect after a connect_error, are dropped.
func reportConnect(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

// Publish emits the event. Delivery is best effort.
func (n *Notifier) Publish(_ context.Context, e Event) {
	n.io.Emit(EventName, payload(e))
}

// Close disconnects from the server.
func (n *Notifier) Close() {
	n.io.Disconnect()
}

func payload(e Event) map[string]any {
	p := map[string]any{
		"run_id":        e.RunID,
		"invocation_id": e.InvocationID,
		"pipe":          e.Pipe,
		"kind":          e.Kind,
		"state":         string(e.State),
		"time":          e.Time.Format(time.RFC3339Nano),
	}
	if e.Result != "" {
		p["result"] = e.Result
	}
	if e.Index != nil {
		p["index"] = *e.Index
	}
	if e.Error != "" {
		p["error"] = e.Error
	}
	if e.State.IsTerminal() {
		p["duration_ms"] = e.Duration.Milliseconds()
	}
	return p
}
