package adapt

import (
	"log/slog"
	"net/http"

	"github.com/hendrywilliam/adapt/gateway"
	"github.com/hendrywilliam/adapt/structs"
)

type options struct {
	server        Server
	logger        *slog.Logger
	httpClient    *http.Client
	codec         gateway.Codec
	compress      bool
	backoff       gateway.Backoff
	missThreshold int
	maxMessages   int
	onError       func(err error)
	status        structs.Status
}

func defaultOptions() options {
	return options{
		server:        ProductionServer(),
		logger:        slog.Default(),
		codec:         gateway.JSONCodec(),
		backoff:       gateway.DefaultBackoff(),
		missThreshold: 3,
	}
}

type Option func(o *options)

// WithServer points the client at a different deployment, e.g.
// LocalServer("localhost") during development.
func WithServer(server Server) Option {
	return func(o *options) { o.server = server }
}

func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.logger = log
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) { o.httpClient = httpClient }
}

// WithCodec switches the gateway encoding, e.g. gateway.MsgpackCodec().
func WithCodec(codec gateway.Codec) Option {
	return func(o *options) {
		if codec != nil {
			o.codec = codec
		}
	}
}

// WithCompression asks the gateway to zlib-compress inbound traffic.
func WithCompression() Option {
	return func(o *options) { o.compress = true }
}

// WithBackoff replaces the reconnect schedule.
func WithBackoff(b gateway.Backoff) Option {
	return func(o *options) { o.backoff = b }
}

// WithHeartbeatMissThreshold sets how many silent heartbeat intervals force
// a reconnect.
func WithHeartbeatMissThreshold(n int) Option {
	return func(o *options) { o.missThreshold = n }
}

// WithMaxMessages caps the message cache at n, evicting the oldest past it.
// Zero, the default, keeps every message until its explicit delete.
func WithMaxMessages(n int) Option {
	return func(o *options) { o.maxMessages = n }
}

// WithErrorHandler receives handler panics (as *HandlerError) and other
// asynchronous faults instead of the default log line.
func WithErrorHandler(fn func(err error)) Option {
	return func(o *options) { o.onError = fn }
}

// WithStatus sets the presence advertised when the connection identifies.
func WithStatus(status structs.Status) Option {
	return func(o *options) { o.status = status }
}
