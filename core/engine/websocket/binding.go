// Package websocket binds speech engines served over a websocket.
//
// Each engine lives at {base}/engines/{name}. The client sends JSON
// commands (speak, stop, stop_all, pitch, rate) and the server answers with
// ready once the engine can speak, completed for every finished request and
// error when the engine dies.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/koscakluka/ema-access/core/speech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultHandshakeTimeout = 5 * time.Second

type Binding struct {
	baseURL *url.URL
	header  http.Header
	dialer  *gorilla.Dialer
}

type BindingOption func(*Binding)

// WithHeader adds headers to every handshake, for example authorization.
func WithHeader(header http.Header) BindingOption {
	return func(b *Binding) {
		for key, values := range header {
			for _, value := range values {
				b.header.Add(key, value)
			}
		}
	}
}

func WithHandshakeTimeout(timeout time.Duration) BindingOption {
	return func(b *Binding) {
		if timeout > 0 {
			b.dialer.HandshakeTimeout = timeout
		}
	}
}

// NewBinding creates a binding for engines under baseURL. The http and
// https schemes are mapped to ws and wss.
func NewBinding(baseURL string, opts ...BindingOption) (*Binding, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse engine url: %w", err)
	}

	switch parsed.Scheme {
	case "ws", "wss":
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported engine url scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("engine url has no host")
	}

	dialer := *gorilla.DefaultDialer
	dialer.HandshakeTimeout = defaultHandshakeTimeout

	b := &Binding{baseURL: parsed, header: http.Header{}, dialer: &dialer}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Initialize dials the engine. Dial failures are returned; everything after
// the handshake is reported through listener.
func (b *Binding) Initialize(ctx context.Context, name string, listener speech.EngineListener) error {
	ctx, span := tracer.Start(ctx, "dial speech engine")
	defer span.End()
	span.SetAttributes(attribute.String("engine.name", name))

	if strings.TrimSpace(name) == "" {
		err := errors.New("engine name is empty")
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid engine name")
		return err
	}
	if listener == nil {
		return errors.New("engine listener is nil")
	}

	target := b.engineURL(name)
	span.SetAttributes(attribute.String("engine.url", target))

	conn, _, err := b.dialer.DialContext(ctx, target, b.header)
	if err != nil {
		err = fmt.Errorf("failed to open websocket to engine %s: %w", name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return err
	}

	e := newEngine(name, conn, listener)
	go e.readLoop()
	return nil
}

func (b *Binding) engineURL(name string) string {
	target := *b.baseURL
	target.Path = strings.TrimSuffix(target.Path, "/") + "/engines/" + name
	return target.String()
}
