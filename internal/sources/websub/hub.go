// Package websub implements the subscriber side of WebSub (PubSubHubbub):
// lease requests to a hub and verification of signed content deliveries.
package websub

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/reshetovitsme/voice-of-light/internal/shared/httpclient"
	"github.com/reshetovitsme/voice-of-light/internal/sources"
	"github.com/samber/oops"
)

// Encoding is how a hub expects its hub.* parameters.
type Encoding int

const (
	// EncodingForm sends parameters as an urlencoded form (the WebSub standard).
	EncodingForm Encoding = iota
	// EncodingJSON sends them as a JSON object, as Twitch's hub does.
	EncodingJSON
)

// Options configures a hub client.
type Options struct {
	HubURL       string
	CallbackURL  string
	Secret       string
	LeaseSeconds int
	Encoding     Encoding
	Header       http.Header
}

// Hub requests subscriptions for topics at one hub.
type Hub struct {
	http *httpclient.Client
	opts Options
}

// New creates a hub client
func New(client *httpclient.Client, opts Options) *Hub {
	return &Hub{http: client, opts: opts}
}

// Request asks the hub to start or stop pushing topic to our callback. The
// hub confirms asynchronously through the callback's verification request.
func (h *Hub) Request(ctx context.Context, topic string, mode sources.LeaseMode) error {
	params := map[string]string{
		"hub.callback": h.opts.CallbackURL,
		"hub.mode":     string(mode),
		"hub.topic":    topic,
	}
	if mode == sources.LeaseSubscribe {
		if h.opts.LeaseSeconds > 0 {
			params["hub.lease_seconds"] = strconv.Itoa(h.opts.LeaseSeconds)
		}
		if h.opts.Secret != "" {
			params["hub.secret"] = h.opts.Secret
		}
	}

	var err error
	switch h.opts.Encoding {
	case EncodingJSON:
		err = h.postJSON(ctx, params)
	default:
		form := url.Values{}
		for k, v := range params {
			form.Set(k, v)
		}
		_, err = h.http.PostForm(ctx, h.opts.HubURL, form, h.opts.Header)
	}
	if err != nil {
		return oops.With("hub", h.opts.HubURL, "topic", topic, "mode", mode).Wrap(err)
	}
	return nil
}

func (h *Hub) postJSON(ctx context.Context, params map[string]string) error {
	body := make(map[string]any, len(params))
	for k, v := range params {
		body[k] = v
	}
	// Twitch expects the lease as a number.
	if v, ok := params["hub.lease_seconds"]; ok {
		n, _ := strconv.Atoi(v)
		body["hub.lease_seconds"] = n
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	header := http.Header{}
	for k, vs := range h.opts.Header {
		header[k] = vs
	}
	header.Set("Content-Type", "application/json")
	_, err = h.http.Post(ctx, h.opts.HubURL, payload, header)
	return err
}
