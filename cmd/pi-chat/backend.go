// ABOUTME: Backend wiring: HTTP opener and message store, cache invalidation, and the reconciler
// ABOUTME: Redis invalidation is added when redis.addr is configured

package main

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/mauromedda/pi-chat-stream/internal/config"
	pilog "github.com/mauromedda/pi-chat-stream/internal/log"
	"github.com/mauromedda/pi-chat-stream/pkg/reconcile"
	"github.com/mauromedda/pi-chat-stream/pkg/stream"
	"github.com/mauromedda/pi-chat-stream/pkg/transport"
)

const (
	streamPath   = "/api/chat/stream"
	messagesPath = "/api/conversations/%s/messages"
)

// streamRequest is the body of POST /api/chat/stream.
type streamRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	Model          string `json:"model,omitempty"`
	Provider       string `json:"provider,omitempty"`
	Prompt         string `json:"prompt"`
}

// httpOpener returns a stream.Opener that posts the prompt to the backend.
func httpOpener(c *transport.Client) stream.Opener {
	return func(ctx context.Context, req stream.SubmitRequest) (io.ReadCloser, error) {
		return c.Stream(ctx, streamPath, streamRequest{
			ConversationID: req.ConversationID,
			Model:          req.Model,
			Provider:       req.Provider,
			Prompt:         req.Prompt,
		})
	}
}

// httpStore reads authoritative conversation messages from the backend.
type httpStore struct {
	client *transport.Client
}

func (s httpStore) Messages(ctx context.Context, conversationID string) ([]stream.Message, error) {
	var msgs []stream.Message
	path := fmt.Sprintf(messagesPath, url.PathEscape(conversationID))
	if err := s.client.GetJSON(ctx, path, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// logNavigator reports the active conversation instead of switching views.
type logNavigator struct{}

func (logNavigator) Navigate(conversationID string) error {
	pilog.Info("conversation %s", conversationID)
	return nil
}

// backend bundles the stream manager with the reconciler watching it.
type backend struct {
	manager    *stream.Manager
	reconciler *reconcile.Reconciler
	view       *reconcile.View
	redis      *reconcile.RedisCache
}

func newBackend(settings *config.Settings) *backend {
	headers := map[string]string{"Accept": "text/event-stream"}
	if settings.APIKey != "" {
		headers["Authorization"] = "Bearer " + settings.APIKey
	}
	client := transport.NewClient(settings.BaseURL, headers)

	mem := reconcile.NewMemoryCache(reconcile.DefaultMemoryCacheSize)
	caches := reconcile.Caches{mem}
	b := &backend{view: reconcile.NewView()}
	if settings.Redis.Addr != "" {
		b.redis = reconcile.NewRedisCache(settings.Redis.Addr, settings.Redis.Channel)
		caches = append(caches, b.redis)
	}

	b.reconciler = reconcile.New(
		reconcile.WithCache(caches),
		reconcile.WithNavigator(logNavigator{}),
		reconcile.WithStore(reconcile.NewCachedStore(httpStore{client: client}, mem)),
		reconcile.WithView(b.view),
	)

	var machineOpts []stream.MachineOption
	if settings.CancelMarker != "" {
		machineOpts = append(machineOpts, stream.WithCancelMarker(settings.CancelMarker))
	}
	if settings.FlushInterval > 0 {
		machineOpts = append(machineOpts, stream.WithFlushInterval(settings.FlushInterval))
	}

	b.manager = stream.NewManager(httpOpener(client),
		stream.WithMachineOptions(machineOpts...),
		stream.WithOptimisticSink(func(sub stream.Submission) {
			b.view.AddOptimistic(sub.Key, sub.User, sub.Assistant)
		}),
	)
	b.reconciler.Attach(b.manager.Dispatcher())
	pilog.Debug("backend %s", client.BaseURL())
	return b
}

// nextSeq loads an existing conversation and returns the ordering slot of
// the next prompt. A failed load is logged and numbering restarts at 0.
func (b *backend) nextSeq(ctx context.Context, conversationID string) int {
	if conversationID == "" {
		return 0
	}
	seq, err := b.reconciler.Load(ctx, conversationID)
	if err != nil {
		pilog.Warn("%v", err)
		return 0
	}
	return seq
}

// Close stops running streams and waits for pending refetches.
func (b *backend) Close() {
	b.manager.Close()
	b.reconciler.Wait()
	b.reconciler.Close()
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			pilog.Warn("closing redis: %v", err)
		}
	}
}
