package kubeflux

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hashmap-kz/kubeflux/internal/executor"
	"github.com/hashmap-kz/kubeflux/internal/pathbuilder"
	iwatch "github.com/hashmap-kz/kubeflux/internal/watch"
)

// Phase names a watch callback is invoked with.
const (
	PhaseAdded    = iwatch.PhaseAdded
	PhaseModified = iwatch.PhaseModified
	PhaseDeleted  = iwatch.PhaseDeleted
)

// WatchCallback receives one cache-affecting object change. A non-nil
// return surfaces as a WatchEvent named DATA_ERROR on the bus; the cache
// write that preceded the call is never rolled back.
type WatchCallback func(obj *Object, phase string) error

// WatchEvent is a lifecycle notification from the reflector, distinct from
// the object-level changes delivered to WatchCallback.
type WatchEvent struct {
	Name    string
	Payload any
}

// WatchMetrics are optional Prometheus instruments updated as the reflector
// runs. A nil field is skipped.
type WatchMetrics struct {
	EventsTotal *prometheus.CounterVec
	CacheSize   prometheus.Gauge
}

// WatchOptions configures a reflector beyond the chain's own filter.
type WatchOptions struct {
	// ResyncFailureMax bounds consecutive relist/reconnect attempts before
	// the watcher gives up and closes. Nil means unbounded.
	ResyncFailureMax *int
	// ResyncDelaySec is the watchdog tick period. Default 5.
	ResyncDelaySec int
	// RelistIntervalSec is the scheduled full relist period. Default 600.
	RelistIntervalSec int
	// LastSeenLimitSeconds is the maximum silence before the watchdog forces
	// a reconnect. Default 600.
	LastSeenLimitSeconds int
	// RelistLimiter, if set, paces timer-triggered relists, e.g. a limiter
	// shared across every watcher in the process.
	RelistLimiter *rate.Limiter
	// Metrics, if set, is updated as the reflector runs.
	Metrics *WatchMetrics
	// PageSize bounds each list page. 0 uses the server default.
	PageSize int64
}

// Watcher is a running list-then-watch reflector bound to one chain's GVK
// and filter.
type Watcher struct {
	inner *iwatch.Watcher
}

// Events returns the watcher's lifecycle event bus.
func (w *Watcher) Events() <-chan WatchEvent {
	out := make(chan WatchEvent)
	go func() {
		defer close(out)
		for ev := range w.inner.Events() {
			out <- WatchEvent{Name: ev.Name, Payload: ev.Payload}
		}
	}()
	return out
}

// Done is closed once the reflector loop has exited.
func (w *Watcher) Done() <-chan struct{} { return w.inner.Done() }

// Close tears the reflector down. Safe to call from any goroutine, any
// number of times.
func (w *Watcher) Close() { w.inner.Close() }

// FailureCount returns the number of consecutive reconnect failures since
// the last successful event.
func (w *Watcher) FailureCount() int64 { return w.inner.FailureCount() }

// CacheSize returns the current number of objects held in the reflector's
// cache.
func (w *Watcher) CacheSize() int64 { return w.inner.CacheSize() }

// Watch starts a list-then-watch reflector over the chain's kind and
// filter. cb is invoked synchronously, in order, once per ADDED/MODIFIED/
// DELETED event; the next event is never processed until cb returns.
func (ch *Chain) Watch(ctx context.Context, cb WatchCallback, opts WatchOptions) (*Watcher, error) {
	if ch.err != nil {
		return nil, ch.err
	}

	cfg := iwatch.Config{
		ResyncFailureMax:     opts.ResyncFailureMax,
		ResyncDelaySec:       opts.ResyncDelaySec,
		RelistIntervalSec:    opts.RelistIntervalSec,
		LastSeenLimitSeconds: opts.LastSeenLimitSeconds,
		RelistLimiter:        opts.RelistLimiter,
	}
	if opts.Metrics != nil {
		cfg.Metrics = &iwatch.Metrics{EventsTotal: opts.Metrics.EventsTotal, CacheSize: opts.Metrics.CacheSize}
	}

	l := &chainLister{ch: ch, pageSize: opts.PageSize}
	o := &chainStreamOpener{ch: ch}

	var callback iwatch.Callback
	if cb != nil {
		callback = func(item iwatch.Item, phase string) error {
			obj, ok := item.Object.(*Object)
			if !ok {
				return fmt.Errorf("kubeflux: watch item carried no decoded object")
			}
			return cb(obj, phase)
		}
	}

	w := iwatch.New(cfg, l, o, decodeWatchLine, callback)
	w.Start(ctx)
	return &Watcher{inner: w}, nil
}

// CacheID returns a stable, short identity for a chain's kind+filter
// combination, suitable for keying an external cache of reflectors that
// share the same server. It hashes the request path and query with the
// server host substituted by a fixed placeholder, so the same kind/filter
// against different clusters produces the same id.
func (ch *Chain) CacheID() (string, error) {
	u, err := pathbuilder.Build("https://cluster", ch.pbGVK(), ch.pbFilter(ch.filter.Name), pathbuilder.Options{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKind, err)
	}
	return cacheIDFromPathQuery(u.Path + "?" + u.RawQuery), nil
}

type chainLister struct {
	ch       *Chain
	pageSize int64
}

func (l *chainLister) List(ctx context.Context, cont string) ([]iwatch.Item, string, string, error) {
	res, err := l.ch.client.executor.Execute(ctx, executor.Request{
		Verb:     executor.VerbList,
		GVK:      l.ch.pbGVK(),
		Filter:   l.ch.pbFilter(""),
		Continue: cont,
		Limit:    l.pageSize,
	})
	if err != nil {
		return nil, "", "", mapExecErr(err)
	}
	var env listEnvelope
	if err := json.Unmarshal(res.Object, &env); err != nil {
		return nil, "", "", fmt.Errorf("kubeflux: decoding list page: %w", err)
	}
	items := make([]iwatch.Item, 0, len(env.Items))
	for _, raw := range env.Items {
		obj := NewObject(raw)
		items = append(items, iwatch.Item{UID: cacheUID(obj), ResourceVersion: obj.ResourceVersion(), Object: obj})
	}
	return items, env.Metadata.ResourceVersion, env.Metadata.Continue, nil
}

type chainStreamOpener struct {
	ch *Chain
}

func (o *chainStreamOpener) OpenWatch(ctx context.Context, resourceVersion string) (io.ReadCloser, error) {
	return o.ch.client.executor.OpenWatch(ctx, o.ch.pbGVK(), o.ch.pbFilter(""), resourceVersion)
}

// watchLine is the wire shape of one NDJSON watch event.
type watchLine struct {
	Type   string          `json:"type"`
	Object json.RawMessage `json:"object"`
}

// watchStatus is the Status payload carried by an ERROR event.
type watchStatus struct {
	Code int `json:"code"`
}

func decodeWatchLine(line []byte) (string, iwatch.Item, int, error) {
	var wl watchLine
	if err := json.Unmarshal(bytes.TrimSpace(line), &wl); err != nil {
		return "", iwatch.Item{}, 0, fmt.Errorf("decoding watch line: %w", err)
	}

	if wl.Type == "ERROR" {
		var st watchStatus
		_ = json.Unmarshal(wl.Object, &st)
		return wl.Type, iwatch.Item{}, st.Code, nil
	}

	var content map[string]any
	if err := json.Unmarshal(wl.Object, &content); err != nil {
		return "", iwatch.Item{}, 0, fmt.Errorf("decoding watch object: %w", err)
	}
	obj := NewObject(content)
	return wl.Type, iwatch.Item{UID: cacheUID(obj), ResourceVersion: obj.ResourceVersion(), Object: obj}, 0, nil
}

// watchCacheNamespace seeds the deterministic UUIDs generated for objects
// that carry no server-assigned uid.
var watchCacheNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("kubeflux.cache"))

// cacheUID returns obj's server-assigned uid, or a deterministic stand-in
// derived from its kind/namespace/name when the object carries none, so
// the same object maps to the same cache key across ADDED/MODIFIED/DELETED
// events.
func cacheUID(obj *Object) string {
	if uid := obj.UID(); uid != "" {
		return uid
	}
	key := obj.Kind() + "/" + obj.Namespace() + "/" + obj.Name()
	return uuid.NewSHA1(watchCacheNamespace, []byte(key)).String()
}
