// Package watch implements the list-then-watch reflector: it seeds a
// uid-keyed cache by paginated listing, consumes a streaming watch of
// incremental events, and transparently relists on staleness, disconnect,
// or a purged resource-version window (410 Gone). It turns the Kubernetes
// API's at-most-once event stream into an at-least-once, cache-consistent
// stream of callback invocations.
package watch

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
	"k8s.io/klog/v2"
)

// Event bus names, exactly as enumerated in the watch engine's contract.
const (
	EventConnect               = "CONNECT"
	EventData                  = "DATA"
	EventList                  = "LIST"
	EventListError             = "LIST_ERROR"
	EventCacheMiss             = "CACHE_MISS"
	EventInitCacheMiss         = "INIT_CACHE_MISS"
	EventReconnect             = "RECONNECT"
	EventReconnectPending      = "RECONNECT_PENDING"
	EventIncResyncFailureCount = "INC_RESYNC_FAILURE_COUNT"
	EventGiveUp                = "GIVE_UP"
	EventAbort                 = "ABORT"
	EventDataError             = "DATA_ERROR"
	EventNetworkError          = "NETWORK_ERROR"
	EventOldResourceVersion    = "OLD_RESOURCE_VERSION"
)

// Phase names handed to the user callback.
const (
	PhaseAdded    = "ADDED"
	PhaseModified = "MODIFIED"
	PhaseDeleted  = "DELETED"
)

// Item is a cached payload: the server-assigned uid and resource version
// used for diffing, plus the opaque object to hand to the callback.
type Item struct {
	UID             string
	ResourceVersion string
	Object          any
}

// Lister performs one page of a paginated list. cont is the continuation
// token, empty for the first page. It returns the page's items, the list's
// resourceVersion (only meaningful on the first page), the next
// continuation token (empty when exhausted), and any error.
type Lister interface {
	List(ctx context.Context, cont string) (items []Item, resourceVersion string, nextCont string, err error)
}

// StreamOpener opens the long-lived watch connection at the given
// resourceVersion. The caller reads NDJSON lines from the returned stream
// until EOF, error, or ctx cancellation, then closes it.
type StreamOpener interface {
	OpenWatch(ctx context.Context, resourceVersion string) (io.ReadCloser, error)
}

// DecodeFunc decodes one NDJSON line into its event type, item, and (for
// ERROR events) the carried status code.
type DecodeFunc func(line []byte) (eventType string, item Item, statusCode int, err error)

// Callback receives one cache-affecting event. A non-nil return is reported
// on the event bus as DATA_ERROR; the cache mutation that preceded the
// call is never rolled back.
type Callback func(item Item, phase string) error

// Metrics are optional Prometheus instruments the engine updates as it
// runs. A nil field is skipped.
type Metrics struct {
	EventsTotal *prometheus.CounterVec
	CacheSize   prometheus.Gauge
}

// Config holds the recognized watch configuration options (§3).
type Config struct {
	// ResyncFailureMax bounds consecutive relist/reconnect attempts. Nil
	// means unbounded.
	ResyncFailureMax *int
	// ResyncDelaySec is the resync watchdog tick period. Default 5.
	ResyncDelaySec int
	// RelistIntervalSec is the scheduled full relist period. Default 600.
	RelistIntervalSec int
	// LastSeenLimitSeconds is the maximum silence before the watchdog
	// forces a reconnect. Default 600.
	LastSeenLimitSeconds int
	// RelistLimiter, if set, paces timer-triggered (not reconnect- or
	// startup-triggered) relists, e.g. a limiter shared across every
	// watcher in the process to avoid a relist thundering herd.
	RelistLimiter *rate.Limiter
	// Metrics, if set, is updated as the engine runs.
	Metrics *Metrics
}

func (c Config) withDefaults() Config {
	if c.ResyncDelaySec <= 0 {
		c.ResyncDelaySec = 5
	}
	if c.RelistIntervalSec <= 0 {
		c.RelistIntervalSec = 600
	}
	if c.LastSeenLimitSeconds <= 0 {
		c.LastSeenLimitSeconds = 600
	}
	return c
}

// BusEvent is one lifecycle notification delivered on the Watcher's event
// channel.
type BusEvent struct {
	Name    string
	Payload any
}

// Watcher is a single list-then-watch reflector instance. Exactly one
// goroutine (run) ever mutates cache, resourceVersion, and lastSeenAt;
// everything else communicates with it over channels or atomics, so no
// mutex guards the cache itself.
type Watcher struct {
	cfg      Config
	lister   Lister
	opener   StreamOpener
	decode   DecodeFunc
	callback Callback

	cache           map[string]Item
	resourceVersion string
	everListed      bool

	lastSeenAt       time.Time
	lastSeenOverride bool

	failureCount     atomic.Int64
	cacheSize        atomic.Int64
	pendingReconnect atomic.Bool
	closed           atomic.Bool

	events chan BusEvent
	done   chan struct{}
	cancel context.CancelFunc

	startOnce sync.Once
}

// New constructs a Watcher. Call Start to begin the reflector loop.
func New(cfg Config, lister Lister, opener StreamOpener, decode DecodeFunc, callback Callback) *Watcher {
	return &Watcher{
		cfg:      cfg.withDefaults(),
		lister:   lister,
		opener:   opener,
		decode:   decode,
		callback: callback,
		cache:    make(map[string]Item),
		events:   make(chan BusEvent, 64),
		done:     make(chan struct{}),
	}
}

// Events returns the watcher's lifecycle event bus. Consume it or events
// are dropped once the buffer fills; it is not the primary data channel.
func (w *Watcher) Events() <-chan BusEvent { return w.events }

// Done is closed once the engine loop has exited, whether by Close, give
// up, or an unrecoverable context cancellation.
func (w *Watcher) Done() <-chan struct{} { return w.done }

func (w *Watcher) FailureCount() int64 { return w.failureCount.Load() }
func (w *Watcher) CacheSize() int64    { return w.cacheSize.Load() }

// Start begins the reflector loop in its own goroutine. Calling Start more
// than once is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		w.cancel = cancel
		go w.run(runCtx)
	})
}

// Close tears down the watcher: clears timers, aborts the in-flight
// request, destroys the stream, and emits ABORT. Safe to call from any
// goroutine, any number of times.
func (w *Watcher) Close() {
	if w.closed.CompareAndSwap(false, true) {
		if w.cancel != nil {
			w.cancel()
		}
	}
}

func (w *Watcher) isClosed() bool { return w.closed.Load() }

func (w *Watcher) bus(name string, payload any) {
	if w.cfg.Metrics != nil && w.cfg.Metrics.EventsTotal != nil {
		w.cfg.Metrics.EventsTotal.WithLabelValues(name).Inc()
	}
	select {
	case w.events <- BusEvent{Name: name, Payload: payload}:
	default:
	}
}

func (w *Watcher) setCacheSize() {
	n := int64(len(w.cache))
	w.cacheSize.Store(n)
	if w.cfg.Metrics != nil && w.cfg.Metrics.CacheSize != nil {
		w.cfg.Metrics.CacheSize.Set(float64(n))
	}
}

// run is the engine's single logical execution context. It cooperatively
// suspends at every I/O or timer boundary and never processes a second
// event before the callback for the current one returns.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	defer func() {
		if w.isClosed() {
			w.bus(EventAbort, nil)
		}
	}()

	relistTimer := time.NewTimer(jitter(w.cfg.RelistIntervalSec))
	resyncTimer := time.NewTimer(jitter(w.cfg.ResyncDelaySec))
	defer relistTimer.Stop()
	defer resyncTimer.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		if err := w.listAndReconcile(ctx); err != nil {
			w.bus(EventListError, err)
			if !w.onReconnectTrigger(ctx) {
				return
			}
			continue
		}
		w.bus(EventList, nil)

		streamCtx, cancelStream := context.WithCancel(ctx)
		lineCh := make(chan lineResult, 32)
		go w.pumpWatchStream(streamCtx, lineCh)
		w.lastSeenAt = time.Now()
		w.lastSeenOverride = false
		w.bus(EventConnect, nil)

		reconnect := w.sessionLoop(ctx, lineCh, relistTimer, resyncTimer)
		cancelStream()
		if reconnect == sessionAbort {
			return
		}
		if reconnect == sessionGiveUp {
			return
		}
		if !w.onReconnectTrigger(ctx) {
			return
		}
	}
}

type sessionOutcome int

const (
	sessionReconnect sessionOutcome = iota
	sessionAbort
	sessionGiveUp
)

// sessionLoop services one open watch stream until it ends, the watchdog
// forces a reconnect, a 410 purges the resource version, or the context is
// cancelled.
func (w *Watcher) sessionLoop(ctx context.Context, lineCh <-chan lineResult, relistTimer, resyncTimer *time.Timer) sessionOutcome {
	for {
		select {
		case <-ctx.Done():
			return sessionAbort

		case lr, ok := <-lineCh:
			if !ok {
				return sessionReconnect
			}
			if lr.kind == lineEnd {
				if lr.endErr != nil {
					w.bus(EventNetworkError, lr.endErr)
					w.lastSeenOverride = true
				}
				return sessionReconnect
			}
			if lr.decodeErr != nil {
				w.bus(EventDataError, lr.decodeErr)
				continue
			}
			w.lastSeenAt = time.Now()
			w.bus(EventData, lr)
			if w.applyStreamEvent(lr) {
				return sessionReconnect // 410: purge and relist
			}

		case <-relistTimer.C:
			if w.cfg.RelistLimiter == nil || w.cfg.RelistLimiter.Allow() {
				if err := w.listAndReconcile(ctx); err != nil {
					w.bus(EventListError, err)
				} else {
					w.bus(EventList, nil)
				}
			}
			relistTimer.Reset(jitter(w.cfg.RelistIntervalSec))

		case <-resyncTimer.C:
			if w.watchdogShouldReconnect() {
				w.lastSeenAt = time.Now()
				w.lastSeenOverride = false
				w.bus(EventReconnect, "watchdog")
				resyncTimer.Reset(jitter(w.cfg.ResyncDelaySec))
				return sessionReconnect
			}
			resyncTimer.Reset(jitter(w.cfg.ResyncDelaySec))
		}
	}
}

// applyStreamEvent runs the reducer for one decoded NDJSON line. It returns
// true when the line was a 410 Gone and the caller must purge and relist.
func (w *Watcher) applyStreamEvent(lr lineResult) bool {
	switch lr.eventType {
	case "ERROR":
		if lr.statusCode == 410 {
			w.bus(EventOldResourceVersion, w.resourceVersion)
			w.resourceVersion = ""
			return true
		}
		w.bus(EventDataError, fmt.Errorf("watch error event: code=%d", lr.statusCode))
		return false

	case "BOOKMARK":
		if lr.item.ResourceVersion != "" {
			w.resourceVersion = lr.item.ResourceVersion
		}
		return false

	case PhaseAdded, PhaseModified:
		w.cache[lr.item.UID] = lr.item
		w.setCacheSize()
		if lr.item.ResourceVersion != "" {
			w.resourceVersion = lr.item.ResourceVersion
		}
		w.invokeCallback(lr.item, lr.eventType)
		w.failureCount.Store(0)
		return false

	case PhaseDeleted:
		delete(w.cache, lr.item.UID)
		w.setCacheSize()
		w.invokeCallback(lr.item, PhaseDeleted)
		w.failureCount.Store(0)
		return false

	default:
		w.bus(EventDataError, fmt.Errorf("unrecognized watch event type %q", lr.eventType))
		return false
	}
}

func (w *Watcher) invokeCallback(item Item, phase string) {
	if w.callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.bus(EventDataError, fmt.Errorf("callback panic: %v", r))
		}
	}()
	if err := w.callback(item, phase); err != nil {
		w.bus(EventDataError, err)
	}
}

// listAndReconcile performs steps 1-4 of §4.5: a full paginated list diffed
// against the cache, firing ADDED/MODIFIED/DELETED for every divergence.
func (w *Watcher) listAndReconcile(ctx context.Context) error {
	removed := make(map[string]Item, len(w.cache))
	for uid, item := range w.cache {
		removed[uid] = item
	}

	missEvent := EventCacheMiss
	if !w.everListed {
		missEvent = EventInitCacheMiss
	}

	cont := ""
	sawFirstPage := false
	var listRV string
	for {
		items, pageRV, nextCont, err := w.lister.List(ctx, cont)
		if err != nil {
			return err
		}
		if !sawFirstPage {
			listRV = pageRV
			sawFirstPage = true
		}
		for _, item := range items {
			delete(removed, item.UID)
			cached, existed := w.cache[item.UID]
			switch {
			case !existed:
				w.cache[item.UID] = item
				w.bus(missEvent, item)
				w.invokeCallback(item, PhaseAdded)
			case compareResourceVersions(item.ResourceVersion, cached.ResourceVersion) > 0:
				w.cache[item.UID] = item
				w.invokeCallback(item, PhaseModified)
			}
		}
		if nextCont == "" {
			break
		}
		cont = nextCont
	}

	for uid, item := range removed {
		delete(w.cache, uid)
		w.invokeCallback(item, PhaseDeleted)
	}

	w.setCacheSize()
	if listRV != "" {
		w.resourceVersion = listRV
	}
	w.everListed = true
	return nil
}

// onReconnectTrigger implements the backoff/give-up contract: increment
// failureCount, give up past ResyncFailureMax, else sleep off an
// interruptible backoff before the caller retries list-then-watch.
func (w *Watcher) onReconnectTrigger(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	n := w.failureCount.Add(1)
	w.bus(EventIncResyncFailureCount, n)

	if w.cfg.ResyncFailureMax != nil && n > int64(*w.cfg.ResyncFailureMax) {
		klog.Warningf("kubeflux watch: giving up after %d consecutive failures", n)
		w.bus(EventGiveUp, nil)
		w.closed.Store(true)
		return false
	}

	w.pendingReconnect.Store(true)
	w.bus(EventReconnectPending, nil)
	klog.V(2).Infof("kubeflux watch: reconnecting (attempt %d)", n)

	ok := sleepInterruptible(ctx, backoffDelay(n))
	w.pendingReconnect.Store(false)
	return ok
}

func (w *Watcher) watchdogShouldReconnect() bool {
	if w.lastSeenOverride {
		return true
	}
	if w.lastSeenAt.IsZero() {
		return false
	}
	limit := time.Duration(w.cfg.LastSeenLimitSeconds) * time.Second
	return time.Since(w.lastSeenAt) > limit
}

type lineKind int

const (
	lineEvent lineKind = iota
	lineEnd
)

type lineResult struct {
	kind       lineKind
	eventType  string
	item       Item
	statusCode int
	decodeErr  error
	endErr     error
}

// maxLineBytes bounds a single NDJSON line; the Kubernetes API server never
// emits a single watch event anywhere near this size.
const maxLineBytes = 16 * 1024 * 1024

// pumpWatchStream opens the watch connection and decodes it line by line,
// reserving the trailing partial line across reads via bufio.Scanner's own
// rolling buffer. It always terminates by sending exactly one lineEnd
// result and closing ch.
func (w *Watcher) pumpWatchStream(ctx context.Context, ch chan<- lineResult) {
	defer close(ch)

	body, err := w.opener.OpenWatch(ctx, w.resourceVersion)
	if err != nil {
		ch <- lineResult{kind: lineEnd, endErr: err}
		return
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		eventType, item, statusCode, err := w.decode(line)
		if err != nil {
			ch <- lineResult{kind: lineEvent, decodeErr: err}
			continue
		}
		ch <- lineResult{kind: lineEvent, eventType: eventType, item: item, statusCode: statusCode}
	}
	if err := scanner.Err(); err != nil {
		ch <- lineResult{kind: lineEnd, endErr: err}
		return
	}
	ch <- lineResult{kind: lineEnd}
}

// sleepInterruptible waits d or returns false as soon as ctx is cancelled;
// it selects on the timer and ctx.Done rather than polling.
func sleepInterruptible(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// backoffDelay grows with consecutive failures, capped at 30s.
func backoffDelay(failures int64) time.Duration {
	d := time.Duration(failures) * 500 * time.Millisecond
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	if d < 500*time.Millisecond {
		d = 500 * time.Millisecond
	}
	return d
}

// jitter returns secs plus up to 1000ms of random jitter.
func jitter(secs int) time.Duration {
	return time.Duration(secs)*time.Second + time.Duration(rand.Intn(1000))*time.Millisecond
}

// compareResourceVersions parses both as integers per the Kubernetes
// convention and compares numerically; a parse failure on either side
// falls back to treating any textual difference as newer.
func compareResourceVersions(a, b string) int {
	an, aerr := strconv.ParseInt(a, 10, 64)
	bn, berr := strconv.ParseInt(b, 10, 64)
	if aerr != nil || berr != nil {
		if a == b {
			return 0
		}
		return 1
	}
	switch {
	case an > bn:
		return 1
	case an < bn:
		return -1
	default:
		return 0
	}
}
