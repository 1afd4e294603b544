// Package watch turns the Kubernetes API server's hanging-GET watch
// endpoints into a pull-driven stream of typed change events.
//
// A Watcher owns one watch session at a time. Every call to Next
// performs exactly one step: make sure a live response body exists,
// read one newline-delimited JSON event from it, and classify the
// outcome as an Item. Failures never terminate the stream - timeouts,
// stale resource versions, corrupt lines and dropped connections all
// come back as Item values, and the following step retries or reopens
// the session at the last observed resource version.
package watch

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/EmilyShepherd/k8s-watch-go/pkg/client"
	"github.com/EmilyShepherd/k8s-watch-go/pkg/stream"
	"github.com/EmilyShepherd/k8s-watch-go/types"
)

var (
	// ErrOutdatedBody marks a session whose resource version the server
	// rejected. The next step reopens at the updated version.
	ErrOutdatedBody = errors.New("outdated body (invalid resourceVersion)")

	// ErrClosed is reported by every step taken after Close.
	ErrClosed = errors.New("watcher is closed")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DecodeFunc hydrates v from a raw JSON document.
type DecodeFunc func(data []byte, v any) error

func jsonDecode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Watcher is the state of one watch session: the live response body,
// the most recently observed resource version, and the selectors the
// session was opened with. It is single-consumer; concurrent calls to
// Next are not supported.
type Watcher[T any] struct {
	kc     client.Interface
	path   string
	log    Logger
	decode DecodeFunc
	rvOf   ResourceVersionFunc[T]

	fieldSelector   string
	labelSelector   string
	resourceVersion string

	backoff *wait.Backoff

	body    *stream.LineDecoder
	bodyErr error

	mu     sync.Mutex
	closed bool
}

type Option[T any] func(w *Watcher[T])

func WithFieldSelector[T any](selector string) Option[T] {
	return func(w *Watcher[T]) {
		w.fieldSelector = selector
	}
}

func WithLabelSelector[T any](selector string) Option[T] {
	return func(w *Watcher[T]) {
		w.labelSelector = selector
	}
}

// WithResourceVersion starts the watch from a known point rather than
// from the present.
func WithResourceVersion[T any](resourceVersion string) Option[T] {
	return func(w *Watcher[T]) {
		w.resourceVersion = resourceVersion
	}
}

func WithLogger[T any](log Logger) Option[T] {
	return func(w *Watcher[T]) {
		w.log = log
	}
}

// WithDecodeFunc replaces the default json-iterator codec.
func WithDecodeFunc[T any](decode DecodeFunc) Option[T] {
	return func(w *Watcher[T]) {
		w.decode = decode
	}
}

// WithResourceVersionFunc replaces the default resource version
// extractor for the payload type.
func WithResourceVersionFunc[T any](rvOf ResourceVersionFunc[T]) Option[T] {
	return func(w *Watcher[T]) {
		w.rvOf = rvOf
	}
}

// WithBackoff sleeps between session reopens using the given jittered
// exponential backoff. Without it the watcher reopens immediately and
// the caller paces the pulls.
func WithBackoff[T any](backoff wait.Backoff) Option[T] {
	return func(w *Watcher[T]) {
		w.backoff = &backoff
	}
}

// Resource opens a watch on the collection at path, such as
// /api/v1/pods. The first call to the server happens here: if it
// fails, the error is returned and no watcher is constructed. Once a
// watcher exists its stream is infinite - later failures come back as
// items, never as a terminated stream.
func Resource[T any](kc client.Interface, path string, opts ...Option[T]) (*Watcher[T], error) {
	w := &Watcher[T]{
		kc:     kc,
		path:   path,
		log:    klogLogger{},
		decode: jsonDecode,
		rvOf: func(obj T) string {
			return ObjectResourceVersion(obj)
		},
	}
	for _, o := range opts {
		o(w)
	}

	body, err := w.open()
	if err != nil {
		return nil, err
	}
	w.body = stream.NewLineDecoder(body)

	return w, nil
}

// ResourceFor opens a watch on a resource collection addressed by
// group, version and resource name, in the given namespace (or across
// all namespaces when empty).
//
// Watching in kubernetes is a collection-level operation so it's not
// possible to watch a single resource via its URL. When name is given
// it is applied as a fieldSelector on metadata.name instead.
func ResourceFor[T any](kc client.Interface, gvr types.GroupVersionResource, namespace, name string, opts ...Option[T]) (*Watcher[T], error) {
	if name != "" {
		opts = append(opts, func(w *Watcher[T]) {
			selector := "metadata.name=" + name
			if w.fieldSelector != "" {
				selector = w.fieldSelector + "," + selector
			}
			w.fieldSelector = selector
		})
	}

	return Resource[T](kc, client.ResourceRequest{GVR: gvr, Namespace: namespace}.Path(), opts...)
}

// open builds and executes the watch call, classifying the response. A
// non-2xx response is drained and returned as an APIError.
func (w *Watcher[T]) open() (io.ReadCloser, error) {
	reqURL := w.kc.APIServerURL() + w.path +
		"?" + client.WatchParams(w.resourceVersion, w.fieldSelector, w.labelSelector).Encode()

	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "keep-alive")

	resp, err := w.kc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 226 {
		defer resp.Body.Close()
		apiErr := &client.APIError{
			Status:  resp.StatusCode,
			Headers: resp.Header,
			Message: fmt.Sprintf("invalid response code %d for request url %q", resp.StatusCode, reqURL),
		}
		if body, _ := io.ReadAll(resp.Body); len(body) > 0 {
			apiErr.ResponseBody = string(body)
		}
		return nil, apiErr
	}

	return resp.Body, nil
}

// ensureBody is the first half of a step: reuse the current body if it
// is live, otherwise reopen the session at the current resource
// version. An open failure is captured so the read half can report it
// and the next step can retry.
func (w *Watcher[T]) ensureBody() {
	if w.isClosed() {
		w.bodyErr = ErrClosed
		return
	}
	if w.bodyErr == nil && w.body != nil && !w.body.Exhausted() {
		return
	}

	// Release the dead session before opening its replacement.
	if w.body != nil {
		w.body.Close()
		w.body = nil
	}

	if w.backoff != nil {
		time.Sleep(w.backoff.Step())
	}

	w.log.Infof("k8s-watch-go: reopening watch of %s at resource version %q", w.path, w.resourceVersion)
	body, err := w.open()
	if err != nil {
		w.bodyErr = err
		return
	}

	w.body = stream.NewLineDecoder(body)
	w.bodyErr = nil
}

// readOne is the second half of a step: read one line off the body and
// classify it. It always produces exactly one item.
func (w *Watcher[T]) readOne() types.Item[T] {
	if w.bodyErr != nil {
		return types.Item[T]{Type: types.ItemError, Err: w.bodyErr}
	}

	line, err := w.body.Next()
	if err != nil {
		if stream.IsTimeout(err) {
			return types.Item[T]{Type: types.ItemNoData}
		}
		return types.Item[T]{Type: types.ItemError, Err: err}
	}

	return w.classify(line)
}

// Next performs one step of the watch state machine and returns its
// outcome. It blocks while waiting for the server to send the next
// event, and never terminates the stream.
func (w *Watcher[T]) Next() types.Item[T] {
	w.ensureBody()
	return w.readOne()
}

// Seq exposes the watcher as a lazy, infinite sequence of items.
// Breaking out of the range closes the watcher.
func (w *Watcher[T]) Seq() iter.Seq[types.Item[T]] {
	return func(yield func(types.Item[T]) bool) {
		defer w.Close()
		for yield(w.Next()) {
		}
	}
}

// Stream adapts the watcher to the generic stream interfaces, for
// example to consume it through a channel with stream.NewAsyncStream.
func (w *Watcher[T]) Stream() stream.Stream[types.Item[T]] {
	return &watchStream[T]{w: w}
}

// ResourceVersion returns the most recently observed resource version,
// or the empty string when none has been seen yet.
func (w *Watcher[T]) ResourceVersion() string {
	return w.resourceVersion
}

// Close releases the current response body, closing the underlying
// connection. Steps taken after Close report ErrClosed.
func (w *Watcher[T]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.body != nil {
		return w.body.Close()
	}
	return nil
}

func (w *Watcher[T]) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

type watchStream[T any] struct {
	w *Watcher[T]
}

func (s *watchStream[T]) Next() (types.Item[T], error) {
	return s.w.Next(), nil
}

func (s *watchStream[T]) Close() error {
	return s.w.Close()
}
