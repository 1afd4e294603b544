package watch

import (
	"bytes"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/EmilyShepherd/k8s-watch-go/types"
)

var (
	// ErrNoType means a line decoded to a JSON object without a type
	// field.
	ErrNoType = errors.New("json object has no type field")

	// ErrNoObject means a line carried an event type but no payload.
	ErrNoObject = errors.New("json object should have an object field")
)

// event is the wire envelope of a single watch line. Fields beyond
// type and object are ignored.
type event struct {
	Type   string              `json:"type"`
	Object jsoniter.RawMessage `json:"object"`
}

var nullJSON = []byte("null")

// classify turns one raw line into an item, updating the session state
// as a side effect: a response advances the resource version cursor,
// and a rejected resource version marks the body for reopening. A line
// that cannot be decoded leaves the state untouched so the next step
// simply reads the following line.
func (w *Watcher[T]) classify(line []byte) types.Item[T] {
	var ev event
	if err := w.decode(line, &ev); err != nil {
		w.log.Infof("k8s-watch-go: unable to decode an event from the watch stream: %v", err)
		return types.Item[T]{Type: types.ItemError, Err: fmt.Errorf("decoding watch event: %w", err)}
	}
	if ev.Type == "" {
		return types.Item[T]{Type: types.ItemError, Err: ErrNoType}
	}

	if types.EventType(ev.Type) == types.EventTypeError {
		var status metav1.Status
		if err := w.decode(ev.Object, &status); err != nil {
			return types.Item[T]{Type: types.ItemError, Err: fmt.Errorf("decoding Status object: %w", err)}
		}

		newVersion := TooOldResourceVersion(status.Message)
		if newVersion != "" {
			w.resourceVersion = newVersion
		}
		w.bodyErr = ErrOutdatedBody
		w.log.Infof("k8s-watch-go: watch of %s rejected by the server (%s), resuming at resource version %q", w.path, status.Message, w.resourceVersion)

		return types.Item[T]{Type: types.ItemInvalidResourceVersion, NewResourceVersion: newVersion}
	}

	payload := bytes.TrimSpace(ev.Object)
	if len(payload) == 0 || bytes.Equal(payload, nullJSON) {
		return types.Item[T]{Type: types.ItemError, Err: ErrNoObject}
	}

	var obj T
	if err := w.decode(payload, &obj); err != nil {
		return types.Item[T]{Type: types.ItemError, Err: fmt.Errorf("decoding %s event object: %w", ev.Type, err)}
	}

	if rv := w.rvOf(obj); rv != "" {
		w.resourceVersion = rv
	}

	return types.Item[T]{Type: types.ItemResponse, Event: types.EventType(ev.Type), Object: obj}
}
