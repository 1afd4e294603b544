package watch

import (
	"regexp"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

var tooOldResourceVersion = regexp.MustCompile(`too old resource version: \d+ \((\d+)\)`)

// TooOldResourceVersion extracts the server-suggested resource version
// from a "too old resource version: <have> (<want>)" Status message.
// It returns the empty string when the message has a different shape.
func TooOldResourceVersion(message string) string {
	m := tooOldResourceVersion.FindStringSubmatch(message)
	if m == nil {
		return ""
	}
	return m[1]
}

// ResourceVersionFunc reads the resource version cursor out of a
// decoded object, or returns the empty string when the object does not
// carry one.
type ResourceVersionFunc[T any] func(obj T) string

// ObjectResourceVersion is the default extractor. It knows the common
// value kinds, falls back to the metadata accessor interface that every
// pointer to a Kubernetes object satisfies, and gives up with an empty
// string for anything else.
func ObjectResourceVersion(obj any) string {
	switch o := obj.(type) {
	case corev1.Pod:
		return o.ResourceVersion
	case corev1.Event:
		return o.ResourceVersion
	case corev1.ConfigMap:
		return o.ResourceVersion
	case corev1.Namespace:
		return o.ResourceVersion
	case batchv1.CronJob:
		return o.ResourceVersion
	}
	if o, ok := obj.(metav1.Object); ok {
		return o.GetResourceVersion()
	}
	return ""
}
