package watch

import "k8s.io/klog/v2"

// Logger lets the watcher report conditions it recovers from by itself,
// such as session reopens. The default logs through klog.
type Logger interface {
	Infof(format string, args ...interface{})
}

type klogLogger struct{}

func (klogLogger) Infof(format string, args ...interface{}) {
	klog.Infof(format, args...)
}
