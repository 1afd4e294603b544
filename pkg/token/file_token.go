package token

import (
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileToken is a TokenProvider for a token which is backed by a file.
// This will lookup the value from the file, and will watch the file for
// changes, and re-read when required.
//
// This is typically used for in-cluster service account tokens, which
// Kubernetes mounts into the pod at
// /var/run/secrets/kubernetes.io/serviceaccount/token, and will change
// this file if and when the token expires and is reissued.
type FileToken struct {
	mutex sync.RWMutex
	token string
}

func NewFileToken(filename string) (*FileToken, error) {
	fileToken := &FileToken{}
	if err := fileToken.reload(filename); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					fileToken.reload(filename)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	if err := watcher.Add(filename); err != nil {
		return nil, err
	}

	return fileToken, nil
}

func (t *FileToken) reload(filename string) error {
	value, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	t.mutex.Lock()
	t.token = string(value)
	t.mutex.Unlock()

	return nil
}

func (t *FileToken) Token() string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return t.token
}
