package stream

import (
	"errors"
	"net"
	"os"
)

// IsTimeout reports whether err is a read deadline expiring, as opposed
// to the connection actually failing.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
