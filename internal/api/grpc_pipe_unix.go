//go:build !windows

package api

import (
	"fmt"
	"net"
)

func listenPipe(name string) (net.Listener, error) {
	return nil, fmt.Errorf("%w: %s", errPipeUnsupported, name)
}
