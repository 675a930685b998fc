//go:build windows

package api

import (
	"net"

	"github.com/Microsoft/go-winio"
)

// ownerOnly grants the pipe's owner full access and nobody else.
const ownerOnly = "D:P(A;;GA;;;OW)"

func listenPipe(name string) (net.Listener, error) {
	return winio.ListenPipe(name, &winio.PipeConfig{
		SecurityDescriptor: ownerOnly,
		InputBufferSize:    64 << 10,
		OutputBufferSize:   64 << 10,
	})
}
