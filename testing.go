package fpc

import "github.com/ehrlich-b/go-fpc/internal/sock"

// Pair returns two connected, unstarted endpoints backed by a
// socketpair. Each endpoint owns its own I/O pool, so the pair can
// exchange requests in both directions without deadlocking. Useful for
// tests and in-process producer/consumer setups.
func Pair(config *EndpointConfig) (*Endpoint, *Endpoint, error) {
	a, b, err := sock.Pair()
	if err != nil {
		return nil, nil, wrapError("PAIR", err)
	}
	return NewEndpoint(a, config), NewEndpoint(b, config), nil
}

// StartedPair is Pair with both endpoints already started.
func StartedPair(config *EndpointConfig) (*Endpoint, *Endpoint, error) {
	a, b, err := Pair(config)
	if err != nil {
		return nil, nil, err
	}
	if err := a.Start(); err != nil {
		a.Stop()
		b.Stop()
		return nil, nil, err
	}
	if err := b.Start(); err != nil {
		a.Stop()
		b.Stop()
		return nil, nil, err
	}
	return a, b, nil
}
