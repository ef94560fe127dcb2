//go:build !windows

package aio

func startNetwork() error {
	return nil
}

func stopNetwork() {}
