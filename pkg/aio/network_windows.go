//go:build windows

package aio

import (
	"os"

	"github.com/brickingsoft/errors"
	"golang.org/x/sys/windows"
)

func startNetwork() error {
	var data windows.WSAData
	if err := windows.WSAStartup(uint32(0x202), &data); err != nil {
		return errors.New(
			"start networking failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithWrap(os.NewSyscallError("wsa_startup", err)),
		)
	}
	return nil
}

func stopNetwork() {
	_ = windows.WSACleanup()
}
