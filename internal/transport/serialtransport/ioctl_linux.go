//go:build linux

package serialtransport

import "golang.org/x/sys/unix"

const (
	ioctlGets  = unix.TCGETS
	ioctlSets  = unix.TCSETS
	ioctlFlush = unix.TCFLSH
)
