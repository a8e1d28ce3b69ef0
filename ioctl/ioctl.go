package ioctl

import "golang.org/x/sys/unix"

// Ioctl issues a raw ioctl(2) syscall. It is the common primitive both the
// SG_IO SCSI transport and any future block-level transport build on.
func Ioctl(fd, request, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, request, arg)
	if errno != 0 {
		return errno
	}
	return nil
}
