//go:build unix

package mmap

import (
	"golang.org/x/sys/unix"
)

func osMap(fd uintptr, size int, opts MapOptions) ([]byte, func([]byte) error, error) {
	prot := unix.PROT_READ
	if opts.Writable {
		prot |= unix.PROT_WRITE
	}
	flags := unix.MAP_SHARED
	if opts.Populate {
		flags |= populateFlag
	}

	data, err := unix.Mmap(int(fd), 0, size, prot, flags)
	if err != nil {
		return nil, nil, err
	}

	return data, unix.Munmap, nil
}

func osAdvise(data []byte, pattern AccessPattern) error {
	if len(data) == 0 {
		return nil
	}

	var advice int
	switch pattern {
	case AccessSequential:
		advice = unix.MADV_SEQUENTIAL
	case AccessRandom:
		advice = unix.MADV_RANDOM
	case AccessWillNeed:
		advice = unix.MADV_WILLNEED
	case AccessDontNeed:
		advice = unix.MADV_DONTNEED
	default:
		advice = unix.MADV_NORMAL
	}

	return unix.Madvise(data, advice)
}

func osFlush(data []byte, async bool) error {
	flags := unix.MS_SYNC
	if async {
		flags = unix.MS_ASYNC
	}
	return unix.Msync(data, flags)
}

func osPin(data []byte) error {
	return unix.Mlock(data)
}

func osUnpin(data []byte) error {
	return unix.Munlock(data)
}
