//go:build unix && !linux

package mmap

// MAP_POPULATE is Linux-only; elsewhere pages fault in lazily.
const populateFlag = 0
