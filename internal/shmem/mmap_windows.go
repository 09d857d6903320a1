//go:build windows

package shmem

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

func mmapReadWrite(f *os.File, size int64) ([]byte, error) {
	return mmapWindows(f, size, windows.PAGE_READWRITE, windows.FILE_MAP_WRITE)
}

func mmapReadOnly(f *os.File, size int64) ([]byte, error) {
	return mmapWindows(f, size, windows.PAGE_READONLY, windows.FILE_MAP_READ)
}

func mmapWindows(f *os.File, size int64, protect uint32, access uint32) ([]byte, error) {
	h, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, protect, 0, 0, nil)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(h)

	addr, err := windows.MapViewOfFile(h, access, 0, 0, uintptr(size))
	if err != nil {
		return nil, err
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size)), nil
}

func munmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&data[0]))
	return windows.UnmapViewOfFile(addr)
}
