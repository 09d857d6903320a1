// Package shmem provides a file-backed, memory-mapped byte region with
// three access modes and a typed header overlay.
//
// A Mapping is the raw building block: it maps a fixed-size file into the
// process address space and hands back the mapped bytes. It does no locking
// and enforces no schema; higher layers (internal/flowfs, internal/grain,
// internal/channelbuf) build atomic, cross-process-safe structures on top of
// the raw bytes it exposes.
//
// TypedRegion, layered on top, overlays a typed header struct T at offset 0 of a
// Mapping and validates that the mapped region is large enough to hold it,
// mirroring hupe1980/vecgo's internal/mmap package generalized from
// read-only vector segments to MXL's create/open/open-read-only modes.
package shmem
