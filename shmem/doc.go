// Package shmem bridges two pipelines running in separate processes over a
// memory-mapped, single-producer/single-consumer ring of variable-length
// packet slots. A SharedPublisherNode owns the region and writes; a
// SharedSubscriberNodeT reads, tolerating publisher crashes by reattaching.
//
// The ring is coordinated by a process-shared, robust pthread mutex plus
// two process-shared condition variables, so it requires cgo and a
// supporting libc (linux, darwin). On other builds the package compiles,
// but a SharedPublisherNode fails to start with an error wrapping
// ErrUnsupportedPlatform, and a SharedSubscriberNodeT never attaches.
package shmem
