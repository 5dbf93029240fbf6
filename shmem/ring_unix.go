//go:build (linux || darwin) && cgo

package shmem

/*
#include <pthread.h>
#include <stdint.h>
#include <stdlib.h>
#include <string.h>
#include <errno.h>
#include <time.h>
#include <sys/mman.h>
#include <fcntl.h>
#include <unistd.h>

// ring_header_t is the fixed-size portion of the shared-memory region: the
// atomics, the robust process-shared mutex, the two process-shared
// condition variables, the arena write cursor, and the ring's own
// bookkeeping. The variable-length slot array and byte arena follow it
// directly in the mapped region; Go reads and writes those through the
// mapping's byte slice instead of through this struct.
typedef struct {
    int32_t         version;
    int32_t         size;
    int32_t         is_valid;
    pthread_mutex_t mutex;
    pthread_cond_t  cond_packet_ready;
    pthread_cond_t  cond_slot_available;
    uint64_t        write_offset;
    uint32_t        queue_capacity;
    uint32_t        queue_count;
    uint32_t        queue_head;
    uint32_t        queue_tail;
} ring_header_t;

static int ring_init_mutex(ring_header_t *h) {
    pthread_mutexattr_t attr;
    int rc = pthread_mutexattr_init(&attr);
    if (rc != 0) return rc;
    pthread_mutexattr_setpshared(&attr, PTHREAD_PROCESS_SHARED);
    pthread_mutexattr_setrobust(&attr, PTHREAD_MUTEX_ROBUST);
    rc = pthread_mutex_init(&h->mutex, &attr);
    pthread_mutexattr_destroy(&attr);
    return rc;
}

static int ring_init_cond(pthread_cond_t *c) {
    pthread_condattr_t attr;
    int rc = pthread_condattr_init(&attr);
    if (rc != 0) return rc;
    pthread_condattr_setpshared(&attr, PTHREAD_PROCESS_SHARED);
    rc = pthread_cond_init(c, &attr);
    pthread_condattr_destroy(&attr);
    return rc;
}

static int ring_lock(ring_header_t *h) {
    return pthread_mutex_lock(&h->mutex);
}

static int ring_make_consistent(ring_header_t *h) {
    return pthread_mutex_consistent(&h->mutex);
}

static int ring_unlock(ring_header_t *h) {
    return pthread_mutex_unlock(&h->mutex);
}

static int ring_destroy(ring_header_t *h) {
    pthread_cond_destroy(&h->cond_packet_ready);
    pthread_cond_destroy(&h->cond_slot_available);
    return pthread_mutex_destroy(&h->mutex);
}

static int ring_signal_packet_ready(ring_header_t *h) {
    return pthread_cond_signal(&h->cond_packet_ready);
}

static int ring_signal_slot_available(ring_header_t *h) {
    return pthread_cond_signal(&h->cond_slot_available);
}

static struct timespec deadline_from_now(uint32_t timeout_ms) {
    struct timespec ts;
    clock_gettime(CLOCK_REALTIME, &ts);
    ts.tv_nsec += (long)timeout_ms * 1000000L;
    ts.tv_sec += ts.tv_nsec / 1000000000L;
    ts.tv_nsec = ts.tv_nsec % 1000000000L;
    return ts;
}

static int ring_timedwait_packet(ring_header_t *h, uint32_t timeout_ms) {
    struct timespec ts = deadline_from_now(timeout_ms);
    return pthread_cond_timedwait(&h->cond_packet_ready, &h->mutex, &ts);
}

static int ring_timedwait_slot(ring_header_t *h, uint32_t timeout_ms) {
    struct timespec ts = deadline_from_now(timeout_ms);
    return pthread_cond_timedwait(&h->cond_slot_available, &h->mutex, &ts);
}

static int shm_create(const char *name, int *fd) {
    shm_unlink(name);
    *fd = shm_open(name, O_CREAT | O_RDWR | O_TRUNC, 0666);
    if (*fd < 0) return errno;
    return 0;
}

static int shm_attach(const char *name, int *fd) {
    *fd = shm_open(name, O_RDWR, 0666);
    if (*fd < 0) return errno;
    return 0;
}

static int shm_remove(const char *name) {
    return shm_unlink(name);
}
*/
import "C"

import (
	"crypto/rand"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const headerSize = int(C.sizeof_ring_header_t)

// waitResult enumerates the three outcomes of a timed condition wait.
type waitResult int

const (
	waitReady waitResult = iota
	waitTimedOut
	waitInvalid
)

// segment is a mapped shared-memory region. Every field below headerSize
// is accessed through the embedded C struct; the slot array and byte
// arena past it are accessed directly as Go byte slices.
type segment struct {
	name string
	mem  []byte
	h    *C.ring_header_t
}

func (s *segment) capacity() uint32 { return uint32(s.h.queue_capacity) }

// count returns the ring's current occupancy. Must be called with the
// mutex held.
func (s *segment) count() uint32 { return uint32(s.h.queue_count) }

func (s *segment) slots() []PacketSlot {
	cap := s.capacity()
	if cap == 0 {
		return nil
	}
	return unsafe.Slice((*PacketSlot)(unsafe.Pointer(&s.mem[headerSize])), cap)
}

func (s *segment) arenaStart() uint64 {
	return uint64(headerSize) + uint64(s.capacity())*packetSlotSize
}

func (s *segment) isValid() bool {
	return atomic.LoadInt32((*int32)(unsafe.Pointer(&s.h.is_valid))) != 0
}

func (s *segment) setValid(v bool) {
	var n int32
	if v {
		n = 1
	}
	atomic.StoreInt32((*int32)(unsafe.Pointer(&s.h.is_valid)), n)
}

func (s *segment) version() int32 {
	return atomic.LoadInt32((*int32)(unsafe.Pointer(&s.h.version)))
}

// lock acquires the region's robust mutex. ownerDead reports that the
// previous owner died while holding it (EOWNERDEAD); the caller must
// decide whether to make it consistent (the publisher does) or treat the
// whole segment as poisoned, unlock, and reattach (the subscriber does).
func (s *segment) lock() (ownerDead bool, err error) {
	rc := C.ring_lock(s.h)
	switch rc {
	case 0:
		return false, nil
	case C.int(unix.EOWNERDEAD):
		return true, nil
	default:
		return false, fmt.Errorf("shmem: pthread_mutex_lock: errno %d", rc)
	}
}

func (s *segment) makeConsistent() {
	C.ring_make_consistent(s.h)
}

func (s *segment) unlock() {
	C.ring_unlock(s.h)
}

func (s *segment) signalPacketReady() {
	C.ring_signal_packet_ready(s.h)
}

func (s *segment) signalSlotAvailable() {
	C.ring_signal_slot_available(s.h)
}

// waitForPacket must be called with the mutex held. It returns
// immediately if a packet is already queued; otherwise it timed-waits on
// cond_packet_ready for up to timeout.
func (s *segment) waitForPacket(timeout time.Duration) waitResult {
	if s.h.queue_count != 0 {
		return waitReady
	}
	rc := C.ring_timedwait_packet(s.h, C.uint32_t(timeout.Milliseconds()))
	switch rc {
	case 0:
		// A teardown signal or a spurious wakeup can end the wait with the
		// ring still empty; report it as a timeout so the caller re-checks
		// is_valid instead of reading a slot that holds no packet.
		if s.h.queue_count == 0 {
			return waitTimedOut
		}
		return waitReady
	case C.int(unix.ETIMEDOUT):
		return waitTimedOut
	default:
		return waitInvalid
	}
}

// waitForFreeSlot must be called with the mutex held.
func (s *segment) waitForFreeSlot(timeout time.Duration) bool {
	for s.h.queue_count == s.h.queue_capacity {
		if !s.isValid() {
			return false
		}
		rc := C.ring_timedwait_slot(s.h, C.uint32_t(timeout.Milliseconds()))
		if rc != 0 {
			return false
		}
	}
	return true
}

// writeSlot appends a packet descriptor at the ring's tail and advances
// the ring's bookkeeping. Must be called with the mutex held.
func (s *segment) writeSlot(size uint32, channel uint32, offset uint64) {
	slots := s.slots()
	slots[s.h.queue_tail] = PacketSlot{Size: size, Channel: channel, Offset: offset}
	s.h.queue_tail = (s.h.queue_tail + 1) % s.h.queue_capacity
	s.h.queue_count++
}

// readSlot pops the ring's head descriptor and advances bookkeeping. Must
// be called with the mutex held.
func (s *segment) readSlot() PacketSlot {
	slots := s.slots()
	slot := slots[s.h.queue_head]
	s.h.queue_head = (s.h.queue_head + 1) % s.h.queue_capacity
	s.h.queue_count--
	return slot
}

func (s *segment) writeOffset() uint64 {
	return uint64(s.h.write_offset)
}

func (s *segment) setWriteOffset(v uint64) {
	s.h.write_offset = C.uint64_t(v)
}

func (s *segment) arena() []byte {
	return s.mem[s.arenaStart():]
}

// data exposes the full mapped region, for the publisher/subscriber's
// arena-relative reads and writes.
func (s *segment) data() []byte {
	return s.mem
}

// payloadAt returns the slice view of a previously written packet's
// bytes.
func (s *segment) payloadAt(slot PacketSlot) []byte {
	return s.mem[slot.Offset : slot.Offset+uint64(slot.Size)]
}

// createSegment performs create-or-replace: unlink any prior region of
// the same name, create a fresh one, size it, map it, and initialize
// every header field, publishing is_valid=true only once everything else
// is ready.
func createSegment(name string, size int, maxQueueSize uint32) (*segment, error) {
	if size <= 0 || name == "" {
		return nil, fmt.Errorf("shmem: invalid region name or size")
	}
	minSize := headerSize + int(maxQueueSize)*packetSlotSize
	if size < minSize {
		return nil, fmt.Errorf("shmem: region size %d too small for %d slots (need >= %d)", size, maxQueueSize, minSize)
	}

	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var fd C.int
	if rc := C.shm_create(cname, &fd); rc != 0 {
		return nil, fmt.Errorf("shmem: shm_open create %q: %w", name, unix.Errno(rc))
	}
	goFd := int(fd)
	defer unix.Close(goFd)

	if err := unix.Ftruncate(goFd, int64(size)); err != nil {
		return nil, fmt.Errorf("shmem: ftruncate %q: %w", name, err)
	}

	data, err := unix.Mmap(goFd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		C.shm_remove(cname)
		return nil, fmt.Errorf("shmem: mmap %q: %w", name, err)
	}

	s := &segment{name: name, mem: data, h: (*C.ring_header_t)(unsafe.Pointer(&data[0]))}
	s.setValid(false)
	atomic.StoreInt32((*int32)(unsafe.Pointer(&s.h.version)), randomVersion())
	atomic.StoreInt32((*int32)(unsafe.Pointer(&s.h.size)), int32(size))

	if rc := C.ring_init_mutex(s.h); rc != 0 {
		unix.Munmap(data)
		C.shm_remove(cname)
		return nil, fmt.Errorf("shmem: pthread_mutex_init: errno %d", rc)
	}
	if rc := C.ring_init_cond(&s.h.cond_packet_ready); rc != 0 {
		C.ring_destroy(s.h)
		unix.Munmap(data)
		C.shm_remove(cname)
		return nil, fmt.Errorf("shmem: pthread_cond_init (packet ready): errno %d", rc)
	}
	if rc := C.ring_init_cond(&s.h.cond_slot_available); rc != 0 {
		C.ring_destroy(s.h)
		unix.Munmap(data)
		C.shm_remove(cname)
		return nil, fmt.Errorf("shmem: pthread_cond_init (slot available): errno %d", rc)
	}

	s.h.queue_capacity = C.uint32_t(maxQueueSize)
	s.h.queue_count = 0
	s.h.queue_head = 0
	s.h.queue_tail = 0
	s.setWriteOffset(s.arenaStart())

	s.setValid(true)
	return s, nil
}

// attachSegment opens an existing region by name, maps it at its actual
// size, and verifies is_valid before handing it back.
func attachSegment(name string) (*segment, error) {
	if name == "" {
		return nil, fmt.Errorf("shmem: empty region name")
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var fd C.int
	if rc := C.shm_attach(cname, &fd); rc != 0 {
		return nil, fmt.Errorf("shmem: shm_open attach %q: %w", name, unix.Errno(rc))
	}
	goFd := int(fd)
	defer unix.Close(goFd)

	var st unix.Stat_t
	if err := unix.Fstat(goFd, &st); err != nil {
		return nil, fmt.Errorf("shmem: fstat %q: %w", name, err)
	}
	size := int(st.Size)
	if size < headerSize {
		return nil, fmt.Errorf("shmem: region %q too small to contain a header", name)
	}

	data, err := unix.Mmap(goFd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shmem: mmap %q: %w", name, err)
	}

	s := &segment{name: name, mem: data, h: (*C.ring_header_t)(unsafe.Pointer(&data[0]))}
	if !s.isValid() {
		unix.Munmap(data)
		return nil, fmt.Errorf("shmem: region %q not valid", name)
	}
	return s, nil
}

// destroySegment marks the region invalid, wakes any blocked subscriber,
// destroys the synchronization primitives, unmaps, and unlinks. Only the
// publisher ever calls this.
func destroySegment(s *segment) {
	if s == nil {
		return
	}
	if _, err := s.lock(); err == nil {
		s.setValid(false)
		s.signalPacketReady()
		s.signalSlotAvailable()
		s.unlock()
	}
	C.ring_destroy(s.h)
	unix.Munmap(s.mem)

	cname := C.CString(s.name)
	C.shm_remove(cname)
	C.free(unsafe.Pointer(cname))
}

// detachSegment unmaps without unlinking; the publisher owns unlink.
func detachSegment(s *segment) {
	if s == nil {
		return
	}
	unix.Munmap(s.mem)
}

// randomVersion picks the nonce the subscriber uses to detect that the
// region it has mapped was torn down and re-created under the same name.
func randomVersion() int32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return int32(time.Now().UnixNano())
	}
	return int32(buf[0]) | int32(buf[1])<<8 | int32(buf[2])<<16 | int32(buf[3])<<24
}
