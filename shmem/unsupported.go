//go:build !((linux || darwin) && cgo)

package shmem

import "time"

// segment is the no-op stand-in used on platforms without a supported
// process-shared robust pthread mutex. createSegment, attachSegment and
// lock fail with ErrUnsupportedPlatform, waitForPacket reports waitInvalid,
// and the other operations are no-ops, so code that never touches shmem
// still builds.
type segment struct{}

func createSegment(_ string, _ int, _ uint32) (*segment, error) {
	return nil, ErrUnsupportedPlatform
}

func attachSegment(_ string) (*segment, error) {
	return nil, ErrUnsupportedPlatform
}

func destroySegment(_ *segment) {}
func detachSegment(_ *segment)  {}

func (s *segment) isValid() bool                             { return false }
func (s *segment) lock() (bool, error)                       { return false, ErrUnsupportedPlatform }
func (s *segment) unlock()                                   {}
func (s *segment) makeConsistent()                           {}
func (s *segment) signalPacketReady()                        {}
func (s *segment) signalSlotAvailable()                      {}
func (s *segment) waitForPacket(_ time.Duration) waitResult  { return waitInvalid }
func (s *segment) waitForFreeSlot(_ time.Duration) bool      { return false }
func (s *segment) writeSlot(_ uint32, _ uint32, _ uint64)    {}
func (s *segment) readSlot() PacketSlot                      { return PacketSlot{} }
func (s *segment) writeOffset() uint64                       { return 0 }
func (s *segment) setWriteOffset(_ uint64)                   {}
func (s *segment) arenaStart() uint64                        { return 0 }
func (s *segment) arena() []byte                             { return nil }
func (s *segment) data() []byte                              { return nil }
func (s *segment) payloadAt(_ PacketSlot) []byte             { return nil }
func (s *segment) capacity() uint32                          { return 0 }
func (s *segment) count() uint32                             { return 0 }

type waitResult int

const (
	waitReady waitResult = iota
	waitTimedOut
	waitInvalid
)
