package flasher

import "sync/atomic"

// Stats keeps track of what a flash session has pushed to the device.
type Stats struct {
	bytesSent atomic.Uint64
	parts     atomic.Uint32
}

func (s *Stats) AddBytesSent(delta uint64) {
	s.bytesSent.Add(delta)
}

func (s *Stats) AddPart() {
	s.parts.Add(1)
}

func (s *Stats) Reset() {
	s.bytesSent.Store(0)
	s.parts.Store(0)
}

func (s *Stats) GetBytesSent() uint64 {
	return s.bytesSent.Load()
}

func (s *Stats) GetParts() uint32 {
	return s.parts.Load()
}
