// Package timeline provides an in-process playback clock for hosts that
// have no timeline of their own.
package timeline

import (
	"fmt"
	"sync"
	"time"

	"kitmsg/internal/domain"
)

type state int

const (
	stopped state = iota
	playing
	paused
)

// Simulated advances with the wall clock while playing and holds at the
// end time once reached.
type Simulated struct {
	mu       sync.Mutex
	state    state
	start    float64
	end      float64
	offset   float64 // current time as of playedAt, or while not playing
	playedAt time.Time
	now      func() time.Time
}

func NewSimulated(start, end float64) (*Simulated, error) {
	if end <= start {
		return nil, fmt.Errorf("timeline end %v must be after start %v", end, start)
	}
	return &Simulated{start: start, end: end, offset: start, now: time.Now}, nil
}

func (s *Simulated) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == playing
}

func (s *Simulated) IsStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stopped
}

func (s *Simulated) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current()
}

func (s *Simulated) StartTime() float64 { return s.start }

func (s *Simulated) EndTime() float64 { return s.end }

func (s *Simulated) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == playing {
		return nil
	}
	s.state = playing
	s.playedAt = s.now()
	return nil
}

func (s *Simulated) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != playing {
		s.state = paused
		return nil
	}
	s.offset = s.current()
	s.state = paused
	return nil
}

// Stop rewinds to the start time.
func (s *Simulated) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stopped
	s.offset = s.start
	return nil
}

// caller holds s.mu
func (s *Simulated) current() float64 {
	if s.state != playing {
		return s.offset
	}
	t := s.offset + s.now().Sub(s.playedAt).Seconds()
	if t > s.end {
		return s.end
	}
	return t
}

var _ domain.Timeline = (*Simulated)(nil)
