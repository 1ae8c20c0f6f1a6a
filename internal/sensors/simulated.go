package sensors

import "sync"

// Simulated is an in-memory port driven by operator toggles.
type Simulated struct {
	mu           sync.Mutex
	boardPresent bool
	startLatched bool
	enabled      bool
	curtainClear bool
}

// NewSimulated returns a port with no board, enable on, and the curtain clear.
func NewSimulated() *Simulated {
	return &Simulated{enabled: true, curtainClear: true}
}

func (s *Simulated) BoardPresent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boardPresent
}

func (s *Simulated) StartPressed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.startLatched
	s.startLatched = false
	return v
}

func (s *Simulated) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *Simulated) CurtainClear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.curtainClear
}

// ToggleBoard flips board presence and returns the new value.
func (s *Simulated) ToggleBoard() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boardPresent = !s.boardPresent
	return s.boardPresent
}

// PressStart latches one start press.
func (s *Simulated) PressStart() {
	s.mu.Lock()
	s.startLatched = true
	s.mu.Unlock()
}

// ToggleEnable flips the enable switch and returns the new value.
func (s *Simulated) ToggleEnable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = !s.enabled
	return s.enabled
}

// ToggleCurtain flips the light curtain and returns the new value.
func (s *Simulated) ToggleCurtain() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.curtainClear = !s.curtainClear
	return s.curtainClear
}

// State returns the current levels without consuming a latched press.
func (s *Simulated) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		BoardPresent: s.boardPresent,
		StartPressed: s.startLatched,
		Enabled:      s.enabled,
		CurtainClear: s.curtainClear,
	}
}

func (s *Simulated) Health() Health {
	return Health{Name: "simulated inputs", Ready: true}
}
