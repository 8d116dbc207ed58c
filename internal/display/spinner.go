package display

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

const spinnerDelay = 120 * time.Millisecond

// Spinner animates a message while a long operation runs
type Spinner struct {
	writer  io.Writer
	colors  *colorizer
	primary Color

	mu      sync.Mutex
	message string
	active  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func newSpinner(w io.Writer, colors *colorizer, primary Color, message string) *Spinner {
	return &Spinner{writer: w, colors: colors, primary: primary, message: message}
}

func (s *Spinner) start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.animate()
}

// Update replaces the message shown next to the spinner
func (s *Spinner) Update(message string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Stop ends the animation and prints final when it is not empty.
// Stopping a nil spinner does nothing.
func (s *Spinner) Stop(final string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh
	fmt.Fprint(s.writer, "\r\033[K")
	if final != "" {
		fmt.Fprintln(s.writer, final)
	}
}

func (s *Spinner) animate() {
	defer close(s.doneCh)

	ticker := time.NewTicker(spinnerDelay)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		s.mu.Lock()
		message := s.message
		s.mu.Unlock()
		glyph := spinnerFrames[frame%len(spinnerFrames)]
		fmt.Fprintf(s.writer, "\r\033[K%s %s", s.colors.Sprint(s.primary, glyph), message)

		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}
	}
}
