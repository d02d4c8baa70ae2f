package device

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// Speaker plays raw PCM through an ffplay child process. Buffers are
// written to ffplay's stdin at their scheduled time; stopping a buffer
// bumps the generation and restarts the process, which is the only way
// to drop audio ffplay has already buffered.
type Speaker struct {
	sampleRate int
	channels   int

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	gen    int
	closed bool
}

// OpenSpeaker starts ffplay for the given PCM shape.
func OpenSpeaker(sampleRate, channels int) (*Speaker, error) {
	s := &Speaker{sampleRate: sampleRate, channels: channels}
	if err := s.spawn(); err != nil {
		return nil, err
	}
	return s, nil
}

// spawn starts a fresh ffplay process. Caller holds mu or is the
// constructor.
func (s *Speaker) spawn() error {
	cmd := exec.Command("ffplay",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", s.sampleRate),
		"-ac", fmt.Sprintf("%d", s.channels),
		"-i", "pipe:0",
		"-nodisp",
		"-loglevel", "quiet",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("speaker pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffplay: %w", err)
	}
	s.cmd = cmd
	s.stdin = stdin
	return nil
}

func (s *Speaker) kill() {
	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
	}
	s.cmd = nil
	s.stdin = nil
}

// playbackSource is one scheduled buffer. Its timers live on the wall
// clock; Stop cancels whichever has not fired yet.
type playbackSource struct {
	speaker *Speaker
	gen     int
	write   *time.Timer
	finish  *time.Timer

	mu   sync.Mutex
	done func()
	over bool
}

func (p *playbackSource) Stop() {
	p.mu.Lock()
	if p.over {
		p.mu.Unlock()
		return
	}
	p.over = true
	done := p.done
	p.mu.Unlock()

	if p.write != nil {
		p.write.Stop()
	}
	if p.finish != nil {
		p.finish.Stop()
	}
	p.speaker.restart(p.gen)
	if done != nil {
		done()
	}
}

// complete marks natural end of playback.
func (p *playbackSource) complete() {
	p.mu.Lock()
	if p.over {
		p.mu.Unlock()
		return
	}
	p.over = true
	done := p.done
	p.mu.Unlock()
	if done != nil {
		done()
	}
}

// Start schedules one buffer. The write happens when at arrives; done
// fires once the buffer's play time has elapsed or it is stopped.
func (s *Speaker) Start(pcm []byte, at time.Time, done func()) (Source, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("speaker closed")
	}
	gen := s.gen
	s.mu.Unlock()

	src := &playbackSource{speaker: s, gen: gen, done: done}

	duration := time.Duration(float64(len(pcm)) /
		float64(s.sampleRate*s.channels*2) * float64(time.Second))
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	src.write = time.AfterFunc(delay, func() {
		s.writeGen(pcm, gen)
	})
	src.finish = time.AfterFunc(delay+duration, src.complete)
	return src, nil
}

// writeGen writes pcm unless the speaker has moved to a newer
// generation, which means this buffer was flushed.
func (s *Speaker) writeGen(pcm []byte, gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.gen != gen || s.stdin == nil {
		return
	}
	s.stdin.Write(pcm)
}

// restart drops buffered audio by replacing the ffplay process. A
// restart request from an old generation is ignored, so flushing many
// sources respawns once.
func (s *Speaker) restart(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.gen != gen {
		return
	}
	s.gen++
	s.kill()
	s.spawn()
}

func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.kill()
	return nil
}
