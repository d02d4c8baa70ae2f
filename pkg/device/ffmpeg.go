package device

import (
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
)

// Mic captures raw PCM from the default microphone through an ffmpeg
// child process. Read returns little-endian 16-bit samples; Close
// kills the process.
type Mic struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser

	closeOnce sync.Once
	closeErr  error
}

// micArgs builds the ffmpeg argument list for the host platform.
func micArgs(goos string, sampleRate, channels int) ([]string, error) {
	var input []string
	switch goos {
	case "darwin":
		input = []string{"-f", "avfoundation", "-i", ":0"}
	case "linux":
		input = []string{"-f", "pulse", "-i", "default"}
	default:
		return nil, fmt.Errorf("no microphone backend for %s", goos)
	}
	args := []string{"-loglevel", "quiet"}
	args = append(args, input...)
	args = append(args,
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"-f", "s16le",
		"pipe:1",
	)
	return args, nil
}

// OpenMic starts capturing at the given rate and channel count.
func OpenMic(sampleRate, channels int) (*Mic, error) {
	args, err := micArgs(runtime.GOOS, sampleRate, channels)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mic pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}
	return &Mic{cmd: cmd, stdout: stdout}, nil
}

func (m *Mic) Read(p []byte) (int, error) {
	return m.stdout.Read(p)
}

func (m *Mic) Close() error {
	m.closeOnce.Do(func() {
		m.stdout.Close()
		if m.cmd.Process != nil {
			m.cmd.Process.Kill()
		}
		m.closeErr = m.cmd.Wait()
	})
	return m.closeErr
}
