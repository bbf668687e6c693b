package console

import (
	"bytes"
	"sync"
)

// LogWriter feeds complete log lines into a channel for the model. Lines
// are dropped when the channel is full so logging never blocks on the UI.
type LogWriter struct {
	mu      sync.Mutex
	ch      chan string
	partial []byte
}

func NewLogWriter(buffer int) *LogWriter {
	return &LogWriter{ch: make(chan string, buffer)}
}

// Lines is the channel to pass to NewModel.
func (w *LogWriter) Lines() <-chan string {
	return w.ch
}

func (w *LogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		line := string(w.partial[:i])
		w.partial = w.partial[i+1:]
		select {
		case w.ch <- line:
		default:
		}
	}
	return len(p), nil
}
