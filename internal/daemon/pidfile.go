package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// State describes a running server as recorded in its PID file.
type State struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"startedAt"`
}

// PIDFile records the running server so `serve status` and `serve stop`
// can find it.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Acquire records the current process as the server listening on addr.
// It fails when the file names another process that is still alive.
func (p *PIDFile) Acquire(addr, version string) error {
	if st, running := p.IsRunning(); running && st.PID != os.Getpid() {
		return fmt.Errorf("server already running (pid %d, addr %s)", st.PID, st.Addr)
	}
	return p.WriteState(State{
		PID:       os.Getpid(),
		Addr:      addr,
		Version:   version,
		StartedAt: time.Now().UTC(),
	})
}

// WriteState writes st to the file, creating its directory.
func (p *PIDFile) WriteState(st State) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return os.WriteFile(p.Path, append(data, '\n'), 0o644)
}

// Read reads the recorded server state.
func (p *PIDFile) Read() (State, error) {
	var st State
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("invalid PID file content: %w", err)
	}
	if st.PID <= 0 {
		return st, fmt.Errorf("invalid PID file content: pid %d", st.PID)
	}
	return st, nil
}

// Remove deletes the PID file. A missing file is not an error.
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
