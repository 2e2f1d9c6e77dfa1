package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Sidecar is the per-session JSON file persisted alongside a live
// multiplexer window (spec §4.3 step 6): `{project, sessionName,
// startedAt, prompt, headBefore}`.
type Sidecar struct {
	Project     string    `json:"project"`
	SessionName string    `json:"sessionName"`
	StartedAt   time.Time `json:"startedAt"`
	Prompt      string    `json:"prompt"`
	HeadBefore  string    `json:"headBefore"`
}

// Signal is the payload an agent CLI writes when it finishes a task,
// either successfully (`completed.json`) or with an error
// (`error.json`).
type Signal struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// sidecarDir returns the directory a project's session sidecar files
// live in.
func sidecarDir(projectWorkDir string) string {
	return filepath.Join(projectWorkDir, ".orchestrator")
}

func (s Sidecar) path(projectWorkDir string) string {
	return filepath.Join(sidecarDir(projectWorkDir), "session.json")
}

// WriteSidecar persists s for projectWorkDir, creating the sidecar
// directory if needed.
func WriteSidecar(projectWorkDir string, s Sidecar) error {
	if err := os.MkdirAll(sidecarDir(projectWorkDir), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(projectWorkDir), raw, 0o644)
}

// ReadSidecar reads the current sidecar for projectWorkDir, if any.
func ReadSidecar(projectWorkDir string) (Sidecar, bool, error) {
	raw, err := os.ReadFile(filepath.Join(sidecarDir(projectWorkDir), "session.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return Sidecar{}, false, nil
		}
		return Sidecar{}, false, err
	}
	var s Sidecar
	if err := json.Unmarshal(raw, &s); err != nil {
		return Sidecar{}, false, err
	}
	return s, true, nil
}

// ClearSidecar removes the session.json sidecar, tolerating absence.
func ClearSidecar(projectWorkDir string) error {
	err := os.Remove(filepath.Join(sidecarDir(projectWorkDir), "session.json"))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// readSignal reads a named terminal signal (completed.json or
// error.json), if present.
func readSignal(projectWorkDir, name string) (Signal, bool, error) {
	raw, err := os.ReadFile(filepath.Join(sidecarDir(projectWorkDir), name))
	if err != nil {
		if os.IsNotExist(err) {
			return Signal{}, false, nil
		}
		return Signal{}, false, err
	}
	var sig Signal
	if err := json.Unmarshal(raw, &sig); err != nil {
		return Signal{}, false, err
	}
	return sig, true, nil
}

// ReadCompletedSignal reads completed.json, if present.
func ReadCompletedSignal(projectWorkDir string) (Signal, bool, error) {
	return readSignal(projectWorkDir, "completed.json")
}

// ReadErrorSignal reads error.json, if present.
func ReadErrorSignal(projectWorkDir string) (Signal, bool, error) {
	return readSignal(projectWorkDir, "error.json")
}

// ArchiveSignals renames completed.json/error.json (if present) to a
// timestamped archive name so the next session for this project starts
// from a clean slate, rather than re-triggering an evaluation on the
// previous session's terminal signal.
func ArchiveSignals(projectWorkDir string) error {
	dir := sidecarDir(projectWorkDir)
	stamp := time.Now().UnixNano()
	for _, name := range []string{"completed.json", "error.json"} {
		src := filepath.Join(dir, name)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := filepath.Join(dir, name+".archived."+strconv.FormatInt(stamp, 10))
		if err := os.Rename(src, dst); err != nil {
			return err
		}
	}
	return nil
}
