package asterisk

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Artifact is one rendered configuration file plus the console command
// that makes the engine pick it up.
type Artifact struct {
	Filename  string
	Content   string
	ReloadCmd string
}

// Applier persists a rendered artifact and signals the engine to reload.
// The write and the reload are each atomic on their own but not as a
// pair; retrying a full regenerate-and-apply is always safe.
type Applier interface {
	Apply(ctx context.Context, artifact Artifact) error
}

// FileApplier writes artifacts into the engine's config directory and
// reloads via the engine's remote console.
type FileApplier struct {
	ConfigDir     string
	AsteriskBin   string
	ReloadTimeout time.Duration
	Logger        *slog.Logger
}

// NewFileApplier creates a FileApplier with sane defaults. An empty
// asteriskBin falls back to the binary on PATH.
func NewFileApplier(configDir, asteriskBin string, logger *slog.Logger) *FileApplier {
	if asteriskBin == "" {
		asteriskBin = "asterisk"
	}
	return &FileApplier{
		ConfigDir:     configDir,
		AsteriskBin:   asteriskBin,
		ReloadTimeout: 10 * time.Second,
		Logger:        logger,
	}
}

func (a *FileApplier) Apply(ctx context.Context, artifact Artifact) error {
	if err := os.MkdirAll(a.ConfigDir, 0750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(a.ConfigDir, artifact.Filename)

	// Write to a temp file and rename so the engine never reads a
	// half-written config during a reload.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(artifact.Content), 0640); err != nil {
		return fmt.Errorf("writing %s: %w", artifact.Filename, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s into place: %w", artifact.Filename, err)
	}

	a.Logger.Info("config written", "file", artifact.Filename, "bytes", len(artifact.Content))

	if artifact.ReloadCmd == "" {
		return nil
	}
	return a.reload(ctx, artifact.ReloadCmd)
}

func (a *FileApplier) reload(ctx context.Context, command string) error {
	ctx, cancel := context.WithTimeout(ctx, a.ReloadTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.AsteriskBin, "-rx", command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("reload %q failed: %w: %s", command, err, strings.TrimSpace(string(output)))
	}

	a.Logger.Info("asterisk reloaded", "command", command)
	return nil
}
