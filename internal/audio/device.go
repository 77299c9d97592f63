package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"nomvoice/internal/domain"
)

// HostDevice routes the desktop audio stack. Switching into a mode verifies
// the binary for that direction is present and runs the optional route hook.
type HostDevice struct {
	RecorderCommand string
	PlayerCommand   string
	Hooks           map[domain.AudioMode][]string
}

func NewHostDevice(recorder string, player string, hooks map[domain.AudioMode][]string) *HostDevice {
	if recorder == "" {
		recorder = "ffmpeg"
	}
	if player == "" {
		player = "ffplay"
	}
	return &HostDevice{RecorderCommand: recorder, PlayerCommand: player, Hooks: hooks}
}

func (d *HostDevice) SetMode(ctx context.Context, mode domain.AudioMode) error {
	switch mode {
	case domain.AudioModeRecording:
		if _, err := exec.LookPath(d.RecorderCommand); err != nil {
			return fmt.Errorf("recorder %q unavailable: %w", d.RecorderCommand, err)
		}
	case domain.AudioModePlayback:
		if _, err := exec.LookPath(d.PlayerCommand); err != nil {
			return fmt.Errorf("player %q unavailable: %w", d.PlayerCommand, err)
		}
	}

	hook := d.Hooks[mode]
	if len(hook) == 0 {
		return nil
	}
	cmd := exec.CommandContext(ctx, hook[0], hook[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("route hook %q for %s: %w: %s", strings.Join(hook, " "), mode, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
