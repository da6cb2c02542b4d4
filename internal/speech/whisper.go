package speech

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// whisperBinaries are the whisper.cpp entry points probed in order.
var whisperBinaries = []string{"whisper-cli", "whisper-cpp", "whisper"}

// WhisperCLI transcribes audio by shelling out to a local whisper.cpp
// build. The binary runs per request; there is no long-lived process to
// manage.
type WhisperCLI struct {
	bin   string
	model string
}

// Probe looks for a usable whisper binary on PATH. The model path is
// optional; an empty value leaves the binary's default model in place.
func Probe(model string) Availability {
	for _, candidate := range whisperBinaries {
		path, err := exec.LookPath(candidate)
		if err != nil {
			continue
		}
		return Available(&WhisperCLI{bin: path, model: model})
	}
	return Unavailable("no whisper binary found in PATH (tried " + strings.Join(whisperBinaries, ", ") + ")")
}

// Transcribe runs the whisper binary against one audio file and returns
// the plain transcription text.
func (w *WhisperCLI) Transcribe(ctx context.Context, audioPath string) (string, error) {
	args := []string{"--no-timestamps", "--language", "en"}
	if w.model != "" {
		args = append(args, "--model", w.model)
	}
	args = append(args, "--file", audioPath)

	cmd := exec.CommandContext(ctx, w.bin, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("whisper: %w: %s", err, detail)
		}
		return "", fmt.Errorf("whisper: %w", err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
