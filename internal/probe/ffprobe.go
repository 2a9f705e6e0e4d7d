// Package probe reads audio stream metadata from source files with ffprobe.
package probe

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tendant/adm-engine-worker/pkg/schema"
)

// Prober returns metadata about an audio file without rendering it.
type Prober interface {
	Probe(ctx context.Context, input string) (*schema.AudioInfo, error)
}

// FFprobe shells out to ffprobe for the first audio stream.
type FFprobe struct {
	binary string
}

func NewFFprobe() *FFprobe {
	return &FFprobe{binary: "ffprobe"}
}

// Available reports whether ffprobe can be found in PATH.
func (f *FFprobe) Available() bool {
	_, err := exec.LookPath(f.binary)
	return err == nil
}

func (f *FFprobe) Probe(ctx context.Context, input string) (*schema.AudioInfo, error) {
	cmd := exec.CommandContext(ctx, f.binary,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name,sample_rate,channels,duration",
		"-show_entries", "format=size",
		"-of", "default=noprint_wrappers=1",
		input,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w\nOutput: %s", err, string(output))
	}

	info := parseOutput(string(output))
	if info.SampleRate == 0 && info.Channels == 0 {
		return nil, fmt.Errorf("ffprobe found no audio stream in %s", input)
	}
	return info, nil
}

// parseOutput reads ffprobe key=value lines. Unparseable values such as
// "N/A" are skipped.
func parseOutput(output string) *schema.AudioInfo {
	info := &schema.AudioInfo{}

	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}

		switch key {
		case "codec_name":
			info.Codec = value
		case "sample_rate":
			if v, err := strconv.Atoi(value); err == nil {
				info.SampleRate = v
			}
		case "channels":
			if v, err := strconv.Atoi(value); err == nil {
				info.Channels = v
			}
		case "duration":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				info.Duration = v
			}
		case "size":
			if v, err := strconv.ParseInt(value, 10, 64); err == nil {
				info.Size = v
			}
		}
	}

	return info
}
