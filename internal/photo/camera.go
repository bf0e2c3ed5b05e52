package photo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"rakshak/internal/utils"
)

// CommandCamera takes stills through an external program such as fswebcam,
// which must write a JPEG to the path substituted for {output}.
type CommandCamera struct {
	command []string
	dir     string
}

func NewCommandCamera(command []string, dir string) (*CommandCamera, error) {
	if len(command) == 0 {
		return nil, errors.New("photo: empty camera command")
	}
	return &CommandCamera{command: command, dir: dir}, nil
}

func (c *CommandCamera) Capture(ctx context.Context) (string, error) {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return "", fmt.Errorf("photo: create capture dir: %w", err)
	}

	path := filepath.Join(c.dir, utils.GenerateUniqueFilename("photo", ".jpg"))
	args := make([]string, len(c.command))
	for i, a := range c.command {
		args[i] = strings.ReplaceAll(a, "{output}", path)
	}

	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("photo: %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	if size, err := utils.FileSize(path); err != nil || size == 0 {
		os.Remove(path)
		return "", fmt.Errorf("photo: camera produced no image at %s", path)
	}
	return path, nil
}
