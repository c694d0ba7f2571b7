package connectors

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Ckpt records the last fully-applied block. It advances only after
// every transaction of the block has been handed downstream.
type Ckpt struct {
	LastBlock int64
	Timestamp int64
}

type Checkpoint interface {
	Load() (ckpt Ckpt, ok bool, err error)
	Save(ckpt Ckpt) error
}

// FileCheckpoint persists the checkpoint as a two-line text file,
// written atomically (tmp + rename).
type FileCheckpoint struct {
	path string
}

func NewFileCheckpoint(path string) (*FileCheckpoint, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &FileCheckpoint{path: path}, nil
}

func (c *FileCheckpoint) Load() (Ckpt, bool, error) {
	b, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Ckpt{}, false, nil
		}
		return Ckpt{}, false, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return Ckpt{}, false, nil
	}

	lines := strings.Split(s, "\n")
	block, err := strconv.ParseInt(strings.TrimSpace(lines[0]), 10, 64)
	if err != nil {
		return Ckpt{}, false, err
	}

	var ts int64
	if len(lines) >= 2 {
		ts, _ = strconv.ParseInt(strings.TrimSpace(lines[1]), 10, 64)
	}
	return Ckpt{LastBlock: block, Timestamp: ts}, true, nil
}

func (c *FileCheckpoint) Save(ckpt Ckpt) error {
	tmp := c.path + ".tmp"

	content := strconv.FormatInt(ckpt.LastBlock, 10) + "\n" +
		strconv.FormatInt(ckpt.Timestamp, 10) + "\n"

	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}
