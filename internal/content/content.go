// Package content resolves a lesson selector into renderable email material.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Block is the material for one day's email.
type Block struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	HTML  string `json:"html,omitempty"`
}

// Resolver fetches content for a selector.
type Resolver interface {
	Resolve(ctx context.Context, selector string) (Block, error)
}

// Static always returns the same block. Useful for tests and dry runs.
type Static struct{ Block Block }

func (s Static) Resolve(context.Context, string) (Block, error) {
	return s.Block, nil
}

// Exec shells out to an external command that prints a Block as JSON. The
// selector is appended as the final argument.
type Exec struct {
	Command []string
	Timeout time.Duration
}

func NewExec(command []string, timeout time.Duration) *Exec {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Exec{Command: command, Timeout: timeout}
}

func (e *Exec) Resolve(ctx context.Context, selector string) (Block, error) {
	if len(e.Command) == 0 {
		return Block{}, fmt.Errorf("content command not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	args := append(append([]string{}, e.Command[1:]...), selector)
	cmd := exec.CommandContext(ctx, e.Command[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return Block{}, fmt.Errorf("content command: %w: %s", err, detail)
		}
		return Block{}, fmt.Errorf("content command: %w", err)
	}

	var block Block
	dec := json.NewDecoder(bytes.NewReader(stdout.Bytes()))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&block); err != nil {
		return Block{}, fmt.Errorf("content output for %s: %w", selector, err)
	}
	if strings.TrimSpace(block.Text) == "" && strings.TrimSpace(block.HTML) == "" {
		return Block{}, fmt.Errorf("content output for %s is empty", selector)
	}
	return block, nil
}
