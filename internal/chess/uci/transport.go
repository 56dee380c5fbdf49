package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

const lineBuffer = 64

// Transport carries UCI lines to and from an engine. Start returns a channel of output
// lines that is closed when the engine exits.
type Transport interface {
	Start(ctx context.Context) (<-chan string, error)
	WriteLine(line string) error
	Close() error
}

var errNotStarted = errors.New("engine process not started")

// ProcessTransport runs the engine as a child process over stdin/stdout.
type ProcessTransport struct {
	binaryPath string
	args       []string

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func NewProcessTransport(binaryPath string, args ...string) *ProcessTransport {
	return &ProcessTransport{binaryPath: binaryPath, args: args}
}

func (p *ProcessTransport) Start(ctx context.Context) (<-chan string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.binaryPath) == "" {
		return nil, fmt.Errorf("binary path required")
	}

	cmd := exec.Command(p.binaryPath, p.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.stdin = stdin
	p.mu.Unlock()

	lines := make(chan string, lineBuffer)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdoutPipe)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines, nil
}

func (p *ProcessTransport) WriteLine(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin == nil {
		return errNotStarted
	}
	_, err := io.WriteString(p.stdin, line+"\n")
	return err
}

func (p *ProcessTransport) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stdin != nil {
		p.stdin.Close()
		p.stdin = nil
	}
	if p.cmd == nil {
		return nil
	}
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	err := p.cmd.Wait()
	p.cmd = nil
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
