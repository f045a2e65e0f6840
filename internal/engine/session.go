package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TerminalMarker starts the line an engine prints when its search is done.
const TerminalMarker = "bestmove"

const stderrLimit = 4096

type readResult struct {
	raw string
	err error
}

// session owns one engine process and its pipes.
type session struct {
	id     string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
	log    zerolog.Logger

	done       chan readResult
	readerDone chan struct{}
	closeOnce  sync.Once
}

func startSession(ctx context.Context, path string, args []string, log zerolog.Logger) (*session, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.WaitDelay = 2 * time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	s := &session{
		id:         uuid.NewString(),
		cmd:        cmd,
		stdin:      stdin,
		stderr:     stderr,
		log:        log,
		done:       make(chan readResult, 1),
		readerDone: make(chan struct{}),
	}
	go s.read(stdout)
	return s, nil
}

// read accumulates stdout until a bestmove line or end of stream.
func (s *session) read(stdout io.Reader) {
	defer close(s.readerDone)

	var buf strings.Builder
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if strings.HasPrefix(strings.TrimSpace(line), TerminalMarker) {
			s.done <- readResult{raw: buf.String()}
			return
		}
	}
	err := sc.Err()
	if err == nil {
		err = fmt.Errorf("output ended before %s: %w", TerminalMarker, io.ErrUnexpectedEOF)
	}
	s.done <- readResult{raw: buf.String(), err: err}
}

// analyze sends the three search commands and waits for the bestmove line.
func (s *session) analyze(ctx context.Context, fen string, skill, depth int) (string, error) {
	cmds := []string{
		fmt.Sprintf("setoption name Skill Level value %d", skill),
		"position fen " + fen,
		fmt.Sprintf("go depth %d", depth),
	}
	for _, c := range cmds {
		if _, err := io.WriteString(s.stdin, c+"\n"); err != nil {
			return "", fmt.Errorf("write %q: %w", c, err)
		}
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-s.done:
		if res.err != nil {
			return "", res.err
		}
		return res.raw, nil
	}
}

// close kills the process and reaps it. Safe to call more than once.
func (s *session) close() {
	s.closeOnce.Do(func() {
		_ = s.stdin.Close()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		// Let the reader drain before Wait closes stdout
		select {
		case <-s.readerDone:
		case <-time.After(2 * time.Second):
		}
		err := s.cmd.Wait()
		s.log.Trace().Str("session", s.id).AnErr("wait", err).Msg("engine process reaped")
	})
}

func (s *session) stderrTail() string {
	return s.stderr.String()
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
