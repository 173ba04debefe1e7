package launch

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/zjrosen/warden/internal/fleet"
	"github.com/zjrosen/warden/internal/log"
	"github.com/zjrosen/warden/internal/transport"
)

// FrameSink receives the frames a child process emits on stdout.
// The transport dispatcher satisfies it.
type FrameSink interface {
	Push(frame transport.Frame)
}

// ExecLauncher runs profiles as child processes and adapts their stdio
// to the frame protocol: each stdout line is a JSON-encoded
// transport.Frame, and messages to the runtime are JSON lines written to
// stdin. Window visibility is tracked as handle state; moving real
// pixels is the host platform's concern.
type ExecLauncher struct {
	sink FrameSink
}

var _ Launcher = (*ExecLauncher)(nil)

// NewExecLauncher creates a launcher that pushes child frames into sink.
func NewExecLauncher(sink FrameSink) *ExecLauncher {
	return &ExecLauncher{sink: sink}
}

// hostMessage is the JSON line shape written to a child's stdin.
type hostMessage struct {
	Type    MessageType `json:"type"`
	Payload string      `json:"payload,omitempty"`
	MsgID   int         `json:"msg_id,omitempty"`
	WParam  int         `json:"w_param,omitempty"`
}

// execHandle is the Handle issued by ExecLauncher.
type execHandle struct {
	profile string
	token   string
	cmd     *exec.Cmd
	stdin   io.WriteCloser

	// ioDone gates cmd.Wait until both pipe readers hit EOF; Wait closes
	// the pipes, so reaping first would drop buffered output.
	ioDone sync.WaitGroup

	mu       sync.Mutex
	exited   bool
	exitCode int
	visible  bool
	window   *fleet.WindowRect
}

func (h *execHandle) Pid() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return -1
	}
	return h.cmd.Process.Pid
}

func (h *execHandle) Exited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

func (h *execHandle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.exited {
		return -1
	}
	return h.exitCode
}

func (h *execHandle) markExited(code int) {
	h.mu.Lock()
	h.exited = true
	h.exitCode = code
	h.mu.Unlock()
}

// Launch starts cfg.Executable with the credential pair and reply token
// injected as arguments. ctx bounds the launch call only; the child is
// not tied to it and runs until Terminate.
func (l *ExecLauncher) Launch(ctx context.Context, cfg Config) (Handle, error) {
	if cfg.Executable == "" {
		return nil, fmt.Errorf("launch: executable is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("launch cancelled: %w", err)
	}

	args := append([]string(nil), cfg.Args...)
	if cfg.ReplyToken != "" {
		args = append(args, "--reply-token", cfg.ReplyToken)
	}
	if cfg.Key != nil {
		args = append(args, "--cdkey", cfg.Key.Classic, "--cdkey-x", cfg.Key.Expansion)
	}

	// #nosec G204 -- executable and args come from the operator's profile, not remote input
	cmd := exec.Command(cfg.Executable, args...)
	if cfg.GamePath != "" {
		cmd.Dir = cfg.GamePath
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("failed to start %s: %w", cfg.Executable, err)
	}

	h := &execHandle{
		profile: cfg.Profile,
		token:   cfg.ReplyToken,
		cmd:     cmd,
		stdin:   stdin,
		visible: cfg.Visible,
		window:  cfg.Window,
	}

	log.Info(log.CatLaunch, "process started",
		"profile", cfg.Profile, "pid", h.Pid(), "executable", cfg.Executable)

	h.ioDone.Add(2)
	log.SafeGo("launch-stdout-"+cfg.Profile, func() {
		defer h.ioDone.Done()
		l.readFrames(h, stdout)
	})
	log.SafeGo("launch-stderr-"+cfg.Profile, func() {
		defer h.ioDone.Done()
		drainStderr(cfg.Profile, stderr)
	})
	log.SafeGo("launch-wait-"+cfg.Profile, func() {
		waitForExit(h)
	})

	return h, nil
}

// readFrames scans stdout and pushes each JSON frame line into the sink.
// Lines that do not decode are logged and skipped. Frames missing a
// sender are stamped with the launch reply token.
func (l *ExecLauncher) readFrames(h *execHandle, stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var frame transport.Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			log.Debug(log.CatLaunch, "dropping undecodable stdout line",
				"profile", h.profile, "line", string(line), "error", err)
			continue
		}
		if frame.SenderToken == "" {
			frame.SenderToken = h.token
		}
		if l.sink != nil {
			l.sink.Push(frame)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Debug(log.CatLaunch, "stdout scanner error",
			"profile", h.profile, "error", err)
	}
}

func drainStderr(profile string, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		log.Debug(log.CatLaunch, "STDERR", "profile", profile, "line", scanner.Text())
	}
}

// waitForExit reaps the child and records its exit code on the handle.
func waitForExit(h *execHandle) {
	h.ioDone.Wait()
	err := h.cmd.Wait()
	code := 0
	if err != nil {
		code = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}
	h.markExited(code)
	log.Info(log.CatLaunch, "process exited",
		"profile", h.profile, "pid", h.Pid(), "code", code)
}

// Terminate asks the process to exit, waits up to grace, then kills it.
func (l *ExecLauncher) Terminate(ctx context.Context, handle Handle, grace time.Duration) error {
	h, err := l.handle(handle)
	if err != nil {
		return err
	}
	if h.Exited() {
		return nil
	}

	pid := h.Pid()
	log.Info(log.CatLaunch, "terminating process",
		"profile", h.profile, "pid", pid, "grace", grace)

	if err := terminateProcess(pid); err != nil {
		log.Debug(log.CatLaunch, "graceful signal failed",
			"profile", h.profile, "pid", pid, "error", err)
	}
	if l.awaitExit(ctx, h, grace) {
		return nil
	}

	if err := killProcess(pid); err != nil && processAlive(pid) {
		return fmt.Errorf("failed to kill pid %d: %w", pid, err)
	}
	if !l.awaitExit(ctx, h, grace) {
		return fmt.Errorf("pid %d did not exit after kill", pid)
	}
	return nil
}

// awaitExit polls the handle until it exits, d elapses, or ctx ends.
// Reports whether the process is gone.
func (l *ExecLauncher) awaitExit(ctx context.Context, h *execHandle, d time.Duration) bool {
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()

	for {
		if h.Exited() {
			return true
		}
		select {
		case <-ctx.Done():
			return h.Exited()
		case <-deadline.C:
			return h.Exited()
		case <-tick.C:
		}
	}
}

// ShowWindow records the window visible, updating placement when pos is
// non-nil.
func (l *ExecLauncher) ShowWindow(handle Handle, pos *fleet.WindowRect) error {
	h, err := l.handle(handle)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.visible = true
	if pos != nil {
		h.window = pos
	}
	h.mu.Unlock()
	log.Debug(log.CatLaunch, "window shown", "profile", h.profile)
	return nil
}

// HideWindow records the window hidden.
func (l *ExecLauncher) HideWindow(handle Handle) error {
	h, err := l.handle(handle)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.visible = false
	h.mu.Unlock()
	log.Debug(log.CatLaunch, "window hidden", "profile", h.profile)
	return nil
}

// IsWindowVisible reports the tracked visibility.
func (l *ExecLauncher) IsWindowVisible(handle Handle) (bool, error) {
	h, err := l.handle(handle)
	if err != nil {
		return false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.visible, nil
}

// SendMessage writes a typed JSON line to the child's stdin.
func (l *ExecLauncher) SendMessage(handle Handle, mt MessageType, payload string) error {
	h, err := l.handle(handle)
	if err != nil {
		return err
	}
	return h.writeLine(hostMessage{Type: mt, Payload: payload})
}

// PostWindowMessage forwards a raw window message over stdin. The child
// owns its window; the host only relays the message.
func (l *ExecLauncher) PostWindowMessage(handle Handle, msgID, wParam int) error {
	h, err := l.handle(handle)
	if err != nil {
		return err
	}
	return h.writeLine(hostMessage{Type: "winmsg", MsgID: msgID, WParam: wParam})
}

func (h *execHandle) writeLine(msg hostMessage) error {
	if h.Exited() {
		return fmt.Errorf("process %d has exited", h.Pid())
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	data = append(data, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.stdin.Write(data); err != nil {
		return fmt.Errorf("failed to write to pid %d: %w", h.Pid(), err)
	}
	return nil
}

func (l *ExecLauncher) handle(handle Handle) (*execHandle, error) {
	h, ok := handle.(*execHandle)
	if !ok || h == nil {
		return nil, fmt.Errorf("launch: foreign handle %T", handle)
	}
	return h, nil
}
