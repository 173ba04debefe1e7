// Package launch defines the collaborator warden uses to start, signal,
// and terminate the external processes it supervises, plus the default
// exec-based implementation that adapts a child's stdio to the frame
// protocol.
package launch

import (
	"context"
	"time"

	"github.com/zjrosen/warden/internal/fleet"
)

// MessageType tags a payload delivered to a managed runtime.
type MessageType string

const (
	// MsgAnnounce carries the host's reply token so the runtime learns
	// where to address its frames.
	MsgAnnounce MessageType = "announce"
	// MsgProfile carries the profile document, answering getProfile.
	MsgProfile MessageType = "profile"
	// MsgGameInfo answers requestGameInfo.
	MsgGameInfo MessageType = "gameInfo"
	// MsgRetrieve carries a cached value, answering retrieve.
	MsgRetrieve MessageType = "retrieve"
	// MsgShout relays a chat line shouted by another runtime.
	MsgShout MessageType = "shout"
	// MsgOperator carries a free-form operator payload.
	MsgOperator MessageType = "operator"
)

// Config is everything one launch needs: what to run, with which
// credential, and where the runtime should address its frames.
type Config struct {
	// Profile names the managed process for logging and bookkeeping.
	Profile string

	Executable string
	Args       []string

	// GamePath, when set, becomes the child's working directory.
	GamePath string

	// Key is the credential pair assigned for this run. Nil when the
	// profile is not bound to a pool.
	Key *fleet.Credential

	// ReplyToken is the opaque token the runtime must stamp on every
	// frame it pushes back.
	ReplyToken string

	// Window placement and initial visibility.
	Window  *fleet.WindowRect
	Visible bool
}

// Handle is a live reference to a launched process.
type Handle interface {
	// Pid returns the OS process id.
	Pid() int
	// Exited reports whether the process has terminated.
	Exited() bool
	// ExitCode returns the exit code once Exited reports true. Before
	// that, and when the exit status is unknowable, it returns -1.
	ExitCode() int
}

// Launcher starts and controls managed processes. Implementations are
// safe for concurrent use; every profile's supervision loop shares one
// Launcher.
type Launcher interface {
	// Launch starts the configured process. ctx bounds the launch call
	// itself; the process outlives it and runs until Terminate.
	Launch(ctx context.Context, cfg Config) (Handle, error)

	// Terminate stops the process: a graceful request first, then a hard
	// kill once grace elapses. It returns once the process is gone or
	// ctx is cancelled.
	Terminate(ctx context.Context, h Handle, grace time.Duration) error

	// ShowWindow makes the process window visible, optionally moving it.
	ShowWindow(h Handle, pos *fleet.WindowRect) error
	// HideWindow hides the process window.
	HideWindow(h Handle) error
	// IsWindowVisible reports the window's current visibility.
	IsWindowVisible(h Handle) (bool, error)

	// SendMessage delivers a typed UTF-8 payload to the process.
	SendMessage(h Handle, mt MessageType, payload string) error

	// PostWindowMessage forwards a raw OS window message to the process
	// window.
	PostWindowMessage(h Handle, msgID, wParam int) error
}
