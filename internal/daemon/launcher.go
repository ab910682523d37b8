package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ErrAlreadyRunning means the service port is bound, so another daemon
// owns it.
var ErrAlreadyRunning = errors.New("daemon already running")

// Launcher spawns and supervises daemon startup. The service port acts
// as the mutex: whoever can bind it is allowed to launch.
type Launcher struct {
	logger  *zap.Logger
	port    int
	timeout time.Duration
}

// NewLauncher creates a launcher for the given service port. timeout
// bounds the whole initialization, which includes loading every vector
// space from disk.
func NewLauncher(logger *zap.Logger, port int, timeout time.Duration) *Launcher {
	return &Launcher{logger: logger, port: port, timeout: timeout}
}

// Start spawns the daemon as a detached process and waits until it
// reports readiness. onProgress receives each initialization step. The
// daemon outlives the launcher: it is placed in its own session with
// its streams detached.
//
// Binding the service port is the claim to launch: success means no
// daemon is reachable and the bind stays open as the progress receiver
// until the daemon reports init_completed; failure with the port in
// use means another daemon (or launcher) owns it. Existence check and
// claim are one operation, so two racing Start calls yield exactly one
// launch.
func (l *Launcher) Start(ctx context.Context, exe string, args []string, onProgress func(string)) error {
	lis, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", l.port))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("bind port %d: %w", l.port, err)
	}

	recv := NewReceiver(l.logger, lis)
	defer recv.Close()

	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), EnvProgressAddr+"="+recv.Addr())
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devnull.Close()
	cmd.Stdin = devnull
	cmd.Stdout = devnull
	cmd.Stderr = devnull

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn daemon: %w", err)
	}
	l.logger.Info("daemon spawned", zap.Int("pid", cmd.Process.Pid))

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	deadline := time.NewTimer(l.timeout)
	defer deadline.Stop()

	for {
		select {
		case n := <-recv.Notices():
			switch n.Type {
			case NoticeProgress:
				if onProgress != nil {
					onProgress(n.Message)
				}
			case NoticeCompleted:
				return nil
			case NoticeError:
				return fmt.Errorf("daemon initialization failed: %s", n.Error)
			}
		case err := <-exited:
			if err != nil {
				return fmt.Errorf("daemon exited during initialization: %w", err)
			}
			return errors.New("daemon exited during initialization")
		case <-deadline.C:
			_ = cmd.Process.Kill()
			return fmt.Errorf("daemon did not become ready within %s", l.timeout)
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			return ctx.Err()
		}
	}
}
