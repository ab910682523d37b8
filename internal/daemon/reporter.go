package daemon

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
)

// Reporter is the daemon side of the progress channel. Every notice is
// a fresh dial-send-close; losing the launcher never fails
// initialization.
type Reporter struct {
	logger *zap.Logger
	addr   string
	grace  time.Duration
}

// NewReporter reads the receiver address from the environment. An empty
// address yields a no-op reporter, which is the case when the daemon is
// run directly rather than through the launcher.
func NewReporter(logger *zap.Logger, grace time.Duration) *Reporter {
	return &Reporter{
		logger: logger,
		addr:   os.Getenv(EnvProgressAddr),
		grace:  grace,
	}
}

// Progress reports a human-readable initialization step.
func (r *Reporter) Progress(message string) {
	r.send(Notice{Type: NoticeProgress, Message: message}, false)
}

// NotifyCompleted reports readiness and waits for the launcher's ack,
// which means the launcher has released the service port. The handoff
// grace period then lets the launcher finish printing and exit before
// the daemon claims the port.
func (r *Reporter) NotifyCompleted() {
	if r.send(Notice{Type: NoticeCompleted}, true) && r.grace > 0 {
		time.Sleep(r.grace)
	}
}

// NotifyError reports a fatal initialization failure.
func (r *Reporter) NotifyError(err error) {
	r.send(Notice{Type: NoticeError, Error: err.Error()}, false)
}

func (r *Reporter) send(n Notice, awaitAck bool) bool {
	if r.addr == "" {
		return false
	}
	conn, err := net.DialTimeout("tcp", r.addr, 3*time.Second)
	if err != nil {
		r.logger.Debug("progress channel unavailable", zap.Error(err))
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	payload, err := json.Marshal(n)
	if err != nil {
		return false
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		r.logger.Debug("progress write failed", zap.Error(err))
		return false
	}
	if !awaitAck {
		return true
	}
	if _, err := bufio.NewReader(conn).ReadBytes('\n'); err != nil {
		r.logger.Debug("progress ack not received", zap.Error(err))
		return false
	}
	return true
}
