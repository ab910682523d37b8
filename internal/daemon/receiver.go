package daemon

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Receiver turns the launcher's temporary bind of the service port into
// the progress channel: it accepts short-lived connections from the
// daemon and delivers each one as a Notice. On init_completed it closes
// the listener before acking, so the ack doubles as the signal that the
// port is free for the daemon to claim.
type Receiver struct {
	logger    *zap.Logger
	lis       net.Listener
	notices   chan Notice
	done      chan struct{}
	released  atomic.Bool
	closeOnce sync.Once
}

// NewReceiver wraps an already-bound listener and starts accepting.
func NewReceiver(logger *zap.Logger, lis net.Listener) *Receiver {
	r := &Receiver{
		logger:  logger,
		lis:     lis,
		notices: make(chan Notice, 16),
		done:    make(chan struct{}),
	}
	go r.accept()
	return r
}

// Addr returns the address the daemon reports to.
func (r *Receiver) Addr() string {
	return r.lis.Addr().String()
}

// Notices delivers parsed notices in arrival order.
func (r *Receiver) Notices() <-chan Notice {
	return r.notices
}

// Close stops accepting. Pending notices already on the channel remain
// readable.
func (r *Receiver) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		if !r.released.Load() {
			err = r.lis.Close()
		}
	})
	return err
}

func (r *Receiver) accept() {
	for {
		conn, err := r.lis.Accept()
		if err != nil {
			if !r.released.Load() {
				select {
				case <-r.done:
				default:
					r.logger.Warn("progress accept failed", zap.Error(err))
				}
			}
			return
		}
		go r.handle(conn)
	}
}

func (r *Receiver) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return
	}
	var n Notice
	if err := json.Unmarshal(line, &n); err != nil {
		r.logger.Warn("malformed progress notice", zap.Error(err))
		return
	}
	if n.Type == NoticeCompleted {
		// release the service port before acking: the daemon treats
		// the ack as permission to bind it
		r.released.Store(true)
		_ = r.lis.Close()
		ack, _ := json.Marshal(Notice{Type: noticeAck})
		_, _ = conn.Write(append(ack, '\n'))
	}
	select {
	case r.notices <- n:
	case <-r.done:
	}
}
