// Package daemon implements the launcher/daemon handshake: the
// launcher treats a successful bind of the service port as permission
// to spawn the daemon and keeps that bind open as the progress
// receiver; the daemon dials the same port to report initialization
// progress, and binds it itself once the launcher has released it.
package daemon

const (
	// NoticeProgress is a human-readable initialization step.
	NoticeProgress = "progress"
	// NoticeCompleted signals the daemon is serving requests.
	NoticeCompleted = "init_completed"
	// NoticeError signals initialization failed and the daemon exited.
	NoticeError = "init_error"

	noticeAck = "ack"
)

// Notice is a single message on the progress channel. The daemon opens
// a fresh connection per notice and closes it after sending.
type Notice struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// EnvProgressAddr carries the receiver address (the launcher's bind of
// the service port) to the spawned daemon. Unset when the daemon runs
// without a launcher, which makes the reporter a no-op.
const EnvProgressAddr = "SEMDEX_PROGRESS_ADDR"
