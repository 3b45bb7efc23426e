package hub

import "errors"

var (
	// ErrNameTaken is returned when registering a name that is already active
	ErrNameTaken = errors.New("session name already taken")

	// ErrNotFound is returned when the target session does not exist or already ended
	ErrNotFound = errors.New("session not found")

	// ErrNotListening is returned when connect is attempted on a non-listening session
	ErrNotListening = errors.New("session is not listening")

	// ErrNotConnected is returned when send or refocus hits a session with no active caller
	ErrNotConnected = errors.New("session has no connected caller")

	// ErrNoCaller is returned when respond finds nobody to deliver to
	ErrNoCaller = errors.New("no caller connected")

	// ErrTimeout is returned when a wait expires or the idle supervisor reclaims a session
	ErrTimeout = errors.New("timed out")

	// ErrSessionEnded is returned when an operation hits a terminated session
	ErrSessionEnded = errors.New("session ended")

	// ErrConnectionLost is returned when the peer disconnects mid-wait
	ErrConnectionLost = errors.New("connection lost")
)
