package mccommand

// Reply is the outcome of exactly one Command. Exactly one of the three
// concrete types is produced per request (§3, §8 invariant 1).
type Reply interface {
	isReply()
}

// NotReady is returned for any command dispatched while the child is still
// starting; it never reaches CommandClient.
type NotReady struct{}

// Ok carries the child's verbatim response body (or a synthesised one, for
// Ping) for a command that executed successfully.
type Ok struct {
	Response string
}

// Err carries a human-readable failure: spam guard, transport failure, or
// any other observable, non-fatal error.
type Err struct {
	Error string
}

func (NotReady) isReply() {}
func (Ok) isReply()       {}
func (Err) isReply()      {}
