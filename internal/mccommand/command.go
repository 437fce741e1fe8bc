// Package mccommand holds the data model shared between the HTTP control
// plane and the proxy: the moderation commands a caller can request, the
// replies the proxy produces, and the lifecycle status of the supervised
// child.
package mccommand

// Command is a moderation or lifecycle request dispatched to the child MC
// server. It is a closed set of concrete types rather than one struct with
// optional fields, so a Ping can never carry a nickname and a GenerateWorld
// can never carry a reason — impossible combinations don't typecheck.
type Command interface {
	isCommand()
}

// Ban requests the nicknamed player be banned, optionally with a reason.
type Ban struct {
	Nickname string
	Reason   *string
}

// Pardon lifts a ban on the nicknamed player.
type Pardon struct {
	Nickname string
}

// Kick disconnects the nicknamed player, optionally with a reason.
type Kick struct {
	Nickname string
	Reason   *string
}

// WhitelistAdd adds the nicknamed player to the server whitelist.
type WhitelistAdd struct {
	Nickname string
}

// WhitelistRemove removes the nicknamed player from the server whitelist.
type WhitelistRemove struct {
	Nickname string
}

// OpAdd grants operator status to the nicknamed player.
type OpAdd struct {
	Nickname string
}

// DeOp revokes operator status from the nicknamed player.
type DeOp struct {
	Nickname string
}

// GenerateWorld asks the child to pre-generate chunks within radius.
type GenerateWorld struct {
	Radius uint16
}

// CancelGeneration cancels an in-progress GenerateWorld.
type CancelGeneration struct{}

// Ping asks the proxy for the current online player count without touching
// the child's command protocol.
type Ping struct{}

// Quit asks the proxy loop to terminate normally.
type Quit struct{}

func (Ban) isCommand()              {}
func (Pardon) isCommand()           {}
func (Kick) isCommand()             {}
func (WhitelistAdd) isCommand()     {}
func (WhitelistRemove) isCommand()  {}
func (OpAdd) isCommand()            {}
func (DeOp) isCommand()             {}
func (GenerateWorld) isCommand()    {}
func (CancelGeneration) isCommand() {}
func (Ping) isCommand()             {}
func (Quit) isCommand()             {}

// ReplyHandle delivers exactly one Reply back to whoever enqueued the
// Command. Sending must never be skipped: an HTTP handler blocked on
// Recv will otherwise hang until its reply timeout or its request context
// expires.
type ReplyHandle chan<- Reply

// Request pairs a Command with the handle its single Reply must be sent on.
type Request struct {
	Command Command
	Reply   ReplyHandle
}
