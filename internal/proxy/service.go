// Package proxy implements ProxyService (§4.3): the single-threaded
// coordinator that owns the child's command/query clients, consumes
// inbound requests, drives a periodic liveness poll, and decides when the
// child has been idle long enough to shut down.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/udisondev/mc-ondemand/internal/mccommand"
)

// ErrSpam is returned by the anti-spam guard when a spam-protected command
// is attempted within AntiSpamWindow of the last successful one (§4.3).
var ErrSpam = errors.New("proxy: sending messages to the server too often")

// ErrInboundClosed is the fatal condition of §7's FatalLoopError: the HTTP
// layer dropped every sender on the inbound channel.
var ErrInboundClosed = errors.New("proxy: inbound channel closed")

// ErrReplyClosed is the other FatalLoopError case: a caller's ReplyHandle
// was closed instead of receiving its one Reply.
var ErrReplyClosed = errors.New("proxy: reply channel closed")

const (
	// DefaultPollPeriod is the interval between OnlinePoller probes (§3).
	DefaultPollPeriod = 5 * time.Second
	// DefaultAntiSpamWindow is the minimum gap between successful
	// spam-protected commands (§3, Glossary "Spam protection").
	DefaultAntiSpamWindow = 5 * time.Second

	stopRetries    = 3
	stopRetryDelay = 5 * time.Second
)

// CommandExecutor is the subset of mcrcon.Client the proxy depends on.
type CommandExecutor interface {
	Exec(command string) (string, error)
}

// OnlinePoller is the subset of mcquery.Poller the proxy depends on.
type OnlinePoller interface {
	CurrentOnline() (uint32, error)
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithPollPeriod overrides DefaultPollPeriod.
func WithPollPeriod(d time.Duration) Option {
	return func(s *Service) { s.pollPeriod = d }
}

// WithAntiSpamWindow overrides DefaultAntiSpamWindow.
func WithAntiSpamWindow(d time.Duration) Option {
	return func(s *Service) { s.antiSpamWindow = d }
}

// Service owns ProxyState (§3) and runs the lifecycle loop. It is meant to
// be driven from exactly one goroutine; there is no internal locking
// because nothing else is allowed to touch it while Run is executing.
type Service struct {
	cmd     CommandExecutor
	poller  OnlinePoller
	inbound <-chan mccommand.Request

	idleTimeout    time.Duration
	pollPeriod     time.Duration
	antiSpamWindow time.Duration

	status        mccommand.Status
	currentOnline uint32
	lastCommandAt time.Time
}

// New creates a Service in the Starting state. idleTimeout is the duration
// a Starting or Idle streak may last before the loop exits (§3, §4.3).
func New(cmd CommandExecutor, poller OnlinePoller, inbound <-chan mccommand.Request, idleTimeout time.Duration, opts ...Option) *Service {
	s := &Service{
		cmd:            cmd,
		poller:         poller,
		inbound:        inbound,
		idleTimeout:    idleTimeout,
		pollPeriod:     DefaultPollPeriod,
		antiSpamWindow: DefaultAntiSpamWindow,
		status:         mccommand.Starting{Since: time.Now()},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the current lifecycle status (for tests/observability).
func (s *Service) Status() mccommand.Status { return s.status }

// CurrentOnline returns the last successfully polled online count.
func (s *Service) CurrentOnline() uint32 { return s.currentOnline }

// Run drives the request/poll loop until the lifecycle decides to
// terminate, the inbound channel closes, a reply handle is found closed, or
// ctx is cancelled. On any exit path it first attempts the best-effort
// "/stop" shutdown tail (§4.3's termination tail).
func (s *Service) Run(ctx context.Context) error {
	timer := time.NewTimer(s.pollPeriod)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdownTail()
			return nil

		case req, ok := <-s.inbound:
			if !ok {
				slog.Warn("inbound channel closed, stopping proxy loop")
				s.shutdownTail()
				return ErrInboundClosed
			}

			quit, err := s.handleRequest(req)
			if err != nil {
				slog.Error("fatal error handling request", "err", err)
				s.shutdownTail()
				return err
			}
			if quit {
				slog.Info("proxy loop received Quit, stopping")
				s.shutdownTail()
				return nil
			}

		case <-timer.C:
			exit := s.handlePoll()
			timer.Reset(s.pollPeriod)
			if exit {
				slog.Info("idle timeout reached, stopping proxy loop")
				s.shutdownTail()
				return nil
			}
		}
	}
}

// handleRequest dispatches one (Command, ReplyHandle) pair and answers it
// exactly once (§8 invariant 1). quit signals Quit was processed; a non-nil
// error is fatal and should terminate Run.
func (s *Service) handleRequest(req mccommand.Request) (quit bool, err error) {
	if _, starting := s.status.(mccommand.Starting); starting {
		return false, s.reply(req.Reply, mccommand.NotReady{})
	}

	if _, isQuit := req.Command.(mccommand.Quit); isQuit {
		return true, s.reply(req.Reply, mccommand.Ok{})
	}

	return false, s.reply(req.Reply, s.dispatch(req.Command))
}

// dispatch builds and runs the child-facing command(s) for cmd and maps the
// outcome to a Reply (§4.3's per-command table).
func (s *Service) dispatch(cmd mccommand.Command) mccommand.Reply {
	switch c := cmd.(type) {
	case mccommand.Ping:
		return mccommand.Ok{Response: strconv.FormatUint(uint64(s.currentOnline), 10)}

	case mccommand.Ban:
		return s.runProtected(banCommandText(c.Nickname, c.Reason))

	case mccommand.Kick:
		return s.runProtected(kickCommandText(c.Nickname, c.Reason))

	case mccommand.Pardon:
		return s.runProtected(fmt.Sprintf("/pardon %s", c.Nickname))

	case mccommand.WhitelistAdd:
		return s.runProtected(fmt.Sprintf("/whitelist add %s", c.Nickname))

	case mccommand.WhitelistRemove:
		return s.runProtected(fmt.Sprintf("/whitelist remove %s", c.Nickname))

	case mccommand.OpAdd:
		return s.runProtected(fmt.Sprintf("/op %s", c.Nickname))

	case mccommand.DeOp:
		return s.runProtected(fmt.Sprintf("/deop %s", c.Nickname))

	case mccommand.CancelGeneration:
		return s.runProtected("/chunky cancel")

	case mccommand.GenerateWorld:
		return s.dispatchGenerateWorld(c.Radius)

	default:
		return mccommand.Err{Error: fmt.Sprintf("proxy: unhandled command %T", cmd)}
	}
}

// dispatchGenerateWorld issues the two GenerateWorld sub-commands
// back-to-back with no poll between them (§5's ordering guarantee).
func (s *Service) dispatchGenerateWorld(radius uint16) mccommand.Reply {
	r1, err := s.sendCommand(fmt.Sprintf("/chunky radius %d", radius), true)
	if err != nil {
		return toReply("", err)
	}

	r2, err := s.sendCommand("/chunky start", false)
	if err != nil {
		return toReply("", err)
	}

	return mccommand.Ok{Response: r1 + "\n" + r2}
}

// runProtected runs a single spam-protected command and maps the result.
func (s *Service) runProtected(text string) mccommand.Reply {
	body, err := s.sendCommand(text, true)
	return toReply(body, err)
}

// sendCommand implements the anti-spam guard (§4.3, §9 "anti-spam on
// successful send only"): a failed send never advances lastCommandAt, so a
// client can retry immediately after a transport failure while healthy
// traffic is still rate-limited.
func (s *Service) sendCommand(text string, protect bool) (string, error) {
	if protect && time.Since(s.lastCommandAt) < s.antiSpamWindow {
		return "", ErrSpam
	}

	body, err := s.cmd.Exec(text)
	if err != nil {
		return "", err
	}

	s.lastCommandAt = time.Now()
	return body, nil
}

// toReply maps a CommandClient outcome onto the Reply envelope. Every
// non-nil error (spam guard or command-transport failure) is an observable,
// non-fatal Err — the loop keeps running (§4.3).
func toReply(body string, err error) mccommand.Reply {
	if err == nil {
		return mccommand.Ok{Response: body}
	}
	if errors.Is(err, ErrSpam) {
		return mccommand.Err{Error: "Sending messages to the server too often"}
	}
	return mccommand.Err{Error: err.Error()}
}

// reply delivers msg on handle exactly once. A ReplyHandle left closed by
// its producer (a bug per §3) turns into the FatalLoopError §7 names,
// rather than crashing the proxy goroutine.
func (s *Service) reply(handle mccommand.ReplyHandle, msg mccommand.Reply) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrReplyClosed
		}
	}()
	handle <- msg
	return nil
}

// handlePoll runs one OnlinePoller probe and applies the idle-timeout /
// status-transition rules of §4.3. It returns true when the lifecycle has
// decided the loop must exit.
func (s *Service) handlePoll() (exit bool) {
	online, err := s.poller.CurrentOnline()
	if err != nil {
		slog.Warn("poll failed", "err", err)
		return s.handlePollFailure()
	}

	s.currentOnline = online
	return s.handlePollSuccess(online)
}

func (s *Service) handlePollFailure() (exit bool) {
	switch st := s.status.(type) {
	case mccommand.Starting:
		return time.Since(st.Since) > s.idleTimeout
	case mccommand.Idle:
		return time.Since(st.Since) > s.idleTimeout
	case mccommand.Busy:
		// A failing poll while Busy is treated as "no one is there
		// anymore"; the idle clock starts (§4.3, §9 open question).
		s.status = mccommand.Idle{Since: time.Now()}
		return false
	}
	return false
}

func (s *Service) handlePollSuccess(online uint32) (exit bool) {
	switch st := s.status.(type) {
	case mccommand.Starting:
		if online == 0 {
			s.status = mccommand.Idle{Since: time.Now()}
		} else {
			s.status = mccommand.Busy{}
		}

	case mccommand.Busy:
		if online == 0 {
			s.status = mccommand.Idle{Since: time.Now()}
		}

	case mccommand.Idle:
		if online > 0 {
			s.status = mccommand.Busy{}
		} else if time.Since(st.Since) > s.idleTimeout {
			return true
		}
	}
	return false
}

// shutdownTail issues a best-effort "/stop" against the child, retrying up
// to stopRetries times with stopRetryDelay between attempts (§4.3).
func (s *Service) shutdownTail() {
	for attempt := 1; attempt <= stopRetries; attempt++ {
		_, err := s.sendCommand("/stop", false)
		if err == nil {
			return
		}
		slog.Warn("stop command failed", "attempt", attempt, "err", err)
		if attempt < stopRetries {
			time.Sleep(stopRetryDelay)
		}
	}
}

// banCommandText builds "/ban <nick> [<reason>]".
func banCommandText(nickname string, reason *string) string {
	return commandWithReason("ban", nickname, reason)
}

// kickCommandText builds "/kick <nick> [<reason>]".
func kickCommandText(nickname string, reason *string) string {
	return commandWithReason("kick", nickname, reason)
}

func commandWithReason(verb, nickname string, reason *string) string {
	if reason != nil {
		return fmt.Sprintf("/%s %s %s", verb, nickname, *reason)
	}
	return fmt.Sprintf("/%s %s", verb, nickname)
}
