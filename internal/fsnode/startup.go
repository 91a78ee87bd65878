package fsnode

import (
	"context"
	"errors"
	"strings"
	"time"

	"callmgr/internal/switchio"
)

// StartupCommand is one bring-up command and its argument.
type StartupCommand struct {
	Command string
	Arg     string
}

type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeError
	OutcomeTimeout
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeError:
		return "error"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// StartupOutcome is the classified result of one bring-up command.
type StartupOutcome struct {
	Kind     OutcomeKind
	Command  string
	Response string
}

// Clean reports whether every recorded outcome is ok. A single non-ok
// outcome fails the entire bring-up; partial bring-up is never accepted.
func Clean(outcomes []StartupOutcome) bool {
	for _, o := range outcomes {
		if o.Kind != OutcomeOK {
			return false
		}
	}
	return true
}

// startupAllowList is the fixed set of commands bring-up may execute.
// Startup commands come from configuration; anything else is refused so a
// poisoned config cannot run arbitrary switch commands.
var startupAllowList = map[string]struct{}{
	"load":      {},
	"reload":    {},
	"reloadacl": {},
	"reloadxml": {},
	"sofia":     {},
}

// runStartup executes the configured bring-up commands in order and
// classifies each reply. An empty command list is suspicious but not fatal:
// the sequencer waits out the empty-startup grace period and reports no
// outcomes.
func (n *Node) runStartup(ctx context.Context) []StartupOutcome {
	var cmds []StartupCommand
	if n.deps.Startup != nil {
		cmds = n.deps.Startup.StartupCommands(n.identity)
	}
	if len(cmds) == 0 {
		n.log.Warn("no startup commands configured")
		select {
		case <-time.After(n.timeouts.emptyStartup):
		case <-ctx.Done():
		}
		return nil
	}

	var outcomes []StartupOutcome
	for _, cmd := range cmds {
		if _, ok := startupAllowList[cmd.Command]; !ok {
			outcomes = append(outcomes, StartupOutcome{
				Kind:     OutcomeError,
				Command:  cmd.Command,
				Response: "command not permitted",
			})
			continue
		}

		reply, err := n.client.API(ctx, cmd.Command, cmd.Arg)
		if err != nil {
			if errors.Is(err, switchio.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				outcomes = append(outcomes, StartupOutcome{Kind: OutcomeTimeout, Command: cmd.Command})
			} else {
				outcomes = append(outcomes, StartupOutcome{
					Kind:     OutcomeError,
					Command:  cmd.Command,
					Response: err.Error(),
				})
			}
			continue
		}
		outcomes = append(outcomes, classifyStartupReply(cmd.Command, reply)...)
	}
	return outcomes
}

// classifyStartupReply maps each line of a command reply to an outcome.
// Idempotent-success noise is dropped, as is the benign "already loaded"
// complaint for a load command.
func classifyStartupReply(command, reply string) []StartupOutcome {
	var outcomes []StartupOutcome
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "", line == "OK: reloading", line == "OK: ACL reloaded", line == "Reloading XML":
			// Acknowledgement noise.
		case strings.HasPrefix(line, "+OK"):
			outcomes = append(outcomes, StartupOutcome{
				Kind:     OutcomeOK,
				Command:  command,
				Response: strings.TrimSpace(strings.TrimPrefix(line, "+OK")),
			})
		case strings.HasPrefix(line, "-ERR"):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "-ERR"))
			if command == "load" && strings.Contains(rest, "already loaded") {
				// Loading an already-loaded module is not a failure.
				continue
			}
			outcomes = append(outcomes, StartupOutcome{
				Kind:     OutcomeError,
				Command:  command,
				Response: rest,
			})
		default:
			// Informational output between markers; keep it out of the
			// verdict.
		}
	}
	return outcomes
}
