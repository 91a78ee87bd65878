package fsnode

import (
	"context"
	"errors"
	"testing"
	"time"

	"callmgr/internal/switchio"
)

func TestClassifyStartupReply(t *testing.T) {
	tests := []struct {
		name    string
		command string
		reply   string
		want    []OutcomeKind
	}{
		{"plain ok", "load", "+OK mod_sofia loaded", []OutcomeKind{OutcomeOK}},
		{"plain err", "load", "-ERR no such module", []OutcomeKind{OutcomeError}},
		{"already loaded is benign", "load", "-ERR [module already loaded]", nil},
		{"already loaded elsewhere still fails", "reload", "-ERR [module already loaded]", []OutcomeKind{OutcomeError}},
		{"ack noise dropped", "reloadacl", "OK: ACL reloaded\n+OK acl reloaded", []OutcomeKind{OutcomeOK}},
		{"reloading noise dropped", "reloadxml", "Reloading XML\n+OK [Success]", []OutcomeKind{OutcomeOK}},
		{"informational lines skipped", "sofia", "2 profiles loaded\n+OK", []OutcomeKind{OutcomeOK}},
		{"mixed lines", "load", "+OK first\n-ERR second", []OutcomeKind{OutcomeOK, OutcomeError}},
		{"empty reply", "load", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcomes := classifyStartupReply(tt.command, tt.reply)
			if len(outcomes) != len(tt.want) {
				t.Fatalf("got %d outcomes, want %d: %+v", len(outcomes), len(tt.want), outcomes)
			}
			for i, o := range outcomes {
				if o.Kind != tt.want[i] {
					t.Fatalf("outcome %d: got %s, want %s", i, o.Kind, tt.want[i])
				}
				if o.Command != tt.command {
					t.Fatalf("outcome %d: command %q, want %q", i, o.Command, tt.command)
				}
			}
		})
	}
}

func TestCleanRequiresAllOK(t *testing.T) {
	if !Clean(nil) {
		t.Fatalf("empty outcome list must be clean")
	}
	if !Clean([]StartupOutcome{{Kind: OutcomeOK}, {Kind: OutcomeOK}}) {
		t.Fatalf("all-ok must be clean")
	}
	if Clean([]StartupOutcome{{Kind: OutcomeOK}, {Kind: OutcomeOK}, {Kind: OutcomeError}}) {
		t.Fatalf("a single error must fail the whole bring-up")
	}
	if Clean([]StartupOutcome{{Kind: OutcomeTimeout}}) {
		t.Fatalf("a timeout must fail the whole bring-up")
	}
}

func startupNode(client *fakeClient, cmds []StartupCommand) *Node {
	n := New(Identity{Host: "fs1.example.com", Instance: "freeswitch"}, client, Options{}, Deps{
		Startup: StartupCommandsFunc(func(Identity) []StartupCommand { return cmds }),
	}, nil)
	n.timeouts = testTimeouts()
	return n
}

func TestRunStartupRefusesUnlistedCommand(t *testing.T) {
	client := newFakeClient()
	called := false
	client.apiFn = func(ctx context.Context, cmd, args string) (string, error) {
		called = true
		return "+OK", nil
	}
	n := startupNode(client, []StartupCommand{{Command: "system", Arg: "rm -rf /"}})

	outcomes := n.runStartup(context.Background())
	if len(outcomes) != 1 || outcomes[0].Kind != OutcomeError {
		t.Fatalf("expected one error outcome, got %+v", outcomes)
	}
	if outcomes[0].Response != "command not permitted" {
		t.Fatalf("unexpected response %q", outcomes[0].Response)
	}
	if called {
		t.Fatalf("refused command must never reach the switch")
	}
}

func TestRunStartupClassifiesTimeout(t *testing.T) {
	client := newFakeClient()
	client.apiFn = func(ctx context.Context, cmd, args string) (string, error) {
		return "", switchio.ErrTimeout
	}
	n := startupNode(client, []StartupCommand{{Command: "reload", Arg: "mod_sofia"}})

	outcomes := n.runStartup(context.Background())
	if len(outcomes) != 1 || outcomes[0].Kind != OutcomeTimeout {
		t.Fatalf("expected one timeout outcome, got %+v", outcomes)
	}
}

func TestRunStartupClassifiesTransportError(t *testing.T) {
	client := newFakeClient()
	client.apiFn = func(ctx context.Context, cmd, args string) (string, error) {
		return "", errors.New("broken pipe")
	}
	n := startupNode(client, []StartupCommand{{Command: "reload", Arg: "mod_sofia"}})

	outcomes := n.runStartup(context.Background())
	if len(outcomes) != 1 || outcomes[0].Kind != OutcomeError {
		t.Fatalf("expected one error outcome, got %+v", outcomes)
	}
	if outcomes[0].Response != "broken pipe" {
		t.Fatalf("unexpected response %q", outcomes[0].Response)
	}
}

func TestRunStartupEmptyListWaitsOutGracePeriod(t *testing.T) {
	client := newFakeClient()
	n := startupNode(client, nil)
	n.timeouts.emptyStartup = 50 * time.Millisecond

	start := time.Now()
	outcomes := n.runStartup(context.Background())
	if outcomes != nil {
		t.Fatalf("expected no outcomes, got %+v", outcomes)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("grace period not honored: %v", elapsed)
	}
}

func TestRunStartupRunsCommandsInOrder(t *testing.T) {
	client := newFakeClient()
	var seen []string
	client.apiFn = func(ctx context.Context, cmd, args string) (string, error) {
		seen = append(seen, cmd+" "+args)
		return "+OK", nil
	}
	n := startupNode(client, []StartupCommand{
		{Command: "load", Arg: "mod_sofia"},
		{Command: "reloadxml"},
		{Command: "sofia", Arg: "profile internal rescan"},
	})

	outcomes := n.runStartup(context.Background())
	if !Clean(outcomes) {
		t.Fatalf("expected clean bring-up, got %+v", outcomes)
	}
	want := []string{"load mod_sofia", "reloadxml ", "sofia profile internal rescan"}
	if len(seen) != len(want) {
		t.Fatalf("got %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("command %d: got %q, want %q", i, seen[i], want[i])
		}
	}
}
