package shell

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nexuscore/agentrt/internal/approval"
)

func TestAllowedCommandRuns(t *testing.T) {
	engine := approval.New(approval.Config{Policy: approval.Policy{Security: approval.SecurityAllowlist, Ask: approval.AskOnMiss}})
	engine.AddAllowlist("echo *", "")

	tool := New(engine, "", WithTimeout(5*time.Second))
	params, _ := json.Marshal(map[string]string{"command": "echo hello"})
	res, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("expected success, got %+v", res)
	}
}

func TestDeniedCommandDoesNotRun(t *testing.T) {
	engine := approval.New(approval.Config{Policy: approval.Policy{Security: approval.SecurityDeny, Ask: approval.AskOff}})
	tool := New(engine, "")
	params, _ := json.Marshal(map[string]string{"command": "rm -rf /tmp/whatever"})
	res, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected denied command to produce an error result")
	}
}

func TestAskWithoutAskerDeniesCommand(t *testing.T) {
	engine := approval.New(approval.Config{Policy: approval.Policy{Security: approval.SecurityAllowlist, Ask: approval.AskOnMiss}})
	tool := New(engine, "")
	params, _ := json.Marshal(map[string]string{"command": "rm -rf /tmp/x"})
	res, _ := tool.Execute(context.Background(), params)
	if !res.IsError {
		t.Fatalf("expected ask-without-asker to resolve to deny")
	}
}

func TestAskWithApprovingAskerRuns(t *testing.T) {
	engine := approval.New(approval.Config{Policy: approval.Policy{Security: approval.SecurityAllowlist, Ask: approval.AskOnMiss}})
	tool := New(engine, "", WithAsker(func(ctx context.Context, command string, analysis approval.CommandAnalysis) bool {
		return true
	}))
	params, _ := json.Marshal(map[string]string{"command": "echo approved"})
	res, err := tool.Execute(context.Background(), params)
	if err != nil || res.IsError {
		t.Fatalf("expected approved command to run, err=%v res=%+v", err, res)
	}
}

func TestTimeoutIsReported(t *testing.T) {
	engine := approval.New(approval.Config{Policy: approval.Policy{Security: approval.SecurityFull}})
	tool := New(engine, "", WithTimeout(50*time.Millisecond))
	params, _ := json.Marshal(map[string]string{"command": "sleep 2"})
	res, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected timeout to be reported as error result")
	}
}
