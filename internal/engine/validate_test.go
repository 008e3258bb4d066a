package engine

import (
	"errors"
	"testing"
)

func TestCompile_Valid(t *testing.T) {
	g, err := Compile(mustFlow(t, loopFlowDoc))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if g.Size() != 5 {
		t.Errorf("Size() = %d, want 5", g.Size())
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
		node    string
	}{
		{
			name:    "empty flow",
			doc:     `{"id": "f", "nodes": [], "edges": []}`,
			wantErr: ErrEmptyFlow,
		},
		{
			name: "duplicate id",
			doc: `{"id": "f", "nodes": [
			  {"id": "a", "type": "log", "data": {"message": "x"}},
			  {"id": "a", "type": "log", "data": {"message": "y"}}], "edges": []}`,
			wantErr: ErrDuplicateNodeID,
			node:    "a",
		},
		{
			name:    "unknown kind",
			doc:     `{"id": "f", "nodes": [{"id": "a", "type": "sendEmail", "data": {}}], "edges": []}`,
			wantErr: ErrUnknownNodeKind,
			node:    "a",
		},
		{
			name:    "empty id",
			doc:     `{"id": "f", "nodes": [{"id": "", "type": "log", "data": {"message": "x"}}], "edges": []}`,
			wantErr: ErrEmptyNodeID,
		},
		{
			name:    "setVariable without key",
			doc:     `{"id": "f", "nodes": [{"id": "s", "type": "setVariable", "data": {"value": 1}}], "edges": []}`,
			wantErr: ErrMissingConfig,
			node:    "s",
		},
		{
			name:    "http without url",
			doc:     `{"id": "f", "nodes": [{"id": "h", "type": "httpRequest", "data": {"method": "GET"}}], "edges": []}`,
			wantErr: ErrMissingConfig,
			node:    "h",
		},
		{
			name:    "http bad method",
			doc:     `{"id": "f", "nodes": [{"id": "h", "type": "httpRequest", "data": {"method": "FETCH", "url": "http://x"}}], "edges": []}`,
			wantErr: ErrInvalidConfig,
			node:    "h",
		},
		{
			name:    "ifElse bad operator",
			doc:     `{"id": "f", "nodes": [{"id": "i", "type": "ifElse", "data": {"comparison": {"left": "a", "operator": "~=", "right": "b"}}}], "edges": []}`,
			wantErr: ErrInvalidConfig,
			node:    "i",
		},
		{
			name:    "ifElse expression missing",
			doc:     `{"id": "f", "nodes": [{"id": "i", "type": "ifElse", "data": {"conditionType": "expression"}}], "edges": []}`,
			wantErr: ErrMissingConfig,
			node:    "i",
		},
		{
			name:    "forEach without arrayPath",
			doc:     `{"id": "f", "nodes": [{"id": "l", "type": "loop", "data": {"loopType": "forEach"}}], "edges": []}`,
			wantErr: ErrMissingConfig,
			node:    "l",
		},
		{
			name:    "while without condition",
			doc:     `{"id": "f", "nodes": [{"id": "l", "type": "loop", "data": {"loopType": "while"}}], "edges": []}`,
			wantErr: ErrMissingConfig,
			node:    "l",
		},
		{
			name:    "bad cron",
			doc:     `{"id": "f", "nodes": [{"id": "d", "type": "delay", "data": {"delayType": "cron", "cronExpression": "every day"}}], "edges": []}`,
			wantErr: ErrInvalidConfig,
			node:    "d",
		},
		{
			name:    "negative delay",
			doc:     `{"id": "f", "nodes": [{"id": "d", "type": "delay", "data": {"delayType": "seconds", "value": -1}}], "edges": []}`,
			wantErr: ErrInvalidConfig,
			node:    "d",
		},
		{
			name:    "stopJob without type",
			doc:     `{"id": "f", "nodes": [{"id": "s", "type": "stopJob", "data": {}}], "edges": []}`,
			wantErr: ErrMissingConfig,
			node:    "s",
		},
		{
			name:    "log bad level",
			doc:     `{"id": "f", "nodes": [{"id": "l", "type": "log", "data": {"message": "x", "logLevel": "fatal"}}], "edges": []}`,
			wantErr: ErrInvalidConfig,
			node:    "l",
		},
		{
			name: "id with colon",
			doc: `{"id": "f", "nodes": [
			  {"id": "set 1", "type": "log", "data": {"message": "x"}},
			  {"id": "if:1", "type": "log", "data": {"message": "y"}}],
			  "edges": [{"id": "e1", "source": "set 1", "target": "if:1"}]}`,
			wantErr: ErrInvalidConfig,
			node:    "set 1",
		},
		{
			name:    "id with dot",
			doc:     `{"id": "f", "nodes": [{"id": "a.b", "type": "log", "data": {"message": "x"}}], "edges": []}`,
			wantErr: ErrInvalidConfig,
			node:    "a.b",
		},
		{
			name: "dangling edge",
			doc: `{"id": "f", "nodes": [{"id": "a", "type": "log", "data": {"message": "x"}}],
			  "edges": [{"id": "e1", "source": "a", "target": "b"}]}`,
			wantErr: ErrDanglingEdge,
		},
		{
			name: "ifElse edge without handle",
			doc: `{"id": "f", "nodes": [
			  {"id": "i", "type": "ifElse", "data": {"comparison": {"left": "1", "operator": "==", "right": "1"}}},
			  {"id": "a", "type": "log", "data": {"message": "x"}}],
			  "edges": [{"id": "e1", "source": "i", "target": "a"}]}`,
			wantErr: ErrInvalidHandle,
		},
		{
			name: "cycle",
			doc: `{"id": "f", "nodes": [
			  {"id": "s", "type": "log", "data": {"message": "s"}},
			  {"id": "a", "type": "log", "data": {"message": "a"}},
			  {"id": "b", "type": "log", "data": {"message": "b"}}],
			  "edges": [
			    {"id": "e0", "source": "s", "target": "a"},
			    {"id": "e1", "source": "a", "target": "b"},
			    {"id": "e2", "source": "b", "target": "a"}]}`,
			wantErr: ErrCyclicGraph,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(mustFlow(t, tt.doc))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if tt.node != "" && ve.NodeID != tt.node {
				t.Errorf("NodeID = %q, want %q", ve.NodeID, tt.node)
			}
		})
	}
}

func TestProblems_CollectsAll(t *testing.T) {
	f := mustFlow(t, `{"id": "f", "nodes": [
	  {"id": "s", "type": "setVariable", "data": {}},
	  {"id": "h", "type": "httpRequest", "data": {}},
	  {"id": "ok", "type": "log", "data": {"message": "fine"}}],
	  "edges": [{"id": "e1", "source": "ok", "target": "nowhere"}]}`)

	problems := Problems(f)
	if len(problems) != 3 {
		t.Fatalf("expected 3 problems, got %d: %v", len(problems), problems)
	}
}

func TestValidateNode_TemplatedMethodAllowed(t *testing.T) {
	f := mustFlow(t, `{"id": "f", "nodes": [
	  {"id": "h", "type": "httpRequest", "data": {"method": "{{vars.method}}", "endpoint": "http://x"}}], "edges": []}`)

	if err := ValidateNode(&f.Nodes[0]); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestReport(t *testing.T) {
	if problems := Report(mustFlow(t, loopFlowDoc)); len(problems) != 0 {
		t.Fatalf("expected no problems, got %v", problems)
	}

	cyclic := mustFlow(t, `{"id": "f", "nodes": [
	  {"id": "s", "type": "log", "data": {"message": "s"}},
	  {"id": "a", "type": "log", "data": {"message": "a"}},
	  {"id": "b", "type": "log", "data": {"message": "b"}}],
	  "edges": [
	    {"id": "e0", "source": "s", "target": "a"},
	    {"id": "e1", "source": "a", "target": "b"},
	    {"id": "e2", "source": "b", "target": "a"}]}`)
	problems := Report(cyclic)
	if len(problems) != 1 || !errors.Is(problems[0], ErrCyclicGraph) {
		t.Fatalf("expected one cycle problem, got %v", problems)
	}
}
