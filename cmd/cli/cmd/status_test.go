package cmd

import (
	"errors"
	"strings"
	"testing"

	"simplane/pkg/api"
)

func TestStatusCommand_Success(t *testing.T) {
	server := newFakeServer(t, func(req api.Request, reply replyFunc) {
		if req.Cmd != api.CmdGetServerStatus {
			t.Errorf("expected get_server_status, got %s", req.Cmd)
		}
		reply(api.EventServerStatus, api.ServerStatus{Status: api.StatusOperational, CmdID: req.CmdID})
	})

	output, err := execute(t, server.URL(), "status")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(output, "operational") {
		t.Errorf("expected operational status, got: %s", output)
	}
	reqs := server.requests()
	if len(reqs) != 1 || string(reqs[0].CmdID) != "1" {
		t.Errorf("expected one request tagged with cmdid 1, got %+v", reqs)
	}
}

func TestStatusCommand_SkipsUnrelatedEvents(t *testing.T) {
	server := newFakeServer(t, func(req api.Request, reply replyFunc) {
		reply(api.EventSimulationQueued, 2)
		reply(api.EventServerStatus, api.ServerStatus{Status: api.StatusMaintenance, CmdID: req.CmdID})
	})

	output, err := execute(t, server.URL(), "status")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "maintenance") {
		t.Errorf("expected maintenance status, got: %s", output)
	}
}

func TestStatusCommand_ErrorEvent(t *testing.T) {
	server := newFakeServer(t, func(req api.Request, reply replyFunc) {
		reply(api.EventError, api.ErrorReply{Error: "rate limit exceeded", Description: req.Cmd, CmdID: req.CmdID})
	})

	_, err := execute(t, server.URL(), "status")
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if serverErr.Message != "rate limit exceeded" {
		t.Errorf("unexpected message %q", serverErr.Message)
	}
}

func TestStatusCommand_ConnectFailure(t *testing.T) {
	server := newFakeServer(t, func(api.Request, replyFunc) {})
	url := server.URL()
	server.srv.Close()

	output, err := execute(t, url, "status")
	if err == nil {
		t.Fatal("expected connection error")
	}
	if !strings.Contains(output, "Failed to connect") {
		t.Errorf("expected connection failure message, got: %s", output)
	}
}
