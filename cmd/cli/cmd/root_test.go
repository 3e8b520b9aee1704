package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"simplane/pkg/api"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
	viper.SetEnvPrefix("SIMPLANE")
	viper.AutomaticEnv()
}

// replyFunc sends one event to the client.
type replyFunc func(cmd string, data any)

// fakeServer is a scripted websocket server. handle is called for every
// request, in order, on the connection's goroutine.
type fakeServer struct {
	t      *testing.T
	srv    *httptest.Server
	handle func(req api.Request, reply replyFunc)

	mu       sync.Mutex
	received []api.Request
}

func newFakeServer(t *testing.T, handle func(req api.Request, reply replyFunc)) *fakeServer {
	t.Helper()
	f := &fakeServer{t: t, handle: handle}
	upgrader := websocket.Upgrader{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer ws.Close()

		reply := func(cmd string, data any) {
			msg, err := api.NewMessage(cmd, data)
			if err != nil {
				t.Errorf("failed to encode %s: %v", cmd, err)
				return
			}
			ws.WriteJSON(msg)
		}
		for {
			var req api.Request
			if err := ws.ReadJSON(&req); err != nil {
				return
			}
			f.mu.Lock()
			f.received = append(f.received, req)
			f.mu.Unlock()
			f.handle(req, reply)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) URL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeServer) requests() []api.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.Request(nil), f.received...)
}

// execute runs simctl with args against url and returns its output.
func execute(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	resetViper()
	viper.Set("url", url)
	viper.Set("timeout", 5*time.Second)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return stdout.String(), err
}

func mustUnmarshal(t *testing.T, raw json.RawMessage, v any) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("failed to decode %s: %v", raw, err)
	}
}

func TestRootCommand_DefaultURL(t *testing.T) {
	resetViper()

	cmd := &cobra.Command{}
	cmd.PersistentFlags().String("url", "ws://localhost:8000/ws", "simplane websocket URL")
	viper.BindPFlag("url", cmd.PersistentFlags().Lookup("url"))

	url := viper.GetString("url")
	if url != "ws://localhost:8000/ws" {
		t.Errorf("expected default url ws://localhost:8000/ws, got: %s", url)
	}
}

func TestRootCommand_EnvVarBinding(t *testing.T) {
	resetViper()

	t.Setenv("SIMPLANE_URL", "ws://custom-url:9000/ws")
	t.Setenv("SIMPLANE_TIMEOUT", "3s")

	if url := viper.GetString("url"); url != "ws://custom-url:9000/ws" {
		t.Errorf("expected url from env var, got: %s", url)
	}
	if timeout := viper.GetDuration("timeout"); timeout != 3*time.Second {
		t.Errorf("expected timeout from env var, got: %v", timeout)
	}
}

func TestRootCommand_ExecuteReturnsNoError(t *testing.T) {
	resetViper()

	rootCmd.SetArgs([]string{"--help"})

	if err := rootCmd.Execute(); err != nil {
		t.Errorf("root command should execute without error: %v", err)
	}
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	want := map[string]bool{"status": false, "metadata": false, "positions": false, "run": false, "circuit-init": false}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %q subcommand to be registered with root command", name)
		}
	}
}

func TestExecute_ReturnsError(t *testing.T) {
	resetViper()

	rootCmd.SetArgs([]string{"unknown-command-xyz"})

	if err := Execute(); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestRootCommand_CustomConfigFile(t *testing.T) {
	resetViper()

	tmpFile, err := os.CreateTemp("", "simctl-test-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	tmpFile.WriteString("url: ws://custom-from-config:9999/ws\ntimeout: 7s\n")
	tmpFile.Close()

	cfgFile = tmpFile.Name()
	defer func() { cfgFile = "" }()
	initConfig()

	if url := viper.GetString("url"); url != "ws://custom-from-config:9999/ws" {
		t.Errorf("expected url from config file, got: %s", url)
	}
	if timeout := viper.GetDuration("timeout"); timeout != 7*time.Second {
		t.Errorf("expected timeout from config file, got: %v", timeout)
	}
}
