package qemuctl

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeServer emulates the machine-control socket: greeting, then
// qmp_capabilities ack, then echoes back a "return" for every request
// that follows.
func fakeServer(t *testing.T, socketPath string) net.Listener {
	t.Helper()
	ln, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		writeLine(conn, map[string]interface{}{"greeting": map[string]interface{}{"protocol": "machine-control", "version": 1}})

		reader := bufio.NewReader(conn)
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				return
			}
			var req map[string]interface{}
			if err := json.Unmarshal(line, &req); err != nil {
				return
			}
			writeLine(conn, map[string]interface{}{"return": map[string]interface{}{}})
		}
	}()

	return ln
}

func writeLine(conn net.Conn, v interface{}) {
	data, _ := json.Marshal(v)
	data = append(data, '\n')
	conn.Write(data)
}

func TestConnect_HandshakeAndCapabilities(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "qemuctl.sock")
	ln := fakeServer(t, socketPath)
	defer ln.Close()

	client, err := Connect(socketPath, nil)
	require.NoError(t, err)
	defer client.Close()
}

func TestClient_Execute(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "qemuctl.sock")
	ln := fakeServer(t, socketPath)
	defer ln.Close()

	client, err := Connect(socketPath, nil)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Execute("query-status", nil)
	require.NoError(t, err)
}

func TestClient_SendKeysSequence(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "qemuctl.sock")
	ln := fakeServer(t, socketPath)
	defer ln.Close()

	client, err := Connect(socketPath, nil)
	require.NoError(t, err)
	defer client.Close()

	err = client.SendKeysSequence([]string{"a", "b", "c"}, 1)
	require.NoError(t, err)
}

func TestClient_Close_Idempotent(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "qemuctl.sock")
	ln := fakeServer(t, socketPath)
	defer ln.Close()

	client, err := Connect(socketPath, nil)
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}

func TestConnect_MissingGreeting_ReturnsProtocolError(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "qemuctl-bad.sock")
	ln, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		writeLine(conn, map[string]interface{}{"not_a_greeting": true})
		time.Sleep(100 * time.Millisecond)
	}()

	_, err = Connect(socketPath, nil)
	require.Error(t, err)
}
