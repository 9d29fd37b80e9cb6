// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rig

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWebSocket_RejectsScheme(t *testing.T) {
	_, err := OpenWebSocket(context.Background(), "http://localhost/rig", DialOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported URL scheme")
}

func TestWebSocketConn_ByteStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	auth := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewWebSocketConn(ws)
		defer conn.Close()

		// Text messages must be skipped by the reader on the other side
		ws.WriteMessage(websocket.TextMessage, []byte("hello"))
		conn.Write([]byte{1, 2, 3, 4, 5})

		buf := make([]byte, 8)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		conn.Write(buf[:n])
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := OpenWebSocket(context.Background(), url, DialOptions{Username: "pilot", Password: "secret"})
	require.NoError(t, err)
	defer conn.Close()

	// Split one message across two short reads
	small := make([]byte, 3)
	n, err := conn.Read(small)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, small[:n])
	n, err = conn.Read(small)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, small[:n])

	_, err = conn.Write([]byte{9, 8})
	require.NoError(t, err)
	n, err = conn.Read(small)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8}, small[:n])

	assert.Equal(t, "Basic cGlsb3Q6c2VjcmV0", <-auth)

	// Server hung up
	_, err = io.ReadAll(conn)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	_, err = conn.Read(small)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}
