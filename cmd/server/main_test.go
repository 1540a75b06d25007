package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseURLForListenAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		listenAddr string
		want       string
	}{
		{name: "port only", listenAddr: ":8080", want: "http://localhost:8080"},
		{name: "ipv4 host and port", listenAddr: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "wildcard ipv4", listenAddr: "0.0.0.0:8080", want: "http://localhost:8080"},
		{name: "wildcard ipv6", listenAddr: "[::]:8080", want: "http://localhost:8080"},
		{name: "ipv6 loopback", listenAddr: "[::1]:8080", want: "http://[::1]:8080"},
		{name: "trim host and port", listenAddr: " localhost:9090 ", want: "http://localhost:9090"},
		{name: "empty falls back", listenAddr: "", want: "http://localhost:8080"},
		{name: "malformed passes through", listenAddr: "localhost", want: "http://localhost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, baseURLForListenAddr(tt.listenAddr))
		})
	}
}
