package main

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/pkg/config"
	"github.com/lk2023060901/faceview/pkg/logger"
	"github.com/lk2023060901/faceview/pkg/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReloadReconnect(t *testing.T) {
	v, err := config.NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name    string
		rc      *websocket.ReconnectConfig
		loadErr error
		applied bool
	}{
		{"valid", &websocket.ReconnectConfig{MaxRetries: 5, BackoffUnit: time.Second, MaxBackoff: 10 * time.Second}, nil, true},
		{"no retry", &websocket.ReconnectConfig{MaxRetries: 0, BackoffUnit: time.Second, MaxBackoff: time.Second}, nil, true},
		{"unlimited", &websocket.ReconnectConfig{MaxRetries: -1, BackoffUnit: time.Second, MaxBackoff: time.Second}, nil, true},
		{"retries below -1", &websocket.ReconnectConfig{MaxRetries: -2, BackoffUnit: time.Second, MaxBackoff: time.Second}, nil, false},
		{"zero backoff", &websocket.ReconnectConfig{MaxRetries: 3, MaxBackoff: time.Second}, nil, false},
		{"cap below unit", &websocket.ReconnectConfig{MaxRetries: 3, BackoffUnit: 2 * time.Second, MaxBackoff: time.Second}, nil, false},
		{"decode error", nil, errors.New("bad duration"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []websocket.ReconnectConfig
			fn := reloadReconnect(v, func(rc websocket.ReconnectConfig) { got = append(got, rc) }, logger.NewNoop())
			fn(tt.rc, tt.loadErr)
			if tt.applied {
				require.Len(t, got, 1)
				assert.Equal(t, *tt.rc, got[0])
			} else {
				assert.Empty(t, got)
			}
		})
	}
}
