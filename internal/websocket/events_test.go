package websocket

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeIntent(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    ClientIntent
		wantErr bool
	}{
		{
			name: "message",
			raw:  `{"type":"message","text":"hello"}`,
			want: ClientIntent{Type: IntentMessage, Text: "hello"},
		},
		{
			name: "typing",
			raw:  `{"type":"typing"}`,
			want: ClientIntent{Type: IntentTyping},
		},
		{
			name: "stop typing",
			raw:  `{"type":"stop_typing"}`,
			want: ClientIntent{Type: IntentStopTyping},
		},
		{
			name:    "unknown type",
			raw:     `{"type":"shrug"}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			raw:     `{"type":`,
			wantErr: true,
		},
		{
			name:    "empty frame",
			raw:     ``,
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			intent, err := DecodeIntent([]byte(tc.raw))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, intent)
		})
	}
}
