package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeMessage(t *testing.T) {
	m, err := DecodeMessage([]byte(`{"event":"edit-operation","data":{"ops":[{"delete":2}]}}`))
	require.NoError(t, err)
	require.Equal(t, EventEditOperation, m.Event)
	require.Equal(t, `{"ops":[{"delete":2}]}`, string(m.Data))

	_, err = DecodeMessage([]byte(`[1,2]`))
	require.ErrorIs(t, err, ErrMalformed)
	_, err = DecodeMessage([]byte(`{"data":1}`))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeDocumentID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: `{"documentId":"abc"}`, want: "abc"},
		{in: `"abc"`, want: "abc"},
		{in: `""`, wantErr: true},
		{in: `{}`, wantErr: true},
		{in: `null`, wantErr: true},
		{in: `7`, wantErr: true},
	}
	for _, tt := range tests {
		got, err := decodeDocumentID(json.RawMessage(tt.in))
		if tt.wantErr {
			require.ErrorIs(t, err, ErrMalformed, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got)
	}
}

func TestHasPayload(t *testing.T) {
	require.True(t, hasPayload(json.RawMessage(`{}`)))
	require.True(t, hasPayload(json.RawMessage(`"x"`)))
	require.False(t, hasPayload(nil))
	require.False(t, hasPayload(json.RawMessage(` null `)))
}
