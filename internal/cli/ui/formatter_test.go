package ui

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aki/agentpost/internal/core/config"
	"github.com/aki/agentpost/internal/core/inbox"
	"github.com/aki/agentpost/internal/core/mailbox"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    OutputFormat
		wantErr bool
	}{
		{"pretty", FormatPretty, false},
		{"json", FormatJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got)
	}
}

func TestJSONFormatter(t *testing.T) {
	out, errOut := captureOutput(t)

	f := NewJSONFormatter()
	require.True(t, f.IsJSON())
	require.NoError(t, f.Output(map[string]int{"delivered": 2}))

	var decoded map[string]int
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, 2, decoded["delivered"])

	require.NoError(t, f.OutputError(fmt.Errorf("failed to read: %w", inbox.ErrMessageNotFound)))
	var payload map[string]string
	require.NoError(t, json.Unmarshal(errOut.Bytes(), &payload))
	assert.Equal(t, "message_not_found", payload["code"])
	assert.Contains(t, payload["error"], "failed to read")
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", config.ErrNotInitialized), "not_initialized"},
		{fmt.Errorf("bob: %w", mailbox.ErrInboxNotFound), "inbox_not_found"},
		{inbox.ErrAmbiguousID, "ambiguous_id"},
		{fmt.Errorf("wrap: %w", &inbox.ErrInvalidTransition{From: inbox.StateArchived, To: inbox.StateRead}), "invalid_transition"},
		{errors.New("boom"), ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCode(tt.err), tt.err.Error())
	}
}

func TestWithFormatter(t *testing.T) {
	original := GlobalFormatter
	t.Cleanup(func() { GlobalFormatter = original })

	err := WithFormatter(FormatJSON, func() error {
		assert.True(t, GlobalFormatter.IsJSON())
		return nil
	})
	require.NoError(t, err)
	assert.False(t, GlobalFormatter.IsJSON())

	assert.Error(t, WithFormatter("xml", func() error { return nil }))
}

func TestRender(t *testing.T) {
	out, _ := captureOutput(t)
	original := GlobalFormatter
	t.Cleanup(func() { GlobalFormatter = original })

	called := false
	require.NoError(t, Render(map[string]int{"n": 1}, func() { called = true }))
	assert.True(t, called)
	assert.Empty(t, out.String())

	require.NoError(t, SetGlobalFormatter(FormatJSON))
	called = false
	require.NoError(t, Render(map[string]int{"n": 1}, func() { called = true }))
	assert.False(t, called)
	assert.Contains(t, out.String(), `"n": 1`)
}
