package xlockmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Shared ")
	require.NoError(t, err)
	assert.Equal(t, Shared, m)

	m, err = ParseMode("EXCLUSIVE")
	require.NoError(t, err)
	assert.Equal(t, Exclusive, m)

	_, err = ParseMode("readwrite")
	assert.ErrorIs(t, err, ErrInvalidMode)

	assert.Equal(t, "Mode(0)", Mode(0).String())
	_, err = Mode(0).MarshalText()
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestSnapshot_JSON(t *testing.T) {
	m := newForTest(t, WithIDGenerator(func() string { return "id" }))

	h, err := m.Submit("R", WithClientID("w1"))
	require.NoError(t, err)
	_, err = m.Submit("R", AsShared())
	require.NoError(t, err)

	b, err := json.Marshal(m.Snapshot())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"held":    [{"name":"R","mode":"exclusive","clientId":"w1","ticketId":"id"}],
		"pending": [{"name":"R","mode":"shared","ticketId":"id"}]
	}`, string(b))

	var entries []Entry
	raw, err := json.Marshal(m.Snapshot().Entries())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &entries))
	assert.Equal(t, Shared, entries[1].Mode)

	require.NoError(t, h.Release())
}

func TestSnapshot_EmptyIsNotNil(t *testing.T) {
	m := newForTest(t)
	b, err := json.Marshal(m.Snapshot())
	require.NoError(t, err)
	assert.JSONEq(t, `{"held":[],"pending":[]}`, string(b))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: x", ErrInvalidName), ErrClassNotSupported},
		{ErrUnavailable, ErrClassUnavailable},
		{ErrClosed, ErrClassClosed},
		{ErrMaxNamesExceeded, ErrClassMaxNames},
		{ErrNotHeld, ErrClassNotHeld},
		{context.DeadlineExceeded, ErrClassTimeout},
		{context.Canceled, ErrClassCanceled},
		{errors.New("other"), ErrClassInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyError(tt.err), "%v", tt.err)
	}
}
