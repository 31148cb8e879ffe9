package raceread

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-adbhost/adbhost/internal/adberr"
)

func TestWaitReturnsOpResultWhenNoSignals(t *testing.T) {
	got, err := Wait(func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestWaitPropagatesOpError(t *testing.T) {
	wantErr := errors.New("boom")
	_, err := Wait(func() (int, error) { return 0, wantErr })
	assert.Equal(t, wantErr, err)
}

func TestWaitFailsImmediatelyOnAlreadyCanceledSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := Wait(func() (int, error) {
		called = true
		return 0, nil
	}, ctx)

	require.Error(t, err)
	assert.True(t, adberr.Is(err, adberr.Aborted))
	assert.False(t, called, "op must not run once a signal is already canceled")
}

func TestWaitAbortsWhenSignalFiresFirst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blockForever := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := Wait(func() (int, error) {
			<-blockForever
			return 0, nil
		}, ctx)
		require.Error(t, err)
		assert.True(t, adberr.Is(err, adberr.Aborted))
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after signal fired")
	}
	close(blockForever)
}

func TestWaitIgnoresNilSignals(t *testing.T) {
	got, err := Wait(func() (string, error) { return "ok", nil }, nil, context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}
