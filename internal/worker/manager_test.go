package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWorker struct {
	name     string
	startErr error
	stopErr  error
	log      *[]string
}

func (w *fakeWorker) Start(ctx context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}
	*w.log = append(*w.log, "start "+w.name)
	return nil
}

func (w *fakeWorker) Stop() error {
	*w.log = append(*w.log, "stop "+w.name)
	return w.stopErr
}

func (w *fakeWorker) Name() string { return w.name }

func TestManager_StartStop(t *testing.T) {
	var log []string
	m := NewManager(zap.NewNop())
	m.Register(&fakeWorker{name: "a", log: &log})
	m.Register(&fakeWorker{name: "b", log: &log})

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.Equal(t, 2, m.Count())
	assert.Error(t, m.StartAll(context.Background()), "second start is rejected")

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)

	require.NoError(t, m.StopAll(), "stopping twice is a no-op")
}

func TestManager_StartFailureRollsBack(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	m := NewManager(zap.NewNop())
	m.Register(&fakeWorker{name: "a", log: &log})
	m.Register(&fakeWorker{name: "b", log: &log, startErr: boom})

	err := m.StartAll(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, m.IsRunning())
	assert.Equal(t, []string{"start a", "stop a"}, log)
}

func TestManager_StopErrors(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	m := NewManager(zap.NewNop())
	m.Register(&fakeWorker{name: "a", log: &log, stopErr: boom})
	m.Register(&fakeWorker{name: "b", log: &log})

	require.NoError(t, m.StartAll(context.Background()))

	err := m.StopAll()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
}
