package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerctl/internal/model"
)

type fakeController struct {
	applyErr error
	block    bool
	applied  []string
	restarts int
}

func (f *fakeController) Apply(ctx context.Context, conf string) error {
	f.applied = append(f.applied, conf)
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.applyErr
}

func (f *fakeController) Restart(ctx context.Context, conf string) error {
	f.restarts++
	return f.applyErr
}

type recorder struct{ events []model.Event }

func (r *recorder) Publish(ev model.Event) { r.events = append(r.events, ev) }

func newSyncer(c Controller, rec *recorder) *Syncer {
	return &Syncer{
		Controller: c,
		Timeout:    50 * time.Millisecond,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Publisher:  rec,
	}
}

func TestSyncer_Success(t *testing.T) {
	t.Parallel()

	fc := &fakeController{}
	rec := &recorder{}
	res := newSyncer(fc, rec).Sync(context.Background(), "conf")

	assert.True(t, res.OK())
	assert.NoError(t, res.Err)
	assert.Equal(t, []string{"conf"}, fc.applied)
	require.Len(t, rec.events, 1)
	assert.Equal(t, model.EventDaemonSync, rec.events[0].Kind)
	assert.Equal(t, OutcomeSuccess, rec.events[0].Outcome)
}

func TestSyncer_Failure(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	res := newSyncer(&fakeController{applyErr: errors.New("Unable to access interface")}, rec).Sync(context.Background(), "conf")

	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.EqualError(t, res.Err, "Unable to access interface")
	require.Len(t, rec.events, 1)
	assert.Equal(t, "Unable to access interface", rec.events[0].Detail)
}

func TestSyncer_Timeout(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	res := newSyncer(&fakeController{block: true}, rec).Sync(context.Background(), "conf")

	assert.Equal(t, OutcomeTimeout, res.Outcome)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, res.Duration, 50*time.Millisecond)
	require.Len(t, rec.events, 1)
	assert.Equal(t, OutcomeTimeout, rec.events[0].Outcome)
}

func TestSyncer_Restart(t *testing.T) {
	t.Parallel()

	fc := &fakeController{}
	rec := &recorder{}
	res := newSyncer(fc, rec).Restart(context.Background(), "conf")

	assert.True(t, res.OK())
	assert.Equal(t, 1, fc.restarts)
	require.Len(t, rec.events, 1)
	assert.Equal(t, model.EventDaemonRestart, rec.events[0].Kind)
}

func TestSyncer_Disabled(t *testing.T) {
	t.Parallel()

	res := newSyncer(Disabled{}, &recorder{}).Sync(context.Background(), "conf")
	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrDisabled)

	res = (&Syncer{}).Restart(context.Background(), "")
	assert.ErrorIs(t, res.Err, ErrDisabled)
}
