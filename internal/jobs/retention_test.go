package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/dtroode/vault-protector/internal/mocks"
	"github.com/dtroode/vault-protector/internal/model"
	"github.com/dtroode/vault-protector/internal/testutil"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestRetention(audits *mocks.AuditStore, sessions *mocks.SessionStore, cfg Config) *Retention {
	r := NewRetention(audits, sessions, cfg, testutil.MakeNoopLogger())
	r.now = func() time.Time { return fixedNow }
	return r
}

func TestNewRetention_Defaults(t *testing.T) {
	t.Parallel()

	r := NewRetention(&mocks.AuditStore{}, &mocks.SessionStore{}, Config{BatchDelay: time.Second}, testutil.MakeNoopLogger())
	def := DefaultConfig()

	assert.Equal(t, model.AuditRetention, r.cfg.AuditRetention)
	assert.Equal(t, def.SessionRetention, r.cfg.SessionRetention)
	assert.Equal(t, def.Interval, r.cfg.Interval)
	assert.Equal(t, def.BatchSize, r.cfg.BatchSize)
	assert.Equal(t, def.Timeout, r.cfg.Timeout)
	assert.Equal(t, time.Second, r.cfg.BatchDelay)
	assert.Len(t, r.tasks, 2)
}

func TestRetention_Sweep(t *testing.T) {
	t.Parallel()

	cfg := Config{
		AuditRetention:   90 * 24 * time.Hour,
		SessionRetention: 30 * 24 * time.Hour,
		BatchSize:        2,
		BatchDelay:       time.Millisecond,
	}
	auditCutoff := fixedNow.Add(-90 * 24 * time.Hour)
	sessionCutoff := fixedNow.Add(-30 * 24 * time.Hour)

	tests := []struct {
		name         string
		setup        func(a *mocks.AuditStore, s *mocks.SessionStore)
		wantAudit    int64
		wantSessions int64
	}{
		{
			name: "batches until short batch",
			setup: func(a *mocks.AuditStore, s *mocks.SessionStore) {
				a.On("DeleteOlderThan", mock.Anything, auditCutoff, 2).Return(int64(2), nil).Twice()
				a.On("DeleteOlderThan", mock.Anything, auditCutoff, 2).Return(int64(1), nil).Once()
				s.On("DeleteStale", mock.Anything, sessionCutoff, 2).Return(int64(0), nil).Once()
			},
			wantAudit: 5,
		},
		{
			name: "audit failure does not stop session purge",
			setup: func(a *mocks.AuditStore, s *mocks.SessionStore) {
				a.On("DeleteOlderThan", mock.Anything, auditCutoff, 2).Return(int64(2), nil).Once()
				a.On("DeleteOlderThan", mock.Anything, auditCutoff, 2).Return(int64(0), errors.New("connection reset")).Once()
				s.On("DeleteStale", mock.Anything, sessionCutoff, 2).Return(int64(1), nil).Once()
			},
			wantAudit:    2,
			wantSessions: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			audits := &mocks.AuditStore{}
			sessions := &mocks.SessionStore{}
			tt.setup(audits, sessions)

			removed := newTestRetention(audits, sessions, cfg).Sweep()

			assert.Equal(t, tt.wantAudit, removed["audit_logs"])
			assert.Equal(t, tt.wantSessions, removed["sessions"])
			audits.AssertExpectations(t)
			sessions.AssertExpectations(t)
		})
	}
}

func TestRetention_StartStop(t *testing.T) {
	t.Parallel()

	audits := &mocks.AuditStore{}
	sessions := &mocks.SessionStore{}
	swept := make(chan struct{}, 1)
	audits.On("DeleteOlderThan", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil)
	sessions.On("DeleteStale", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil).
		Run(func(mock.Arguments) {
			select {
			case swept <- struct{}{}:
			default:
			}
		})

	r := newTestRetention(audits, sessions, Config{Interval: time.Hour})
	r.Start()

	select {
	case <-swept:
	case <-time.After(time.Second):
		t.Fatal("initial sweep did not run")
	}

	done := make(chan struct{})
	go func() {
		r.Stop()
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
