package workflow

import (
	"context"
	"errors"
	"testing"
)

const (
	stateDraft  State = "DRAFT"
	stateOpen   State = "OPEN"
	stateClosed State = "CLOSED"

	triggerOpen  Trigger = "OPEN"
	triggerClose Trigger = "CLOSE"
)

func newTestBuilder() Builder {
	b := NewBuilder()
	b.Configure(stateDraft).
		Permit(triggerOpen, stateOpen)
	b.Configure(stateOpen).
		Permit(triggerClose, stateClosed)
	return b
}

func TestFire(t *testing.T) {
	tests := []struct {
		name      string
		initial   State
		trigger   Trigger
		wantState State
		wantErr   error
	}{
		{
			name:      "permitted transition",
			initial:   stateDraft,
			trigger:   triggerOpen,
			wantState: stateOpen,
		},
		{
			name:      "trigger not permitted in state",
			initial:   stateDraft,
			trigger:   triggerClose,
			wantState: stateDraft,
			wantErr:   ErrInvalidTransition,
		},
		{
			name:      "no transitions from terminal state",
			initial:   stateClosed,
			trigger:   triggerOpen,
			wantState: stateClosed,
			wantErr:   ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := newTestBuilder().Build(tt.initial)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}

			err = m.Fire(context.Background(), tt.trigger)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fire() error = %v, want %v", err, tt.wantErr)
			}
			if m.State() != tt.wantState {
				t.Errorf("State() = %v, want %v", m.State(), tt.wantState)
			}
		})
	}
}

func TestBuildUnknownState(t *testing.T) {
	_, err := newTestBuilder().Build("NEVER_CONFIGURED")
	if !errors.Is(err, ErrUnknownState) {
		t.Errorf("Build() error = %v, want %v", err, ErrUnknownState)
	}
}

func TestTerminalStateIsBuildable(t *testing.T) {
	// CLOSED is only ever a transition target, never explicitly configured;
	// Permit must register it so a machine can be positioned there.
	m, err := newTestBuilder().Build(stateClosed)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !m.Terminal() {
		t.Error("Terminal() = false, want true")
	}
	if len(m.PermittedTriggers()) != 0 {
		t.Errorf("PermittedTriggers() = %v, want empty", m.PermittedTriggers())
	}
}

func TestGuardedTransition(t *testing.T) {
	allowed := false
	b := NewBuilder()
	b.Configure(stateDraft).
		PermitIf(triggerOpen, stateOpen, func(ctx context.Context) bool { return allowed })

	m, err := b.Build(stateDraft)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if err := m.Fire(context.Background(), triggerOpen); !errors.Is(err, ErrGuardFailed) {
		t.Errorf("Fire() with failing guard error = %v, want %v", err, ErrGuardFailed)
	}
	if m.State() != stateDraft {
		t.Errorf("State() = %v, want %v after failed guard", m.State(), stateDraft)
	}

	allowed = true
	if err := m.Fire(context.Background(), triggerOpen); err != nil {
		t.Errorf("Fire() with passing guard error = %v", err)
	}
	if m.State() != stateOpen {
		t.Errorf("State() = %v, want %v", m.State(), stateOpen)
	}
}

func TestCanFire(t *testing.T) {
	m, err := newTestBuilder().Build(stateOpen)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if !m.CanFire(triggerClose) {
		t.Error("CanFire(CLOSE) = false, want true")
	}
	if m.CanFire(triggerOpen) {
		t.Error("CanFire(OPEN) = true, want false")
	}
}

func TestBuiltMachineIsolatedFromBuilder(t *testing.T) {
	b := newTestBuilder()
	m, err := b.Build(stateClosed)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// Mutating the builder after Build must not add transitions to the machine
	b.Configure(stateClosed).Permit(triggerOpen, stateOpen)

	if m.CanFire(triggerOpen) {
		t.Error("machine picked up builder mutation after Build")
	}
}
