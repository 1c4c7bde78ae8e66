package transport

import (
	"testing"
	"time"
)

func TestNoSpeculativeExecution_NeverFires(t *testing.T) {
	t.Parallel()
	var p NoSpeculativeExecution
	if _, ok := p.Delay(0); ok {
		t.Fatal("Delay(0) = ok, want no speculative attempts ever scheduled")
	}
	if _, ok := p.Delay(5); ok {
		t.Fatal("Delay(5) = ok, want no speculative attempts ever scheduled")
	}
}

func TestConstantSpeculativeExecutionPolicy_FiresUpToMaxAttempts(t *testing.T) {
	t.Parallel()
	p := ConstantSpeculativeExecutionPolicy{Delay_: 10 * time.Millisecond, MaxAttempts: 2}

	d, ok := p.Delay(1)
	if !ok || d != 10*time.Millisecond {
		t.Fatalf("Delay(1) = (%v, %v), want (10ms, true)", d, ok)
	}

	d, ok = p.Delay(2)
	if ok {
		t.Fatalf("Delay(2) = (%v, %v), want ok=false (MaxAttempts attempts already launched)", d, ok)
	}

	if _, ok := p.Delay(3); ok {
		t.Fatal("Delay(3) = ok, want false once MaxAttempts is reached")
	}
}

func TestConstantSpeculativeExecutionPolicy_ZeroMaxAttemptsNeverFires(t *testing.T) {
	t.Parallel()
	p := ConstantSpeculativeExecutionPolicy{Delay_: time.Second, MaxAttempts: 0}
	if _, ok := p.Delay(0); ok {
		t.Fatal("Delay(0) with MaxAttempts=0 = ok, want false")
	}
}
