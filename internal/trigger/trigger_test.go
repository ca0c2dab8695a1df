package trigger

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestFireSource_DeliversToAllSubscribers(t *testing.T) {
	var src fireSource
	var a, b atomic.Int32

	src.Subscribe(func() { a.Add(1) })
	src.Subscribe(func() { b.Add(1) })

	src.fire()
	src.fire()

	if a.Load() != 2 || b.Load() != 2 {
		t.Errorf("expected 2 fires each, got a=%d b=%d", a.Load(), b.Load())
	}
}

func TestSubscription_UnsubscribeStopsDelivery(t *testing.T) {
	var src fireSource
	var n atomic.Int32

	sub := src.Subscribe(func() { n.Add(1) })
	src.fire()
	sub.Unsubscribe()
	src.fire()

	if n.Load() != 1 {
		t.Errorf("expected 1 fire after unsubscribe, got %d", n.Load())
	}
}

func TestSubscription_UnsubscribeIsIdempotent(t *testing.T) {
	var src fireSource
	first := src.Subscribe(func() {})
	first.Unsubscribe()
	first.Unsubscribe() // must not panic or affect others

	var n atomic.Int32
	src.Subscribe(func() { n.Add(1) })
	src.fire()
	if n.Load() != 1 {
		t.Errorf("second subscriber affected by double unsubscribe: %d", n.Load())
	}
}

func TestFactory_RoundTripsDescriptors(t *testing.T) {
	f := NewFactory()

	tests := []struct {
		name string
		desc Descriptor
	}{
		{"cron", Descriptor{Type: TypeCron, Expression: "0 3 * * *"}},
		{"startup", Descriptor{Type: TypeStartup}},
		{"startup with delay", Descriptor{Type: TypeStartup, Options: map[string]string{"delay": "45s"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trig, err := f.New(tt.desc)
			if err != nil {
				t.Fatalf("build failed: %v", err)
			}
			defer trig.Close()

			got := trig.Descriptor()
			if Fingerprint([]Descriptor{got}) != Fingerprint([]Descriptor{tt.desc}) {
				t.Errorf("descriptor did not round trip: got %+v, want %+v", got, tt.desc)
			}
		})
	}
}

func TestFactory_UnknownType(t *testing.T) {
	f := NewFactory()
	if _, err := f.New(Descriptor{Type: "lunar-phase"}); err == nil {
		t.Error("expected an error for an unknown trigger type")
	}
}

func TestNewCronTrigger_RejectsBadExpression(t *testing.T) {
	if _, err := NewCronTrigger("not a cron line"); err == nil {
		t.Error("expected invalid expression to be rejected")
	}
}

func TestFingerprint_OrderInsensitive(t *testing.T) {
	a := Descriptor{Type: TypeCron, Expression: "0 3 * * *"}
	b := Descriptor{Type: TypeStartup}

	if Fingerprint([]Descriptor{a, b}) != Fingerprint([]Descriptor{b, a}) {
		t.Error("fingerprint must treat the sequence as a set")
	}
}

func TestStartupTrigger_FiresOncePerStart(t *testing.T) {
	trig, err := NewStartupTrigger(nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer trig.Close()

	fired := make(chan struct{}, 4)
	trig.Subscribe(func() { fired <- struct{}{} })

	if err := trig.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("startup trigger never fired")
	}

	select {
	case <-fired:
		t.Fatal("startup trigger fired more than once")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStartupTrigger_StopDisarms(t *testing.T) {
	trig, err := NewStartupTrigger(map[string]string{"delay": "250ms"})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer trig.Close()

	fired := make(chan struct{}, 1)
	trig.Subscribe(func() { fired <- struct{}{} })

	if err := trig.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	trig.Stop()

	select {
	case <-fired:
		t.Fatal("stopped trigger still fired")
	case <-time.After(400 * time.Millisecond):
	}
}

func TestStartupTrigger_RejectsNegativeDelay(t *testing.T) {
	if _, err := NewStartupTrigger(map[string]string{"delay": "-5s"}); err == nil {
		t.Error("expected negative delay to be rejected")
	}
}
