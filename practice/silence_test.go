package practice

import (
	"testing"
	"time"
)

func warnOnlyMonitor() *silenceMonitor {
	return newSilenceMonitor(100*time.Millisecond, 8*time.Second, 0)
}

func autoStopMonitor() *silenceMonitor {
	return newSilenceMonitor(100*time.Millisecond, 8*time.Second, 30*time.Second)
}

func feedN(m *silenceMonitor, speech bool, n int) SilenceEvent {
	var last SilenceEvent
	for i := 0; i < n; i++ {
		last = m.Tick(speech)
	}
	return last
}

func TestSilenceWarnAfter8s(t *testing.T) {
	m := autoStopMonitor()
	for i := 0; i < 79; i++ {
		if ev := m.Tick(false); ev != SilenceNone {
			t.Fatalf("unexpected event at tick %d: %d", i, ev)
		}
	}
	if ev := m.Tick(false); ev != SilenceWarn {
		t.Fatalf("expected SilenceWarn at tick 80, got %d", ev)
	}
}

func TestSilenceWarnClearsOnSpeech(t *testing.T) {
	m := autoStopMonitor()
	feedN(m, false, 80)

	for i := 0; i < 80; i++ {
		if ev := m.Tick(true); ev == SilenceWarnClear {
			return
		}
	}
	t.Fatal("expected SilenceWarnClear after speech")
}

func TestNoWarnDuringSpeech(t *testing.T) {
	m := autoStopMonitor()
	for i := 0; i < 400; i++ {
		if ev := m.Tick(true); ev != SilenceNone {
			t.Fatalf("unexpected event %d during speech at tick %d", ev, i)
		}
	}
}

func TestRepeatBeep(t *testing.T) {
	m := autoStopMonitor()
	feedN(m, false, 80)
	var gotRepeat bool
	for i := 0; i < 100; i++ {
		if ev := m.Tick(false); ev == SilenceRepeat {
			gotRepeat = true
			break
		}
	}
	if !gotRepeat {
		t.Fatal("expected SilenceRepeat")
	}
}

func TestAutoStopAfter30s(t *testing.T) {
	m := autoStopMonitor()
	for i := 0; i < 400; i++ {
		ev := m.Tick(false)
		if ev == SilenceAutoStop {
			if i != 299 {
				t.Fatalf("auto-stop at tick %d, want 299", i)
			}
			return
		}
		if i >= 299 && ev == SilenceRepeat {
			t.Fatalf("SilenceRepeat fired at tick %d instead of SilenceAutoStop", i)
		}
	}
	t.Fatal("expected SilenceAutoStop within 400 ticks")
}

func TestAutoStopPreventedBySpeech(t *testing.T) {
	m := autoStopMonitor()
	for i := 0; i < 500; i++ {
		speech := i%10 < 7
		if ev := m.Tick(speech); ev == SilenceAutoStop {
			t.Fatalf("unexpected auto-stop with speech at tick %d", i)
		}
	}
}

func TestWarnOnlyMonitorNeverStops(t *testing.T) {
	m := warnOnlyMonitor()
	warns := 0
	for i := 0; i < 400; i++ {
		switch m.Tick(false) {
		case SilenceWarn:
			warns++
		case SilenceAutoStop, SilenceRepeat:
			t.Fatalf("unexpected auto-stop or repeat at tick %d", i)
		}
	}
	if warns != 1 {
		t.Fatalf("expected exactly 1 SilenceWarn, got %d", warns)
	}
}

func TestWarnStaysDuringNoise(t *testing.T) {
	m := autoStopMonitor()
	feedN(m, false, 80)

	clears := 0
	for i := 0; i < 80; i++ {
		speech := i%10 == 0
		if ev := m.Tick(speech); ev == SilenceWarnClear {
			clears++
		}
	}
	if clears > 0 {
		t.Fatalf("expected warning to stay with 10%% speech, got %d clears", clears)
	}
}
