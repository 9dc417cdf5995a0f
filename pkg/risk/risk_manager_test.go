package risk

import "testing"

func TestCheckTriggersEmergencyStopAfterStreak(t *testing.T) {
	m := NewMonitor(Config{MaxDailyLossPct: 5, MinAccountBalance: 1000, EmergencyStopThreshold: 2})

	m.Check(2000, 2000) // healthy
	if m.EmergencyStop() {
		t.Fatal("did not expect emergency stop on healthy equity")
	}

	m.Check(500, 2000) // below min balance, streak 1
	m.Check(500, 2000) // streak 2 -> trip

	if !m.EmergencyStop() {
		t.Fatal("expected emergency stop after repeated breaches")
	}
}

func TestCheckResetsStreakOnRecovery(t *testing.T) {
	m := NewMonitor(Config{MaxDailyLossPct: 5, MinAccountBalance: 1000, EmergencyStopThreshold: 3})

	m.Check(500, 2000)
	m.Check(2000, 2000) // recovers, streak resets
	m.Check(500, 2000)

	if m.EmergencyStop() {
		t.Fatal("did not expect emergency stop; streak should have reset")
	}
}

func TestDailyLossBreach(t *testing.T) {
	m := NewMonitor(Config{MaxDailyLossPct: 5, MinAccountBalance: 0, EmergencyStopThreshold: 1})
	m.Check(940, 1000) // -6% daily loss, breaches 5% limit
	if !m.EmergencyStop() {
		t.Fatal("expected emergency stop on daily loss breach")
	}
	if len(m.Alerts()) == 0 {
		t.Fatal("expected an alert to be recorded")
	}
}
