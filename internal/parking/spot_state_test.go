package parking

import "testing"

func TestCanTransition(t *testing.T) {
	if !CanTransition(StatusAvailable, StatusOccupied) {
		t.Fatalf("expected available -> occupied allowed")
	}
	if !CanTransition(StatusOccupied, StatusAvailable) {
		t.Fatalf("expected occupied -> available allowed")
	}
	if CanTransition(StatusOccupied, StatusOccupied) {
		t.Fatalf("expected occupied -> occupied not allowed (double booking)")
	}
	if CanTransition(StatusAvailable, StatusAvailable) {
		t.Fatalf("expected available -> available not allowed")
	}
	if CanTransition(SpotStatus("maintenance"), StatusOccupied) {
		t.Fatalf("expected unknown status to reject transitions")
	}
}
