package session

import "testing"

func TestGeneratePairCodeLengthAndPrefix(t *testing.T) {
	code, err := GeneratePairCode("192.168.1.42")
	if err != nil {
		t.Fatalf("GeneratePairCode: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("len(code) = %d, want 6", len(code))
	}
	wantPrefix := "06" // 42 % 36 = 6 -> "06"
	if code[:2] != wantPrefix {
		t.Fatalf("prefix = %s, want %s", code[:2], wantPrefix)
	}
}

func TestPairCodesEqualIsCaseInsensitive(t *testing.T) {
	if !PairCodesEqual("7ak3q9", "7AK3Q9") {
		t.Fatal("expected case-insensitive match")
	}
	if PairCodesEqual("ABC123", "ABC124") {
		t.Fatal("expected mismatch to be reported")
	}
}
