package applog

import (
	"bytes"
	"strings"
	"testing"
)

func TestInfoWritesFormattedLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)
	l.Info("sent %d chunks", 3)
	if !strings.Contains(buf.String(), "sent 3 chunks") {
		t.Fatalf("output = %q, want it to contain %q", buf.String(), "sent 3 chunks")
	}
}
