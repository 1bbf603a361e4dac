package progress

import (
	"bytes"
	"strings"
	"testing"
)

func TestTracker(t *testing.T) {
	var buf bytes.Buffer
	tr := NewWithWriter(&buf)

	tr.Add(5) // before SetTotal: counted, no bar
	tr.SetTotal(20)
	tr.Describe("Produit")
	tr.Add(10)
	tr.Add(5)

	if got := tr.Current(); got != 20 {
		t.Errorf("Current() = %d, want 20", got)
	}
	if tr.Total() != 20 {
		t.Errorf("Total() = %d", tr.Total())
	}

	tr.Finish()
	if !strings.Contains(buf.String(), "Exported 20 rows") {
		t.Errorf("summary missing: %q", buf.String())
	}
}

func TestTrackerUnknownTotal(t *testing.T) {
	var buf bytes.Buffer
	tr := NewWithWriter(&buf)
	tr.SetTotal(-1)
	tr.Add(3)
	tr.Finish()
	if tr.Current() != 3 {
		t.Errorf("Current() = %d", tr.Current())
	}
}
