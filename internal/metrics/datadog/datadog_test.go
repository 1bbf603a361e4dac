package datadog

import (
	"reflect"
	"testing"

	"github.com/johndauphine/retail-etl/internal/metrics"
)

func TestNewBackendRequiresAddr(t *testing.T) {
	if _, err := NewBackend(Config{}); err == nil {
		t.Fatal("NewBackend() expected error for empty Addr")
	}
}

func TestNewBackendUDP(t *testing.T) {
	// UDP needs no listener; the client only resolves the address.
	b, err := NewBackend(Config{Addr: "127.0.0.1:8125", Namespace: "retail.", GlobalTags: []string{"env:test"}})
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	defer b.Close()

	b.IncCounter(metrics.RecordsTotal, 10, metrics.Labels{"table": "Produit"})
	b.ObserveHistogram(metrics.ExportDuration, 0.25, nil)
	if err := b.Flush(); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
}

func TestLabelsToTags(t *testing.T) {
	got := labelsToTags(metrics.Labels{"table": "Stock", "status": "success"})
	want := []string{"status:success", "table:Stock"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("labelsToTags() = %v, want %v", got, want)
	}
	if labelsToTags(nil) != nil {
		t.Error("labelsToTags(nil) should be nil")
	}
}
