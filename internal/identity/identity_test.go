package identity

import (
	"testing"
	"time"
)

func TestLoadOrCreatePersists(t *testing.T) {
	dir := t.TempDir()
	dev, err := LoadOrCreate(dir)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if dev.ID == "" {
		t.Fatal("expected non-empty device id")
	}

	again, err := LoadOrCreate(dir)
	if err != nil {
		t.Fatalf("LoadOrCreate second call: %v", err)
	}
	if again.ID != dev.ID {
		t.Fatalf("device id changed across launches: %q != %q", again.ID, dev.ID)
	}
}

func TestTrustStoreUpsert(t *testing.T) {
	dir := t.TempDir()
	store := NewTrustStore(dir)

	trusted, err := store.IsTrusted("peer-1")
	if err != nil {
		t.Fatalf("IsTrusted: %v", err)
	}
	if trusted {
		t.Fatal("expected peer-1 to not be trusted yet")
	}

	now := time.Unix(1000, 0)
	if err := Add(store, "peer-1", "laptop", "10.0.0.5", now); err != nil {
		t.Fatalf("Add: %v", err)
	}
	trusted, err = store.IsTrusted("peer-1")
	if err != nil || !trusted {
		t.Fatalf("expected peer-1 trusted, err=%v", err)
	}

	later := time.Unix(2000, 0)
	if err := Add(store, "peer-1", "laptop", "10.0.0.9", later); err != nil {
		t.Fatalf("Add (upsert): %v", err)
	}
	ip, ok, err := store.IPOf("peer-1")
	if err != nil || !ok || ip != "10.0.0.9" {
		t.Fatalf("IPOf = %q, %v, %v; want 10.0.0.9, true, nil", ip, ok, err)
	}

	if err := store.Remove("peer-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	trusted, err = store.IsTrusted("peer-1")
	if err != nil || trusted {
		t.Fatalf("expected peer-1 removed, trusted=%v err=%v", trusted, err)
	}
}
