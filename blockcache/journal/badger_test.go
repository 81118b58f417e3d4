package journal

import (
	"testing"

	s3store "github.com/marmos91/s3block/store"
)

func TestBadgerJournal_AppendRecoverClear(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer j.Close()

	payload := []byte("payload")
	hash := s3store.SumHash(payload)
	if err := j.AppendDirty(5, payload, hash, 123); err != nil {
		t.Fatalf("AppendDirty failed: %v", err)
	}
	if err := j.AppendDirty(9, nil, s3store.Hash{}, 456); err != nil {
		t.Fatalf("AppendDirty failed: %v", err)
	}

	entries, err := j.Recover()
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 recovered entries, got %d", len(entries))
	}

	byIdx := map[uint32]Entry{}
	for _, e := range entries {
		byIdx[e.Index] = e
	}
	if byIdx[5].Hash != hash || byIdx[5].DirtySince != 123 {
		t.Fatalf("unexpected recovered entry for index 5: %+v", byIdx[5])
	}
	if string(byIdx[5].Data) != "payload" {
		t.Fatalf("expected recovered payload bytes to survive, got %q", byIdx[5].Data)
	}
	if byIdx[9].Data != nil {
		t.Fatalf("expected all-zero entry to recover nil data, got %q", byIdx[9].Data)
	}

	if err := j.Clear(5); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	entries, err = j.Recover()
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Index != 9 {
		t.Fatalf("expected only index 9 to remain, got %+v", entries)
	}
}

func TestNullJournal_IsNoOp(t *testing.T) {
	var j NullJournal
	if j.IsEnabled() {
		t.Fatal("NullJournal should report disabled")
	}
	if err := j.AppendDirty(1, nil, s3store.Hash{}, 0); err != nil {
		t.Fatalf("AppendDirty should be a no-op, got %v", err)
	}
	entries, err := j.Recover()
	if err != nil || entries != nil {
		t.Fatalf("Recover should return (nil, nil), got (%v, %v)", entries, err)
	}
}
