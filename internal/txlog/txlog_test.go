package txlog

import (
	"testing"
	"time"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestRecordComputesHash(t *testing.T) {
	log := NewWithClock(fixedClock)
	tx := log.Record(TypeTransfer, "W1", -200, 800, "W2", 200, 700)

	if tx.Hash == "" || len(tx.Hash) != 64 {
		t.Fatalf("expected sha256 hex hash, got %q", tx.Hash)
	}
	if tx.SenderAmount != -200 || tx.SenderBalance != 800 || tx.ReceiverAmount != 200 || tx.ReceiverBalance != 700 {
		t.Fatalf("unexpected transaction fields: %+v", tx)
	}
	if !Verify(tx) {
		t.Fatal("fresh transaction failed verification")
	}
	if log.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", log.Len())
	}
}

func TestHashIsDeterministicAndIgnoresID(t *testing.T) {
	log := NewWithClock(fixedClock)
	a := log.Record(TypeFunding, "inv", -10, 90, "c", 10, 10)
	b := log.Record(TypeFunding, "inv", -10, 90, "c", 10, 10)
	if a.ID == b.ID {
		t.Fatal("expected distinct ids")
	}
	if a.Hash != b.Hash {
		t.Fatalf("expected equal hashes for equal fields: %s vs %s", a.Hash, b.Hash)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	log := NewWithClock(fixedClock)
	tx := log.Record(TypePayout, "c", -500, 0, "p", 500, 500)
	tx.ReceiverAmount = 5000
	if Verify(tx) {
		t.Fatal("tampered transaction passed verification")
	}
}

func TestEntriesAreSnapshots(t *testing.T) {
	log := New()
	log.Record(TypeTransfer, "A", -1, 0, "B", 1, 1)
	log.Record(TypeTransfer, "B", -1, 0, "C", 1, 1)

	entries := log.Entries()
	entries[0].Hash = "mutated"
	if log.Entries()[0].Hash == "mutated" {
		t.Fatal("snapshot shares storage with the log")
	}
	if got := log.ForWallet("B"); len(got) != 2 {
		t.Fatalf("expected 2 entries for B, got %d", len(got))
	}
	if got := log.ForWallet("A"); len(got) != 1 {
		t.Fatalf("expected 1 entry for A, got %d", len(got))
	}
}

func TestBuildDoesNotAppendAndSurvivesMicrosecondStorage(t *testing.T) {
	log := NewWithClock(func() time.Time {
		return time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.FixedZone("CET", 3600))
	})
	tx := log.Build(TypeRepayment, "p", -1010, 0, "c", 1010, 1010)
	if log.Len() != 0 {
		t.Fatalf("build appended an entry")
	}
	if tx.CreatedAt.Nanosecond() != 123456000 || tx.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC microsecond timestamp, got %v", tx.CreatedAt)
	}

	stored := tx
	stored.CreatedAt = tx.CreatedAt.Round(time.Microsecond).In(time.Local)
	if !Verify(stored) {
		t.Fatal("entry failed verification after a microsecond round trip")
	}

	restored := Restore([]Transaction{stored})
	restored.Append(log.Build(TypeDisbursement, "c", -1010, 0, "i", 1010, 1010))
	if restored.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", restored.Len())
	}
	if got := restored.ForWallet("c"); len(got) != 2 || got[0].ID != tx.ID {
		t.Fatalf("restored entries out of order: %+v", got)
	}
}
