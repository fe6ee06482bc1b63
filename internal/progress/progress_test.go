package progress

import "testing"

func TestBeginReportEndLifecycle(t *testing.T) {
	tr := NewTracker()
	key := Key{ClientKey: "rust@/repo", Token: "tok-1"}

	begin := tr.Begin(key, "Indexing", "", 0, false)
	if begin != "[yac] Indexing" {
		t.Fatalf("unexpected begin toast: %q", begin)
	}
	if !tr.Active(key) {
		t.Fatal("expected key to be active after begin")
	}

	report := tr.Report(key, "crates", 40, true)
	if report != "[yac] Indexing (40%): crates" {
		t.Fatalf("unexpected report toast: %q", report)
	}

	end := tr.End(key, "done")
	if end != "[yac] Indexing: done" {
		t.Fatalf("unexpected end toast: %q", end)
	}
	if tr.Active(key) {
		t.Fatal("expected title map entry removed after end")
	}
}

func TestReportWithoutBeginFallsBackToEmptyTitle(t *testing.T) {
	tr := NewTracker()
	key := Key{ClientKey: "go@/repo", Token: "unseen"}

	got := tr.Report(key, "working", 10, true)
	if got != "[yac]  (10%): working" {
		t.Fatalf("unexpected toast: %q", got)
	}
}

func TestPercentageClamped(t *testing.T) {
	tr := NewTracker()
	key := Key{ClientKey: "go@/repo", Token: "t"}
	tr.Begin(key, "Build", "", 0, false)

	if got := tr.Report(key, "", 150, true); got != "[yac] Build (100%)" {
		t.Fatalf("expected clamp to 100, got %q", got)
	}
	if got := tr.Report(key, "", -5, true); got != "[yac] Build (0%)" {
		t.Fatalf("expected clamp to 0, got %q", got)
	}
}

func TestThreeToastsTitleMapEmptyAfterEnd(t *testing.T) {
	tr := NewTracker()
	a := Key{ClientKey: "go@/repo", Token: "a"}
	b := Key{ClientKey: "go@/repo", Token: "b"}

	tr.Begin(a, "Scan", "", 0, false)
	tr.Begin(b, "Build", "", 0, false)
	tr.Report(a, "half", 50, true)
	tr.End(a, "done")
	tr.End(b, "done")

	if len(tr.titles) != 0 {
		t.Fatalf("expected empty title map, got %d entries", len(tr.titles))
	}
}
