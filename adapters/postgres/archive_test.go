package postgres

import (
	"context"
	"testing"
)

func TestNilArchiveIsNoOp(t *testing.T) {
	archive, err := NewArchive(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if archive.Enabled() {
		t.Fatal("empty database URL should disable the archive")
	}

	if err := archive.SaveRun(context.Background(), RunSummary{}, nil); err != nil {
		t.Errorf("disabled SaveRun should be a no-op, got %v", err)
	}
	runs, err := archive.RecentRuns(context.Background(), 10)
	if err != nil || runs != nil {
		t.Errorf("disabled RecentRuns should return nothing, got %v, %v", runs, err)
	}
	if err := archive.Close(); err != nil {
		t.Errorf("disabled Close should be a no-op, got %v", err)
	}
}
