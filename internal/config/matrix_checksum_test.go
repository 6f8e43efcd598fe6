package config

import "testing"

func TestMatrixChecksum_DeterministicAcrossSelectionOrder(t *testing.T) {
	s := testSuite()
	rc1 := &RunConfiguration{Variants: []string{"sys", "mi"}, Workloads: []string{"cfrac", "larson"}, Invocations: 2}
	rc2 := &RunConfiguration{Variants: []string{"mi", "sys"}, Workloads: []string{"larson", "cfrac"}, Invocations: 2}

	s1, err := MatrixChecksum(s, rc1)
	if err != nil {
		t.Fatalf("MatrixChecksum(rc1): %v", err)
	}
	s2, err := MatrixChecksum(s, rc2)
	if err != nil {
		t.Fatalf("MatrixChecksum(rc2): %v", err)
	}
	if s1 != s2 {
		t.Fatalf("expected same checksum, got %q vs %q", s1, s2)
	}
	if len(s1) != 6 {
		t.Fatalf("expected 6-char checksum, got %q (len=%d)", s1, len(s1))
	}
}

func TestMatrixChecksum_ChangesWhenMatrixChanges(t *testing.T) {
	s := testSuite()
	rc := &RunConfiguration{Variants: []string{"sys"}, Workloads: []string{"cfrac"}, Invocations: 1}

	s1, err := MatrixChecksum(s, rc)
	if err != nil {
		t.Fatalf("MatrixChecksum: %v", err)
	}

	s.Workloads[0].Command = "./cfrac 2"
	s2, err := MatrixChecksum(s, rc)
	if err != nil {
		t.Fatalf("MatrixChecksum after change: %v", err)
	}
	if s1 == s2 {
		t.Fatalf("expected checksum to change, got %q", s1)
	}

	rc.Profile = ProfileDebug
	s3, _ := MatrixChecksum(s, rc)
	if s3 == s2 {
		t.Fatalf("expected profile to change checksum")
	}
}
