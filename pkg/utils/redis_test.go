package utils

import "testing"

func TestConnectionScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if connAttachScript == nil || connDetachScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}
