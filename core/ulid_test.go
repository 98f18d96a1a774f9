// ABOUTME: Tests that NewULID produces unique identifiers with a non-empty string form.
package core_test

import (
	"testing"

	"github.com/Bullish-Design/remora/core"
)

func TestNewULID_Unique(t *testing.T) {
	a := core.NewULID()
	b := core.NewULID()
	if a == b {
		t.Error("expected two calls to NewULID to produce distinct ids")
	}
}

func TestNewULID_StringNotEmpty(t *testing.T) {
	id := core.NewULID()
	if id.String() == "" {
		t.Error("expected non-empty ULID string representation")
	}
}
