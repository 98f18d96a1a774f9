// ABOUTME: Tests for Resolver path conversion and the ignore-pattern matcher.
package pathutil_test

import (
	"path/filepath"
	"testing"

	"github.com/Bullish-Design/remora/pathutil"
)

func TestResolver_ToProjectRelative(t *testing.T) {
	r := pathutil.NewResolver(filepath.FromSlash("/proj"))

	rel, err := r.ToProjectRelative(filepath.FromSlash("/proj/src/foo.go"))
	if err != nil {
		t.Fatalf("ToProjectRelative: %v", err)
	}
	if rel != "src/foo.go" {
		t.Errorf("got %q, want %q", rel, "src/foo.go")
	}
}

func TestResolver_ToProjectRelative_OutsideRootIsError(t *testing.T) {
	r := pathutil.NewResolver(filepath.FromSlash("/proj"))

	_, err := r.ToProjectRelative(filepath.FromSlash("/other/foo.go"))
	if err == nil {
		t.Fatal("expected error for path outside project root")
	}
}

func TestResolver_ToAbsolute(t *testing.T) {
	r := pathutil.NewResolver(filepath.FromSlash("/proj"))

	abs := r.ToAbsolute("src/foo.go")
	want := filepath.Join("/proj", "src", "foo.go")
	if abs != want {
		t.Errorf("got %q, want %q", abs, want)
	}
}

func TestResolver_IsWithinProject(t *testing.T) {
	r := pathutil.NewResolver(filepath.FromSlash("/proj"))

	if !r.IsWithinProject(filepath.FromSlash("/proj/src/foo.go")) {
		t.Error("expected path under project root to be within project")
	}
	if r.IsWithinProject(filepath.FromSlash("/other/foo.go")) {
		t.Error("expected path outside project root to not be within project")
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"src/foo.go":       "src/foo.go",
		"src/./foo.go":     "src/foo.go",
		"src/../src/a.go":  "src/a.go",
	}
	for in, want := range cases {
		if got := pathutil.Normalize(filepath.FromSlash(in)); got != want {
			t.Errorf("Normalize(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestShouldIgnore(t *testing.T) {
	patterns := pathutil.DefaultIgnorePatterns

	ignored := []string{
		"src/.git/HEAD",
		"node_modules/pkg/index.js",
	}
	for _, p := range ignored {
		if !pathutil.ShouldIgnore(p, patterns, false) {
			t.Errorf("expected %q to be ignored", p)
		}
	}

	if pathutil.ShouldIgnore("src/foo.go", patterns, false) {
		t.Error("expected src/foo.go to not be ignored")
	}
}

func TestShouldIgnore_ExactSegmentNotSubstring(t *testing.T) {
	// "venv" is a default pattern; a directory merely containing that
	// substring, like "myvenv", must not match.
	if pathutil.ShouldIgnore("myvenv/foo.go", pathutil.DefaultIgnorePatterns, false) {
		t.Error("expected substring match to not count as ignore")
	}
}

func TestShouldIgnore_Dotfiles(t *testing.T) {
	if !pathutil.ShouldIgnore(".venv/lib/site-packages", nil, true) {
		t.Error("expected dotfile segment to be ignored when ignoreDotfiles is set")
	}
	if pathutil.ShouldIgnore(".venv/lib/site-packages", nil, false) {
		t.Error("expected dotfile segment to not be ignored when ignoreDotfiles is unset")
	}
	if pathutil.ShouldIgnore("src/foo.go", nil, true) {
		t.Error("expected non-dotfile path to not be ignored")
	}
}
