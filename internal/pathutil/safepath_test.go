package pathutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestHasDotSegments tests the helper directly for clarity
func TestHasDotSegments(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"chainlit_fr.md", false},
		{"chainlit_./x", false},
		{"chainlit_fr/./x", true},
		{"../chainlit.md", true},
		{".", true},
		{"..", true},
		{"...", false},
		{".hidden", false},
		{"docs/.", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := HasDotSegments(tt.path); got != tt.want {
				t.Errorf("HasDotSegments(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func mustWrite(t *testing.T, p string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func symlinkOrSkip(t *testing.T, target, link string) {
	t.Helper()
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
}

func TestIsPathInside_Lexical(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "app")
	mustWrite(t, filepath.Join(root, "chainlit.md"))
	mustWrite(t, filepath.Join(base, "secret.md"))
	mustWrite(t, filepath.Join(base, "app2", "chainlit.md"))

	tests := []struct {
		name      string
		candidate string
		want      bool
	}{
		{"existing file", filepath.Join(root, "chainlit.md"), true},
		{"missing file", filepath.Join(root, "chainlit_fr.md"), true},
		{"missing nested", filepath.Join(root, "a", "b", "c.md"), true},
		{"root itself", root, true},
		{"root with trailing dot", root + string(filepath.Separator) + ".", true},
		{"parent escape", filepath.Join(root, "chainlit_x") + string(filepath.Separator) + ".." + string(filepath.Separator) + ".." + string(filepath.Separator) + "secret.md", false},
		{"dotdot inside a name", root + string(filepath.Separator) + "chainlit_../chainlit.md", true},
		{"escape then back in", root + string(filepath.Separator) + ".." + string(filepath.Separator) + "app" + string(filepath.Separator) + "chainlit.md", true},
		{"sibling with shared prefix", filepath.Join(base, "app2", "chainlit.md"), false},
		{"parent dir", base, false},
		{"filesystem root", string(filepath.Separator), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPathInside(tt.candidate, root); got != tt.want {
				t.Errorf("IsPathInside(%q, %q) = %v, want %v", tt.candidate, root, got, tt.want)
			}
		})
	}
}

func TestIsPathInside_Relative(t *testing.T) {
	base := t.TempDir()
	mustWrite(t, filepath.Join(base, "app", "chainlit.md"))
	t.Chdir(base)

	if !IsPathInside("app/chainlit.md", "app") {
		t.Error("relative candidate under relative root should be inside")
	}
	if IsPathInside("app/../other.md", "app") {
		t.Error("relative escape should be outside")
	}
	if !IsPathInside(filepath.Join(base, "app", "x.md"), "app") {
		t.Error("absolute candidate vs relative root should compare resolved paths")
	}
}

func TestIsPathInside_Symlinks(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "app")
	outside := filepath.Join(base, "outside")
	mustWrite(t, filepath.Join(root, "chainlit.md"))
	mustWrite(t, filepath.Join(outside, "secret.md"))
	mustWrite(t, filepath.Join(root, "sub", "deep", "x.md"))

	// link inside root pointing out
	symlinkOrSkip(t, outside, filepath.Join(root, "escape"))
	// file link inside root pointing out
	symlinkOrSkip(t, filepath.Join(outside, "secret.md"), filepath.Join(root, "chainlit_fr.md"))
	// link inside root pointing elsewhere inside
	symlinkOrSkip(t, filepath.Join(root, "sub", "deep"), filepath.Join(root, "alias"))
	// relative link
	symlinkOrSkip(t, "../outside", filepath.Join(root, "rel"))
	// loop
	symlinkOrSkip(t, filepath.Join(root, "loop"), filepath.Join(root, "loop"))
	// alias of root itself
	rootLink := filepath.Join(base, "approot")
	symlinkOrSkip(t, root, rootLink)

	tests := []struct {
		name      string
		candidate string
		root      string
		want      bool
	}{
		{"dir link escapes", filepath.Join(root, "escape", "secret.md"), root, false},
		{"file link escapes", filepath.Join(root, "chainlit_fr.md"), root, false},
		{"link to missing tail escapes", filepath.Join(root, "escape", "nope.md"), root, false},
		{"relative link escapes", filepath.Join(root, "rel", "secret.md"), root, false},
		{"link stays inside", filepath.Join(root, "alias", "x.md"), root, true},
		// link/.. steps up from the link target, not lexically
		{"dotdot after link", filepath.Join(root, "alias") + string(filepath.Separator) + ".." + string(filepath.Separator) + "deep" + string(filepath.Separator) + "x.md", root, true},
		{"dotdot after escaping link", filepath.Join(root, "escape") + string(filepath.Separator) + ".." + string(filepath.Separator) + "outside" + string(filepath.Separator) + "secret.md", root, false},
		{"loop fails closed", filepath.Join(root, "loop", "x.md"), root, false},
		{"root given through link", filepath.Join(root, "chainlit.md"), rootLink, true},
		{"candidate given through root link", filepath.Join(rootLink, "chainlit.md"), root, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPathInside(tt.candidate, tt.root); got != tt.want {
				t.Errorf("IsPathInside(%q, %q) = %v, want %v", tt.candidate, tt.root, got, tt.want)
			}
		})
	}
}

func TestResolve_Empty(t *testing.T) {
	if _, err := Resolve(""); err == nil {
		t.Fatal("empty path should fail")
	}
	if IsPathInside("", t.TempDir()) {
		t.Fatal("empty candidate must not be inside")
	}
}

func FuzzHasDotSegments(f *testing.F) {
	f.Add("foo/./bar")
	f.Add("foo/../bar")
	f.Add("./foo")
	f.Add("foo/.")
	f.Add("foo/bar")
	f.Add("...")

	f.Fuzz(func(t *testing.T, p string) {
		result := HasDotSegments(p)
		manual := false
		for _, seg := range strings.Split(p, "/") {
			if seg == "." || seg == ".." {
				manual = true
				break
			}
		}
		if result != manual {
			t.Errorf("HasDotSegments(%q) = %v, but manual check = %v", p, result, manual)
		}
	})
}

// Without symlinks under root, containment must agree with a lexical check.
func FuzzIsPathInside(f *testing.F) {
	f.Add("chainlit.md")
	f.Add("chainlit_en-US.md")
	f.Add("chainlit_../../etc/passwd.md")
	f.Add("../app/chainlit.md")
	f.Add("a/b/../../..")
	f.Add("")

	root := filepath.Join(f.TempDir(), "app")
	if err := os.MkdirAll(root, 0o755); err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, name string) {
		if strings.ContainsRune(name, 0) || len(name) > 200 {
			t.Skip()
		}
		candidate := root + string(filepath.Separator) + name
		rel, err := filepath.Rel(root, filepath.Clean(candidate))
		if err != nil {
			t.Skip()
		}
		want := rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))

		if got := IsPathInside(candidate, root); got != want {
			t.Errorf("IsPathInside(%q) = %v, lexical = %v", candidate, got, want)
		}
	})
}
