//nolint:varnamelen // Test files use idiomatic short variable names (t, g, etc.)
package archive_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joe/server-sync/pkg/archive"
	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}

		if err := os.WriteFile(full, []byte(content), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func entriesFor(root string, rels ...string) []archive.Entry {
	entries := make([]archive.Entry, 0, len(rels))
	for _, rel := range rels {
		entries = append(entries, archive.Entry{
			RelativePath: rel,
			AbsolutePath: filepath.Join(root, filepath.FromSlash(rel)),
		})
	}

	return entries
}

func TestPack_ByteStableAcrossRepacks(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"server.properties": "motd=hi",
		"world/level.dat":   "level",
	})

	packager := archive.NewPackager(nil)

	first, err := packager.Pack(entriesFor(root, "world/level.dat", "server.properties"))
	g.Expect(err).ToNot(HaveOccurred())

	// Touch the files; mtimes must not leak into the archive.
	later := time.Now().Add(time.Hour)
	g.Expect(os.Chtimes(filepath.Join(root, "server.properties"), later, later)).To(Succeed())

	second, err := packager.Pack(entriesFor(root, "server.properties", "world/level.dat"))
	g.Expect(err).ToNot(HaveOccurred())

	g.Expect(second).To(Equal(first))
}

func TestPackUnpack_RoundTripOntoTree(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":           "alpha",
		"nested/deep/b.txt": "beta",
	})

	packager := archive.NewPackager(nil)
	data, err := packager.Pack(append(entriesFor(src, "a.txt", "nested/deep/b.txt"),
		archive.Entry{RelativePath: "empty", IsDir: true}))
	g.Expect(err).ToNot(HaveOccurred())

	dest := t.TempDir()
	writeTree(t, dest, map[string]string{"a.txt": "old content that is longer"})

	written, err := packager.Unpack(data, dest)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(written).To(ConsistOf("a.txt", "nested/deep/b.txt"))

	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(string(got)).To(Equal("alpha"))

	got, err = os.ReadFile(filepath.Join(dest, "nested", "deep", "b.txt"))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(string(got)).To(Equal("beta"))

	info, err := os.Stat(filepath.Join(dest, "empty"))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(info.IsDir()).To(BeTrue())
}

func TestPack_SkipsUnreadableEntries(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	root := t.TempDir()
	writeTree(t, root, map[string]string{"present.txt": "here"})

	data, err := archive.NewPackager(nil).Pack(entriesFor(root, "present.txt", "missing.txt"))
	g.Expect(err).ToNot(HaveOccurred())

	contents, err := archive.ReadEntries(data)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(contents).To(HaveLen(1))
	g.Expect(contents).To(HaveKeyWithValue("present.txt", []byte("here")))
}

func TestUnpack_MalformedIsFatal(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	_, err := archive.NewPackager(nil).Unpack([]byte("definitely not a zip"), t.TempDir())
	g.Expect(err).To(MatchError(archive.ErrMalformedArchive))

	bad := filepath.Join(t.TempDir(), "bad.zip")
	g.Expect(os.WriteFile(bad, []byte("junk"), 0o600)).To(Succeed())

	_, err = archive.NewPackager(nil).UnpackFile(bad, t.TempDir())
	g.Expect(err).To(MatchError(archive.ErrMalformedArchive))
}

func TestUnpack_WriteFailureSkipsEntryOnly(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	packager := archive.NewPackager(nil)
	data, err := packager.Pack([]archive.Entry{
		{RelativePath: "blocked/file.txt", Content: []byte("x")},
		{RelativePath: "ok.txt", Content: []byte("y")},
	})
	g.Expect(err).ToNot(HaveOccurred())

	dest := t.TempDir()
	// A regular file where a directory is needed makes the first entry unwritable.
	g.Expect(os.WriteFile(filepath.Join(dest, "blocked"), []byte("file"), 0o600)).To(Succeed())

	written, err := packager.Unpack(data, dest)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(written).To(ConsistOf("ok.txt"))
}

func TestPackFileAndUnpackFile(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	packager := archive.NewPackager(nil)
	archivePath := filepath.Join(t.TempDir(), "out", "bundle.zip")

	g.Expect(packager.PackFile(archivePath, []archive.Entry{
		{RelativePath: `dir\win.txt`, Content: []byte("w")},
	})).To(Succeed())

	dest := t.TempDir()
	written, err := packager.UnpackFile(archivePath, dest)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(written).To(HaveLen(1))
}

func TestSafeJoin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entry   string
		wantErr bool
	}{
		{name: "plain", entry: "a/b.txt"},
		{name: "parent escape", entry: "../evil.txt", wantErr: true},
		{name: "nested escape", entry: "a/../../evil.txt", wantErr: true},
		{name: "absolute", entry: "/etc/passwd", wantErr: true},
		{name: "backslash escape", entry: `..\evil.txt`, wantErr: true},
		{name: "dot only", entry: ".", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			target, err := archive.SafeJoin("/root", tt.entry)
			if tt.wantErr {
				g.Expect(err).To(MatchError(archive.ErrUnsafeEntry))

				return
			}

			g.Expect(err).ToNot(HaveOccurred())
			g.Expect(target).To(Equal(filepath.Join("/root", "a", "b.txt")))
		})
	}
}
