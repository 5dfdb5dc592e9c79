//nolint:varnamelen // Test files use idiomatic short variable names (t, g, etc.)
package syncengine_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joe/server-sync/internal/remote"
	"github.com/joe/server-sync/internal/syncengine"
	"github.com/joe/server-sync/pkg/filesystem"
	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers
)

//nolint:gochecknoglobals // fixed test clock
var testNow = time.Date(2024, time.March, 9, 18, 30, 0, 0, time.UTC)

// eventCollector records emitted events; safe for concurrent use.
type eventCollector struct {
	mu     sync.Mutex
	events []syncengine.Event
}

func (c *eventCollector) Emit(event syncengine.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, event)
}

func (c *eventCollector) snapshot() []syncengine.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]syncengine.Event(nil), c.events...)
}

func (c *eventCollector) count(match func(syncengine.Event) bool) int {
	n := 0

	for _, event := range c.snapshot() {
		if match(event) {
			n++
		}
	}

	return n
}

func newTestEngine(t *testing.T, fs *filesystem.MemoryFileSystem, root string) (*syncengine.Engine, *syncengine.MockTimeProvider) {
	t.Helper()

	store := remote.New(fs.Dial, remote.WithRetryDelay(0), remote.WithProgressLogInterval(0))
	t.Cleanup(func() { _ = store.Close() })

	engine := syncengine.NewEngine(root, store, nil)
	clock := syncengine.NewMockTimeProvider(testNow)
	engine.TimeProvider = clock

	return engine, clock
}

func createTestFile(t *testing.T, root, rel, content string) {
	t.Helper()

	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := os.WriteFile(full, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readTestFile(t *testing.T, root, rel string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}

	return string(data)
}

func largeContent(seed string) string {
	return strings.Repeat(seed, (syncengine.DefaultSmallFileThreshold/len(seed))+100)
}

func opsWithPrefix(fs *filesystem.MemoryFileSystem, prefix string) []string {
	var matched []string

	for _, op := range fs.Ops() {
		if strings.HasPrefix(op, prefix) {
			matched = append(matched, op)
		}
	}

	return matched
}

func busyFlag(fs *filesystem.MemoryFileSystem) string {
	data, _ := fs.Get(syncengine.BusyFlagName)

	return string(data)
}

func TestSaveFiles_BundlesSmallAndArchivesLarge(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fs := filesystem.NewMemoryFileSystem()
	root := t.TempDir()
	createTestFile(t, root, "server.properties", "motd=hello")
	createTestFile(t, root, "world/region/r.0.0.mca", largeContent("region"))
	createTestFile(t, root, "logs/latest.log", "ignored")

	engine, _ := newTestEngine(t, fs, root)

	result, err := engine.SaveFiles(context.Background())
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(result.Uploaded).To(ConsistOf("smallFilesSync.zip", "world/region/r.0.0.mca.zip"))

	g.Expect(opsWithPrefix(fs, "store files/")).To(ConsistOf(
		"store files/smallFilesSync.zip",
		"store files/world/region/r.0.0.mca.zip",
	))
	g.Expect(fs.ListFiles()).To(ContainElement(syncengine.DigestTableName))
	g.Expect(busyFlag(fs)).To(Equal("false"))
}

func TestSaveFiles_SecondSaveIsNoOp(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fs := filesystem.NewMemoryFileSystem()
	root := t.TempDir()
	createTestFile(t, root, "a.txt", "alpha")
	createTestFile(t, root, "big.bin", largeContent("b"))

	engine, _ := newTestEngine(t, fs, root)

	_, err := engine.SaveFiles(context.Background())
	g.Expect(err).ToNot(HaveOccurred())

	fs.ResetOps()

	result, err := engine.SaveFiles(context.Background())
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(result.Uploaded).To(BeEmpty())
	g.Expect(result.Skipped).To(ConsistOf("smallFilesSync.zip", "big.bin.zip"))
	g.Expect(opsWithPrefix(fs, "store files/")).To(BeEmpty())
	g.Expect(opsWithPrefix(fs, "store "+syncengine.DigestTableName)).To(BeEmpty())
}

func TestSaveFiles_OnlyChangedArchivesUpload(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fs := filesystem.NewMemoryFileSystem()
	root := t.TempDir()
	createTestFile(t, root, "a.txt", "alpha")
	createTestFile(t, root, "one.bin", largeContent("1"))
	createTestFile(t, root, "two.bin", largeContent("2"))

	engine, _ := newTestEngine(t, fs, root)

	_, err := engine.SaveFiles(context.Background())
	g.Expect(err).ToNot(HaveOccurred())

	createTestFile(t, root, "two.bin", largeContent("3"))
	fs.ResetOps()

	result, err := engine.SaveFiles(context.Background())
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(result.Uploaded).To(ConsistOf("two.bin.zip"))
	g.Expect(opsWithPrefix(fs, "store files/")).To(ConsistOf("store files/two.bin.zip"))
}

func TestSaveFiles_ClearsBusyFlagWhenUploadFails(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fs := filesystem.NewMemoryFileSystem()
	fs.FailOps("store files/", errors.New("552 exceeded storage allocation"))

	root := t.TempDir()
	createTestFile(t, root, "a.txt", "alpha")

	engine, _ := newTestEngine(t, fs, root)
	events := &eventCollector{}
	engine.SetEventEmitter(events)

	_, err := engine.SaveFiles(context.Background())

	g.Expect(err).To(MatchError(syncengine.ErrSaveIncomplete))
	g.Expect(err).To(MatchError(remote.ErrRemoteOperationFailed))
	g.Expect(busyFlag(fs)).To(Equal("false"))
	g.Expect(opsWithPrefix(fs, "store files/")).To(HaveLen(remote.DefaultAttempts))

	// Nothing was stored, so no digest table advertises it.
	_, published := fs.Get(syncengine.DigestTableName)
	g.Expect(published).To(BeFalse())

	g.Expect(events.count(func(e syncengine.Event) bool {
		_, ok := e.(syncengine.ErrorOccurred)
		return ok
	})).To(Equal(1))
}

func TestSaveFiles_BusyFlagSetBeforeUploadsAndClearedAfter(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fs := filesystem.NewMemoryFileSystem()
	root := t.TempDir()
	createTestFile(t, root, "a.txt", "alpha")

	engine, _ := newTestEngine(t, fs, root)

	_, err := engine.SaveFiles(context.Background())
	g.Expect(err).ToNot(HaveOccurred())

	ops := fs.Ops()
	first := indexOf(ops, "store "+syncengine.BusyFlagName)
	upload := indexOf(ops, "store files/smallFilesSync.zip")
	last := lastIndexOf(ops, "store "+syncengine.BusyFlagName)

	g.Expect(first).To(BeNumerically(">=", 0))
	g.Expect(first).To(BeNumerically("<", upload))
	g.Expect(last).To(BeNumerically(">", upload))
}

func TestSaveFiles_RemovesStaleRemoteArchives(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fs := filesystem.NewMemoryFileSystem()
	root := t.TempDir()
	createTestFile(t, root, "a.txt", "alpha")
	createTestFile(t, root, "old.bin", largeContent("o"))
	createTestFile(t, root, "keep.bin", largeContent("k"))

	engine, _ := newTestEngine(t, fs, root)

	_, err := engine.SaveFiles(context.Background())
	g.Expect(err).ToNot(HaveOccurred())

	g.Expect(os.Remove(filepath.Join(root, "old.bin"))).To(Succeed())
	g.Expect(os.Remove(filepath.Join(root, "a.txt"))).To(Succeed())

	result, err := engine.SaveFiles(context.Background())
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(result.RemoteDeleted).To(ConsistOf("old.bin.zip", "smallFilesSync.zip"))
	g.Expect(fs.ListFiles()).To(ContainElement("files/keep.bin.zip"))
	g.Expect(fs.ListFiles()).ToNot(ContainElements("files/old.bin.zip", "files/smallFilesSync.zip"))
}

func TestSaveFiles_RefusesUnrelatedServerDir(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		local map[string]string
	}{
		{"missing directory", nil},
		{"different files", map[string]string{"other.txt": "elsewhere"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			fs := filesystem.NewMemoryFileSystem()
			hostA := t.TempDir()
			createTestFile(t, hostA, "server.properties", "motd=hi")
			createTestFile(t, hostA, "world/level.dat", largeContent("L"))

			engineA, _ := newTestEngine(t, fs, hostA)
			_, err := engineA.SaveFiles(context.Background())
			g.Expect(err).ToNot(HaveOccurred())

			before := fs.ListFiles()

			hostB := filepath.Join(t.TempDir(), "typo")
			for rel, content := range tt.local {
				createTestFile(t, hostB, rel, content)
			}

			engineB, _ := newTestEngine(t, fs, hostB)
			fs.ResetOps()

			_, err = engineB.SaveFiles(context.Background())
			g.Expect(err).To(MatchError(syncengine.ErrUnrelatedServerDir))
			g.Expect(opsWithPrefix(fs, "remove files/")).To(BeEmpty())
			g.Expect(opsWithPrefix(fs, "store files/")).To(BeEmpty())
			g.Expect(fs.ListFiles()).To(ConsistOf(before))
			g.Expect(busyFlag(fs)).To(Equal("false"))
		})
	}
}

func TestSaveFiles_FirstSaveFromEmptyDirIsAllowed(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fs := filesystem.NewMemoryFileSystem()
	engine, _ := newTestEngine(t, fs, t.TempDir())

	result, err := engine.SaveFiles(context.Background())
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(result.Uploaded).To(BeEmpty())
	g.Expect(result.RemoteDeleted).To(BeEmpty())
}

func TestSaveFiles_LargeFileNamedLikeBundleIsBundled(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fs := filesystem.NewMemoryFileSystem()
	root := t.TempDir()
	createTestFile(t, root, "smallFilesSync", largeContent("s"))
	createTestFile(t, root, "a.txt", "alpha")

	engine, _ := newTestEngine(t, fs, root)

	result, err := engine.SaveFiles(context.Background())
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(result.Uploaded).To(ConsistOf("smallFilesSync.zip"))

	hostB := t.TempDir()
	engineB, _ := newTestEngine(t, fs, hostB)

	_, err = engineB.RetrieveFiles(context.Background())
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(readTestFile(t, hostB, "smallFilesSync")).To(Equal(largeContent("s")))
	g.Expect(readTestFile(t, hostB, "a.txt")).To(Equal("alpha"))
}

func TestRetrieveFiles_MatchingDigestsDownloadNothing(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fs := filesystem.NewMemoryFileSystem()

	// Participant A saves a.txt only.
	hostA := t.TempDir()
	createTestFile(t, hostA, "a.txt", "same content")
	engineA, _ := newTestEngine(t, fs, hostA)
	_, err := engineA.SaveFiles(context.Background())
	g.Expect(err).ToNot(HaveOccurred())

	// Participant B has the same a.txt plus b.txt.
	hostB := t.TempDir()
	createTestFile(t, hostB, "a.txt", "same content")
	createTestFile(t, hostB, "b.txt", "local only")
	engineB, _ := newTestEngine(t, fs, hostB)

	fs.ResetOps()

	result, err := engineB.RetrieveFiles(context.Background())
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(result.Downloaded).To(BeEmpty())
	g.Expect(result.FilesDeleted).To(BeZero())
	g.Expect(opsWithPrefix(fs, "open files/")).To(BeEmpty())

	g.Expect(readTestFile(t, hostB, "a.txt")).To(Equal("same content"))
	g.Expect(readTestFile(t, hostB, "b.txt")).To(Equal("local only"))
	g.Expect(result.BackupPath).To(BeAnExistingFile())
}

func TestRetrieveFiles_ReplacesChangedFiles(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fs := filesystem.NewMemoryFileSystem()

	hostA := t.TempDir()
	createTestFile(t, hostA, "a.txt", "v2")
	createTestFile(t, hostA, "world/level.dat", largeContent("L"))
	engineA, _ := newTestEngine(t, fs, hostA)
	_, err := engineA.SaveFiles(context.Background())
	g.Expect(err).ToNot(HaveOccurred())

	hostB := t.TempDir()
	createTestFile(t, hostB, "a.txt", "v1")
	engineB, _ := newTestEngine(t, fs, hostB)
	events := &eventCollector{}
	engineB.SetEventEmitter(events)

	result, err := engineB.RetrieveFiles(context.Background())
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(result.Downloaded).To(ConsistOf("smallFilesSync.zip", "world/level.dat.zip"))

	g.Expect(readTestFile(t, hostB, "a.txt")).To(Equal("v2"))
	g.Expect(readTestFile(t, hostB, "world/level.dat")).To(Equal(largeContent("L")))

	// Backup precedes deletion, which precedes any download.
	var order []string

	for _, event := range events.snapshot() {
		switch event.(type) {
		case syncengine.BackupCreated:
			order = append(order, "backup")
		case syncengine.LocalFilesDeleted:
			order = append(order, "delete")
		case syncengine.TransferComplete:
			order = append(order, "download")
		}
	}

	g.Expect(order).To(HaveLen(4))
	g.Expect(order[:2]).To(Equal([]string{"backup", "delete"}))

	// The backup holds the pre-retrieval content.
	backup, err := os.ReadFile(result.BackupPath)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(bytes.Contains(backup, []byte("a.txt"))).To(BeTrue())
}

func TestRetrieveFiles_EmptyRemoteStillBacksUp(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fs := filesystem.NewMemoryFileSystem()
	root := t.TempDir()
	createTestFile(t, root, "a.txt", "alpha")

	engine, _ := newTestEngine(t, fs, root)

	result, err := engine.RetrieveFiles(context.Background())
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(result.BackupPath).To(BeAnExistingFile())
	g.Expect(result.Downloaded).To(BeEmpty())
	g.Expect(readTestFile(t, root, "a.txt")).To(Equal("alpha"))
}

func TestRetrieveFiles_WaitsWhileBusy(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fs := filesystem.NewMemoryFileSystem()
	fs.Put(syncengine.BusyFlagName, []byte("true"))

	engine, clock := newTestEngine(t, fs, t.TempDir())
	events := &eventCollector{}
	engine.SetEventEmitter(events)

	done := make(chan error, 1)

	go func() {
		_, err := engine.RetrieveFiles(context.Background())
		done <- err
	}()

	g.Eventually(clock.Created).Should(Receive(Equal(syncengine.DefaultBusyPollInterval)))

	// Still busy after one poll.
	clock.Ticker.TickChan <- testNow
	g.Eventually(func() int {
		return events.count(func(e syncengine.Event) bool {
			_, ok := e.(syncengine.BusyWaiting)
			return ok
		})
	}).Should(Equal(2))
	g.Consistently(done, 50*time.Millisecond).ShouldNot(Receive())

	fs.Put(syncengine.BusyFlagName, []byte("false"))
	clock.Ticker.TickChan <- testNow

	g.Eventually(done).Should(Receive(BeNil()))
}

func TestRetrieveFiles_BusyWaitHonoursContext(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fs := filesystem.NewMemoryFileSystem()
	fs.Put(syncengine.BusyFlagName, []byte("true"))

	engine, _ := newTestEngine(t, fs, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.RetrieveFiles(ctx)
	g.Expect(err).To(MatchError(context.Canceled))
}

func TestRetrieveFiles_PrunesOldBackups(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fs := filesystem.NewMemoryFileSystem()
	root := t.TempDir()
	createTestFile(t, root, "a.txt", "alpha")

	engine, clock := newTestEngine(t, fs, root)
	engine.KeepBackups = 2

	for i := range 4 {
		clock.Current = testNow.Add(time.Duration(i) * time.Minute)
		_, err := engine.RetrieveFiles(context.Background())
		g.Expect(err).ToNot(HaveOccurred())
	}

	entries, err := os.ReadDir(filepath.Join(root, syncengine.InternalDir, syncengine.BackupsDir))
	g.Expect(err).ToNot(HaveOccurred())

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	g.Expect(names).To(ConsistOf("backup-20240309-183200.zip", "backup-20240309-183300.zip"))
}

func TestRetrieveFiles_SameSecondBackupsPruneOldestFirst(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fs := filesystem.NewMemoryFileSystem()
	root := t.TempDir()
	createTestFile(t, root, "a.txt", "alpha")

	engine, _ := newTestEngine(t, fs, root)
	engine.KeepBackups = 2

	var paths []string

	for range 3 {
		result, err := engine.RetrieveFiles(context.Background())
		g.Expect(err).ToNot(HaveOccurred())

		paths = append(paths, filepath.Base(result.BackupPath))
	}

	g.Expect(paths).To(Equal([]string{
		"backup-20240309-183000.zip",
		"backup-20240309-183000-1.zip",
		"backup-20240309-183000-2.zip",
	}))

	entries, err := os.ReadDir(filepath.Join(root, syncengine.InternalDir, syncengine.BackupsDir))
	g.Expect(err).ToNot(HaveOccurred())

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	g.Expect(names).To(ConsistOf("backup-20240309-183000-1.zip", "backup-20240309-183000-2.zip"))
}

func TestHostRecordLifecycle(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	fs := filesystem.NewMemoryFileSystem()
	engine, _ := newTestEngine(t, fs, t.TempDir())

	host, err := engine.HostRecord()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(host).To(BeEmpty())

	g.Expect(engine.PublishHost("203.0.113.7")).To(Succeed())

	host, err = engine.HostRecord()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(host).To(Equal("203.0.113.7"))

	g.Expect(engine.ClearHost()).To(Succeed())
	g.Expect(fs.ListFiles()).ToNot(ContainElement(syncengine.HostRecordName))

	fs.Put(syncengine.BusyFlagName, []byte("true"))

	busy, err := engine.IsBusy()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(busy).To(BeTrue())

	g.Expect(engine.ClearBusyFlag()).To(Succeed())
	g.Expect(busyFlag(fs)).To(Equal("false"))
}

func indexOf(list []string, value string) int {
	for i, item := range list {
		if item == value {
			return i
		}
	}

	return -1
}

func lastIndexOf(list []string, value string) int {
	for i := len(list) - 1; i >= 0; i-- {
		if list[i] == value {
			return i
		}
	}

	return -1
}
