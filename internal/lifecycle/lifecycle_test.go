package lifecycle_test

import (
	"context"
	"errors"
	"time"

	"github.com/joe/server-sync/internal/lifecycle"
	"github.com/joe/server-sync/internal/netaddr"
	"github.com/joe/server-sync/internal/remote"
	"github.com/joe/server-sync/internal/syncengine"
	"github.com/joe/server-sync/pkg/filesystem"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // Dot import is idiomatic for Ginkgo
	. "github.com/onsi/gomega"    //nolint:revive // Dot import is idiomatic for Gomega matchers
)

func drain(states <-chan lifecycle.State) []lifecycle.State {
	var seen []lifecycle.State

	for {
		select {
		case state := <-states:
			seen = append(seen, state)
		default:
			return seen
		}
	}
}

var _ = Describe("Lifecycle", func() {
	var (
		engine      *fakeEngine
		runner      *fakeRunner
		lc          *lifecycle.Lifecycle
		states      <-chan lifecycle.State
		unsubscribe func()
	)

	fullCycle := []lifecycle.State{
		lifecycle.Offline,
		lifecycle.RetrievingFiles,
		lifecycle.Running,
		lifecycle.SavingFiles,
		lifecycle.Offline,
	}

	BeforeEach(func() {
		engine = &fakeEngine{}
		runner = newFakeRunner()
		lc = lifecycle.New(engine, runner,
			lifecycle.WithAddressSource(netaddr.Static("203.0.113.5")),
			lifecycle.WithPollInterval(5*time.Millisecond),
		)
		states, unsubscribe = lc.Subscribe()
	})

	AfterEach(func() {
		unsubscribe()
	})

	Describe("a clean run", func() {
		It("passes through every state exactly once", func() {
			Expect(lc.Start(context.Background())).To(Succeed())
			Eventually(lc.Status).Should(Equal(lifecycle.Running))

			lc.RequestStop()
			Expect(lc.Wait()).To(Succeed())

			Expect(drain(states)).To(Equal(fullCycle))
		})

		It("claims, syncs and releases the server in order", func() {
			Expect(lc.Start(context.Background())).To(Succeed())
			Eventually(lc.Status).Should(Equal(lifecycle.Running))

			lc.RequestStop()
			Expect(lc.Wait()).To(Succeed())

			Expect(engine.Calls()).To(Equal([]string{"publish 203.0.113.5", "retrieve", "save", "clear host"}))
			Expect(runner.instance.Stops()).To(Equal(1))
		})

		It("publishes the host record before entering retrieving files", func() {
			address := newGatedAddress()
			gated := lifecycle.New(engine, runner,
				lifecycle.WithAddressSource(address),
				lifecycle.WithPollInterval(5*time.Millisecond),
			)
			gatedStates, unsubscribeGated := gated.Subscribe()
			defer unsubscribeGated()

			Expect(gated.Start(context.Background())).To(Succeed())
			Eventually(address.hit).Should(BeClosed())

			Expect(gated.Status()).To(Equal(lifecycle.Offline))
			Expect(engine.Calls()).To(BeEmpty())

			close(address.release)
			Eventually(gated.Status).Should(Equal(lifecycle.Running))

			gated.RequestStop()
			Expect(gated.Wait()).To(Succeed())

			Expect(drain(gatedStates)).To(Equal(fullCycle))
			Expect(engine.Calls()[0]).To(Equal("publish 198.51.100.7"))
		})
	})

	Describe("an unexpected server exit", func() {
		It("saves without an explicit stop and follows the same states", func() {
			Expect(lc.Start(context.Background())).To(Succeed())
			Eventually(lc.Status).Should(Equal(lifecycle.Running))

			runner.instance.crash()
			Expect(lc.Wait()).To(Succeed())

			Expect(drain(states)).To(Equal(fullCycle))
			Expect(engine.Calls()).To(ContainElement("save"))
		})

		It("saves once even when a stop races the exit", func() {
			Expect(lc.Start(context.Background())).To(Succeed())
			Eventually(lc.Status).Should(Equal(lifecycle.Running))

			runner.instance.crash()
			lc.RequestStop()
			Expect(lc.Wait()).To(Succeed())

			saves := 0
			for _, call := range engine.Calls() {
				if call == "save" {
					saves++
				}
			}
			Expect(saves).To(Equal(1))
		})
	})

	Describe("context cancellation", func() {
		It("is treated as a stop request and still saves", func() {
			ctx, cancel := context.WithCancel(context.Background())

			Expect(lc.Start(ctx)).To(Succeed())
			Eventually(lc.Status).Should(Equal(lifecycle.Running))

			cancel()
			Expect(lc.Wait()).To(Succeed())
			Expect(engine.Calls()).To(ContainElements("save", "clear host"))
		})
	})

	Describe("re-entrancy", func() {
		It("rejects a second start while a cycle runs", func() {
			Expect(lc.Start(context.Background())).To(Succeed())
			Eventually(lc.Status).Should(Equal(lifecycle.Running))

			Expect(lc.Start(context.Background())).To(MatchError(lifecycle.ErrCycleInProgress))
			Expect(lc.Apply(context.Background(), lifecycle.UploadFiles)).To(MatchError(lifecycle.ErrCycleInProgress))

			lc.RequestStop()
			Expect(lc.Wait()).To(Succeed())
			Expect(runner.Launches()).To(Equal(1))
		})

		It("allows a new cycle once the previous one finished", func() {
			Expect(lc.Start(context.Background())).To(Succeed())
			Eventually(lc.Status).Should(Equal(lifecycle.Running))
			lc.RequestStop()
			Expect(lc.Wait()).To(Succeed())

			runner.instance = &fakeInstance{exited: make(chan struct{})}

			Expect(lc.Start(context.Background())).To(Succeed())
			Eventually(lc.Status).Should(Equal(lifecycle.Running))
			lc.RequestStop()
			Expect(lc.Wait()).To(Succeed())
			Expect(runner.Launches()).To(Equal(2))
		})
	})

	Describe("a server hosted elsewhere", func() {
		It("does not start locally", func() {
			engine.host = "198.51.100.20"

			err := lc.Start(context.Background())
			Expect(err).To(MatchError(lifecycle.ErrRemoteHosted))
			Expect(err.Error()).To(ContainSubstring("198.51.100.20"))
			Expect(runner.Launches()).To(BeZero())
			Expect(lc.Status()).To(Equal(lifecycle.Offline))
			Expect(drain(states)).To(Equal([]lifecycle.State{lifecycle.Offline}))
		})
	})

	Describe("failures", func() {
		It("releases the host record when retrieval fails", func() {
			engine.retrieveErr = errors.New("boom")

			Expect(lc.Start(context.Background())).To(Succeed())
			Expect(lc.Wait()).To(MatchError(ContainSubstring("boom")))

			Expect(engine.Calls()).To(Equal([]string{"publish 203.0.113.5", "retrieve", "clear host"}))
			Expect(runner.Launches()).To(BeZero())
			Expect(lc.Status()).To(Equal(lifecycle.Offline))
		})

		It("releases the host record when the server cannot launch", func() {
			runner.launchErr = errors.New("java not found")

			Expect(lc.Start(context.Background())).To(Succeed())
			Expect(lc.Wait()).To(MatchError(ContainSubstring("java not found")))
			Expect(engine.Calls()).To(ContainElement("clear host"))
			Expect(engine.Calls()).ToNot(ContainElement("save"))
		})

		It("clears the busy flag and host record when saving fails", func() {
			engine.saveErr = errors.New("upload failed")

			Expect(lc.Start(context.Background())).To(Succeed())
			Eventually(lc.Status).Should(Equal(lifecycle.Running))
			lc.RequestStop()

			Expect(lc.Wait()).To(MatchError(ContainSubstring("upload failed")))
			Expect(engine.Calls()).To(ContainElements("clear busy", "clear host"))
			Expect(lc.Status()).To(Equal(lifecycle.Offline))
		})

		It("skips the launch when stopped during retrieval", func() {
			engine.retrieveHit = make(chan struct{})
			engine.retrieveGo = make(chan struct{})

			Expect(lc.Start(context.Background())).To(Succeed())
			Eventually(engine.retrieveHit).Should(BeClosed())

			lc.RequestStop()
			close(engine.retrieveGo)

			Expect(lc.Wait()).To(Succeed())
			Expect(runner.Launches()).To(BeZero())
			Expect(engine.Calls()).To(Equal([]string{"publish 203.0.113.5", "retrieve", "clear host"}))
		})
	})

	Describe("remote info", func() {
		It("reports the remote host when someone else is online", func() {
			engine.host = "198.51.100.20"

			info, err := lc.RemoteInfo(context.Background())
			Expect(err).ToNot(HaveOccurred())
			Expect(info).To(Equal(lifecycle.RemoteInfo{Status: lifecycle.StatusRemoteOnline, Host: "198.51.100.20"}))
		})

		It("reports an upload in progress", func() {
			engine.busy = true

			info, err := lc.RemoteInfo(context.Background())
			Expect(err).ToNot(HaveOccurred())
			Expect(info.Status).To(Equal(lifecycle.StatusRemoteUploading))
		})

		It("reports offline when nothing is set", func() {
			info, err := lc.RemoteInfo(context.Background())
			Expect(err).ToNot(HaveOccurred())
			Expect(info.Status).To(Equal(lifecycle.StatusOffline))
		})

		It("prefers the local state while a cycle runs", func() {
			Expect(lc.Start(context.Background())).To(Succeed())
			Eventually(lc.Status).Should(Equal(lifecycle.Running))

			info, err := lc.RemoteInfo(context.Background())
			Expect(err).ToNot(HaveOccurred())
			Expect(info).To(Equal(lifecycle.RemoteInfo{Status: lifecycle.StatusLocallyOnline, Host: "203.0.113.5"}))

			lc.RequestStop()
			Expect(lc.Wait()).To(Succeed())
		})
	})

	Describe("overrides", func() {
		DescribeTable("run their engine action and report a sync state",
			func(kind lifecycle.OverrideKind, call string, reported lifecycle.State) {
				Expect(lc.Apply(context.Background(), kind)).To(Succeed())
				Expect(engine.Calls()).To(Equal([]string{call}))
				Expect(drain(states)).To(Equal([]lifecycle.State{lifecycle.Offline, reported, lifecycle.Offline}))
			},
			Entry("set offline", lifecycle.SetOffline, "clear host", lifecycle.RetrievingFiles),
			Entry("download files", lifecycle.DownloadFiles, "retrieve", lifecycle.RetrievingFiles),
			Entry("upload files", lifecycle.UploadFiles, "save", lifecycle.SavingFiles),
			Entry("clear busy flag", lifecycle.ClearBusyFlag, "clear busy", lifecycle.RetrievingFiles),
		)

		It("offers only the overrides that fit the remote status", func() {
			active := lifecycle.ActiveOverrides(lifecycle.RemoteInfo{Status: lifecycle.StatusOffline})

			kinds := make([]lifecycle.OverrideKind, 0, len(active))
			for _, o := range active {
				kinds = append(kinds, o.Kind)
			}

			Expect(kinds).To(ConsistOf(lifecycle.DownloadFiles, lifecycle.UploadFiles))
			Expect(lifecycle.ActiveOverrides(lifecycle.RemoteInfo{Status: lifecycle.StatusLocallyOnline})).To(BeEmpty())
		})
	})
})

var _ = Describe("Lifecycle with the sync engine", func() {
	It("publishes and clears the host record on the remote", func() {
		fs := filesystem.NewMemoryFileSystem()
		store := remote.New(fs.Dial, remote.WithRetryDelay(0), remote.WithProgressLogInterval(0))
		DeferCleanup(store.Close)

		engine := syncengine.NewEngine(GinkgoT().TempDir(), store, nil)
		runner := newFakeRunner()
		lc := lifecycle.New(engine, runner,
			lifecycle.WithAddressSource(netaddr.Static("203.0.113.5")),
			lifecycle.WithPollInterval(5*time.Millisecond),
		)

		Expect(lc.Start(context.Background())).To(Succeed())
		Eventually(lc.Status).Should(Equal(lifecycle.Running))

		host, ok := fs.Get(syncengine.HostRecordName)
		Expect(ok).To(BeTrue())
		Expect(string(host)).To(Equal("203.0.113.5"))

		lc.RequestStop()
		Expect(lc.Wait()).To(Succeed())

		Expect(fs.ListFiles()).ToNot(ContainElement(syncengine.HostRecordName))

		busy, _ := fs.Get(syncengine.BusyFlagName)
		Expect(string(busy)).To(Equal("false"))
	})
})
