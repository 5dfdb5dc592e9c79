package lifecycle

import (
	"context"
	"fmt"
)

// OverrideKind names a manual repair action.
type OverrideKind int

// Override kinds.
const (
	SetOffline OverrideKind = iota
	DownloadFiles
	UploadFiles
	ClearBusyFlag
)

func (k OverrideKind) String() string {
	if o, ok := overrideByKind(k); ok {
		return o.Label
	}

	return fmt.Sprintf("OverrideKind(%d)", int(k))
}

// Override is a manual action and the remote status in which it makes sense.
type Override struct {
	Kind       OverrideKind
	Label      string
	ActiveWhen RemoteStatus
	// Reports is the state shown while the override runs.
	Reports State
}

// Overrides lists every manual action.
//
//nolint:gochecknoglobals // fixed table
var Overrides = []Override{
	{Kind: SetOffline, Label: "set offline", ActiveWhen: StatusRemoteOnline, Reports: RetrievingFiles},
	{Kind: DownloadFiles, Label: "download files", ActiveWhen: StatusOffline, Reports: RetrievingFiles},
	{Kind: UploadFiles, Label: "upload files", ActiveWhen: StatusOffline, Reports: SavingFiles},
	{Kind: ClearBusyFlag, Label: "clear busy flag", ActiveWhen: StatusRemoteUploading, Reports: RetrievingFiles},
}

// Active reports whether the override applies to info.
func (o Override) Active(info RemoteInfo) bool {
	return o.ActiveWhen == info.Status
}

// ActiveOverrides returns the overrides that apply to info.
func ActiveOverrides(info RemoteInfo) []Override {
	var active []Override

	for _, o := range Overrides {
		if o.Active(info) {
			active = append(active, o)
		}
	}

	return active
}

func overrideByKind(kind OverrideKind) (Override, bool) {
	for _, o := range Overrides {
		if o.Kind == kind {
			return o, true
		}
	}

	return Override{}, false
}

// Apply runs one override to completion. Like Start, it is rejected with
// ErrCycleInProgress unless the lifecycle is Offline.
func (l *Lifecycle) Apply(ctx context.Context, kind OverrideKind) error {
	override, ok := overrideByKind(kind)
	if !ok {
		return fmt.Errorf("unknown override %d", int(kind))
	}

	c, err := l.claim()
	if err != nil {
		l.logger.Warn("ignoring override", "override", override.Label, "err", err)

		return err
	}

	l.logger.Info("running override", "override", override.Label)
	l.setState(override.Reports)

	switch kind {
	case SetOffline:
		err = l.engine.ClearHost()
	case DownloadFiles:
		_, err = l.engine.RetrieveFiles(ctx)
	case UploadFiles:
		_, err = l.engine.SaveFiles(context.WithoutCancel(ctx))
	case ClearBusyFlag:
		err = l.engine.ClearBusyFlag()
	}

	if err != nil {
		err = fmt.Errorf("%s: %w", override.Label, err)
	}

	l.release(c, err)

	return err
}
