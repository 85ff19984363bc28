package update

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/nerrad567/shell-updater/internal/codec"
	"github.com/nerrad567/shell-updater/internal/notify"
	"github.com/nerrad567/shell-updater/internal/release"
	"github.com/nerrad567/shell-updater/internal/shell"
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Releases is the release registry as seen by the orchestrator.
type Releases interface {
	Current() release.Snapshot
	Download(ctx context.Context, path string) ([]byte, error)
	VerifyFirmware(payload []byte, fw release.FirmwareRelease) error
}

// Connector hands out exclusive device sessions.
type Connector interface {
	Connect(ctx context.Context) (*shell.Session, error)
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	Clock  clock.Clock
	Logger Logger
}

// Orchestrator runs update requests through the state machine
// SourcingPayload, Connecting, Checking, Updating, Terminal.
//
// It holds no per-request state; each Execute call owns its payload,
// session and progress tracker.
type Orchestrator struct {
	releases  Releases
	connector Connector
	sink      notify.Sink
	clock     clock.Clock
	logger    Logger
}

// NewOrchestrator creates an Orchestrator. A nil sink discards events.
func NewOrchestrator(releases Releases, connector Connector, sink notify.Sink, opts OrchestratorOptions) *Orchestrator {
	o := &Orchestrator{
		releases:  releases,
		connector: connector,
		sink:      sink,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}
	if o.sink == nil {
		o.sink = notify.Discard
	}
	if o.clock == nil {
		o.clock = clock.WallClock
	}
	if o.logger == nil {
		o.logger = noopLogger{}
	}
	return o
}

// expected holds the versions a payload is checked and verified against.
type expected struct {
	firmware codec.SemanticVersion
	database uint32
	version  string
}

// execution is the state of one request.
type execution struct {
	o   *Orchestrator
	req Request
	res Result
}

// Execute runs req to a terminal state, or to OutcomePending when no device
// is present. Failures are reported in the Result and as transfer-failed
// events; Execute does not return errors or panic.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (res Result) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	x := &execution{
		o:   o,
		req: req,
		res: Result{
			RequestID: req.ID,
			Target:    req.Target,
			Local:     req.Local,
			State:     StateIdle,
			StartedAt: o.clock.Now(),
		},
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("update panic recovered", "request_id", req.ID, "panic", r)
			x.fail(Unclassified, "execute", fmt.Errorf("panic: %v", r))
		}
		x.res.FinishedAt = o.clock.Now()
		res = x.res
	}()

	if !req.Target.Valid() {
		x.fail(Unclassified, "execute", fmt.Errorf("unknown target %q", req.Target))
		return x.res
	}

	x.run(ctx)
	return x.res
}

func (x *execution) run(ctx context.Context) {
	payload, want, ok := x.source(ctx)
	if !ok {
		return
	}

	if !x.req.DevicePresent {
		x.res.Outcome = OutcomePending
		x.o.logger.Info("no device present, update pending",
			"request_id", x.req.ID, "target", x.req.Target, "bytes", len(payload))
		return
	}

	x.setState(StateConnecting)
	sess, err := x.o.connector.Connect(ctx)
	if err != nil {
		x.fail(Classify(err), "connect", err)
		return
	}
	defer func() {
		if err := sess.Close(); err != nil {
			x.o.logger.Warn("closing device session failed", "request_id", x.req.ID, "error", err)
		}
	}()

	cfg, err := sess.GetConfiguration(ctx)
	if err != nil {
		x.fail(Classify(err), "get configuration", err)
		return
	}
	if x.req.Target == TargetFirmware {
		x.res.DeviceVersion = cfg.FirmwareVersion.String()
	} else {
		x.res.DeviceVersion = strconv.FormatUint(uint64(cfg.DatabaseVersion), 10)
	}

	x.setState(StateChecking)
	if !x.req.Local && x.isLatest(cfg, want) {
		x.emit(notify.AlreadyLatest, notify.TargetPayload{Target: string(x.req.Target)})
		x.res.SkipReason = SkipAlreadyLatest
		x.finish(OutcomeSkipped)
		return
	}

	x.setState(StateUpdating)
	x.emit(notify.TransferStarted, notify.TargetPayload{Target: string(x.req.Target)})

	tracker := NewProgressTracker(len(payload))
	onChunk := func(n int) {
		tracker.OnChunk(n)
		x.emit(notify.ChunkProgress, notify.ProgressPayload{
			Target: string(x.req.Target),
			Bytes:  tracker.Value(),
			Total:  tracker.Total(),
		})
	}

	if x.req.Target == TargetFirmware {
		err = sess.LoadFirmware(ctx, payload, onChunk)
	} else {
		err = sess.LoadDatabase(ctx, payload, onChunk)
	}
	x.res.Transferred = tracker.Value()
	if err != nil {
		x.fail(classifyTransfer(err), "transfer", err)
		return
	}

	if x.req.Target == TargetFirmware {
		x.emit(notify.TransferSucceeded, notify.SucceededPayload{Target: string(x.req.Target)})
		x.finish(OutcomeSucceeded)
		return
	}

	after, err := sess.GetConfiguration(ctx)
	if err != nil {
		x.fail(classifyTransfer(err), "verify", err)
		return
	}
	verified := after.DatabaseVersion == want.database
	if !verified {
		x.o.logger.Warn("database version differs after update",
			"request_id", x.req.ID, "device", after.DatabaseVersion, "expected", want.database)
	}
	x.res.Verified = &verified
	x.emit(notify.TransferSucceeded, notify.SucceededPayload{Target: string(x.req.Target), Verified: &verified})
	x.finish(OutcomeSucceeded)
}

// source obtains the payload and the versions it is compared against. It
// emits payload-sourcing-started and, on success, transfer-size.
func (x *execution) source(ctx context.Context) ([]byte, expected, bool) {
	x.setState(StateSourcingPayload)

	var (
		payload []byte
		want    expected
		ok      bool
	)
	switch {
	case x.req.Target == TargetFirmware && x.req.Local:
		payload, want, ok = x.sourceLocalFirmware()
	case x.req.Target == TargetFirmware:
		payload, want, ok = x.sourceRemoteFirmware(ctx)
	case x.req.Local:
		payload, want, ok = x.sourceLocalDatabase()
	default:
		payload, want, ok = x.sourceRemoteDatabase(ctx)
	}
	if !ok {
		return nil, expected{}, false
	}

	x.res.PayloadSize = len(payload)
	x.emit(notify.TransferSize, notify.SizePayload{Bytes: len(payload)})
	return payload, want, true
}

func (x *execution) sourceLocalFirmware() ([]byte, expected, bool) {
	payload := x.req.Payload
	v, err := codec.ParseFirmwareVersion(payload)
	if err != nil {
		x.sourcingStarted("")
		x.fail(InvalidFirmwareFile, "read firmware", err)
		return nil, expected{}, false
	}
	x.sourcingStarted(v.String())
	return payload, expected{firmware: v, version: v.String()}, true
}

func (x *execution) sourceRemoteFirmware(ctx context.Context) ([]byte, expected, bool) {
	fw, ok := x.o.releases.Current().Firmware()
	if !ok {
		x.fail(FetchUnavailable, "source firmware", release.ErrDisabled)
		return nil, expected{}, false
	}
	x.sourcingStarted(fw.Version.String())

	payload, err := x.o.releases.Download(ctx, fw.DownloadPath)
	if err != nil {
		x.fail(Classify(err), "download firmware", err)
		return nil, expected{}, false
	}
	if err := x.o.releases.VerifyFirmware(payload, fw); err != nil {
		x.fail(InvalidFirmwareFile, "verify firmware", err)
		return nil, expected{}, false
	}
	if _, err := codec.ParseFirmwareVersion(payload); err != nil {
		x.fail(InvalidFirmwareFile, "read firmware", err)
		return nil, expected{}, false
	}
	return payload, expected{firmware: fw.Version, version: fw.Version.String()}, true
}

func (x *execution) sourceLocalDatabase() ([]byte, expected, bool) {
	payload := x.req.Payload
	header := codec.ParseDatabaseHeader(payload)
	x.sourcingStarted(header.VersionString())
	if !header.Valid {
		x.fail(InvalidDatabaseFile, "read database", nil)
		return nil, expected{}, false
	}
	return payload, expected{database: header.Version, version: header.VersionString()}, true
}

func (x *execution) sourceRemoteDatabase(ctx context.Context) ([]byte, expected, bool) {
	db, ok := x.o.releases.Current().Database()
	if !ok {
		x.fail(FetchUnavailable, "source database", release.ErrDisabled)
		return nil, expected{}, false
	}
	version := strconv.FormatUint(uint64(db.Version), 10)
	x.sourcingStarted(version)

	payload, err := x.o.releases.Download(ctx, db.DownloadPath)
	if err != nil {
		x.fail(Classify(err), "download database", err)
		return nil, expected{}, false
	}
	if !codec.ParseDatabaseHeader(payload).Valid {
		x.fail(InvalidDatabaseFile, "read database", nil)
		return nil, expected{}, false
	}
	return payload, expected{database: db.Version, version: version}, true
}

// isLatest compares the device against the release's declared version.
func (x *execution) isLatest(cfg codec.DeviceConfiguration, want expected) bool {
	if x.req.Target == TargetFirmware {
		return cfg.FirmwareVersion.AtLeast(want.firmware)
	}
	return cfg.DatabaseVersion >= want.database
}

func (x *execution) sourcingStarted(version string) {
	x.res.PayloadVersion = version
	x.emit(notify.PayloadSourcingStarted, notify.SourcingPayload{
		Target:          string(x.req.Target),
		Version:         version,
		Local:           x.req.Local,
		DeviceConnected: x.req.DevicePresent,
	})
}

func (x *execution) setState(s State) {
	x.o.logger.Debug("update state", "request_id", x.req.ID, "target", x.req.Target, "state", s.String())
	x.res.State = s
}

func (x *execution) finish(outcome Outcome) {
	x.res.Outcome = outcome
	x.res.State = StateTerminal
	x.o.logger.Info("update finished",
		"request_id", x.req.ID,
		"target", x.req.Target,
		"local", x.req.Local,
		"outcome", outcome.String(),
	)
}

func (x *execution) fail(kind ErrorKind, op string, err error) {
	e := newError(kind, op, err)
	x.res.Kind = kind
	x.res.Err = e
	x.res.Outcome = OutcomeFailed
	x.res.State = StateTerminal

	x.o.logger.Warn("update failed",
		"request_id", x.req.ID,
		"target", x.req.Target,
		"kind", kind.String(),
		"error", err,
	)

	detail := ""
	if err != nil {
		detail = err.Error()
	}
	x.emit(notify.TransferFailed, notify.FailedPayload{
		Target:  string(x.req.Target),
		Reason:  kind.String(),
		Message: kind.Message(x.req.Target),
		Detail:  detail,
	})
}

func (x *execution) emit(name notify.Name, payload any) {
	ev := notify.New(name, x.req.ID, payload)
	ev.Timestamp = x.o.clock.Now().UTC()
	x.o.sink.Notify(ev)
}
