package update

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"golang.org/x/sync/semaphore"

	"github.com/nerrad567/shell-updater/internal/codec"
	"github.com/nerrad567/shell-updater/internal/notify"
	"github.com/nerrad567/shell-updater/internal/release"
	"github.com/nerrad567/shell-updater/internal/shell"
)

// recordTimeout bounds history and telemetry writes after a request.
const recordTimeout = 5 * time.Second

// Registry is the release registry as seen by the Service.
type Registry interface {
	Releases
	Refresh(ctx context.Context) (release.Snapshot, error)
	Disable()
}

// Telemetry receives time-series points. Satisfied by *influxdb.Client.
type Telemetry interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time)
}

// ServiceOptions configures a Service. All fields are optional.
type ServiceOptions struct {
	History   HistoryRepository
	Telemetry Telemetry
	Metrics   *Metrics
	Clock     clock.Clock
	Logger    Logger
}

// Status is a point-in-time view of the Service.
type Status struct {
	DevicePresent bool
	Updating      bool
	Releases      release.Snapshot

	// Comparison is nil until an attached device has been queried. It is
	// always computed against Releases.
	Comparison *codec.Comparison
}

// Service owns the long-lived updater state: whether a device is attached,
// the last queried device versions, and the single in-flight update.
//
// Thread Safety: All methods are safe for concurrent use. At most one
// update runs at a time; further requests fail with ErrUpdateInProgress.
type Service struct {
	orch      *Orchestrator
	registry  Registry
	connector Connector
	sink      notify.Sink
	history   HistoryRepository
	telemetry Telemetry
	metrics   *Metrics
	logger    Logger

	busy     *semaphore.Weighted
	updating atomic.Bool

	mu          sync.RWMutex
	present     bool
	device      *codec.DeviceConfiguration
	cancelQuery context.CancelFunc
	queries     sync.WaitGroup
}

// NewService creates a Service and its Orchestrator.
func NewService(registry Registry, connector Connector, sink notify.Sink, opts ServiceOptions) *Service {
	if sink == nil {
		sink = notify.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Service{
		orch: NewOrchestrator(registry, connector, sink, OrchestratorOptions{
			Clock:  opts.Clock,
			Logger: logger,
		}),
		registry:  registry,
		connector: connector,
		sink:      sink,
		history:   opts.History,
		telemetry: opts.Telemetry,
		metrics:   opts.Metrics,
		logger:    logger,
		busy:      semaphore.NewWeighted(1),
	}
}

// Start performs the initial metadata refresh and announces the result.
// A failed refresh leaves online updates disabled and is returned for
// logging only.
func (s *Service) Start(ctx context.Context) error {
	snap, err := s.registry.Refresh(ctx)
	if err != nil {
		s.emit(notify.MetadataUnavailable, "", nil)
		return err
	}
	s.emit(notify.MetadataAvailable, "", metadataPayload(snap))
	return nil
}

// Run consumes hotplug events until ctx ends or events is closed. Any
// device query still running is cancelled before Run returns.
func (s *Service) Run(ctx context.Context, events <-chan shell.HotplugEvent) error {
	defer s.stopQuery()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case shell.Added:
				s.deviceAdded(ctx)
			case shell.Removed:
				s.deviceRemoved()
			}
		}
	}
}

func (s *Service) deviceAdded(ctx context.Context) {
	s.logger.Info("device attached")
	s.setPresent(true)
	s.stopQuery()

	qctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelQuery = cancel
	s.mu.Unlock()

	s.queries.Add(1)
	go func() {
		defer s.queries.Done()
		defer cancel()

		dev, err := s.queryDevice(qctx)
		if err != nil {
			if qctx.Err() != nil {
				return
			}
			s.reportError("", err)
			dev = notify.DevicePayload{QueryFailed: true}
		}
		s.emit(notify.DeviceAdded, "", dev)
	}()
}

func (s *Service) deviceRemoved() {
	s.logger.Info("device detached")
	s.setPresent(false)
	s.stopQuery()

	s.clearDevice()
	s.emit(notify.DeviceRemoved, "", nil)
}

// stopQuery cancels a running hotplug query and waits for it to exit.
func (s *Service) stopQuery() {
	s.mu.Lock()
	cancel := s.cancelQuery
	s.cancelQuery = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.queries.Wait()
}

// queryDevice runs one connect, query, close cycle and stores the device
// versions. The returned payload compares them with the snapshot that was
// current when they were stored.
func (s *Service) queryDevice(ctx context.Context) (notify.DevicePayload, error) {
	sess, err := s.connector.Connect(ctx)
	if err != nil {
		return notify.DevicePayload{}, err
	}
	defer sess.Close()

	cfg, err := sess.GetConfiguration(ctx)
	if err != nil {
		return notify.DevicePayload{}, err
	}

	s.mu.Lock()
	s.device = &cfg
	cmp := codec.CompareVersions(cfg, s.registry.Current().RemoteVersions())
	s.mu.Unlock()

	s.logger.Info("device queried",
		"firmware_version", cfg.FirmwareVersion.String(),
		"database_version", cfg.DatabaseVersion,
		"firmware_is_latest", cmp.FirmwareIsLatest,
		"database_is_latest", cmp.DatabaseIsLatest,
	)
	return notify.DevicePayload{
		FirmwareVersion:  cfg.FirmwareVersion.String(),
		DatabaseVersion:  cfg.DatabaseVersion,
		FirmwareIsLatest: cmp.FirmwareIsLatest,
		DatabaseIsLatest: cmp.DatabaseIsLatest,
	}, nil
}

// HandleConnectivity reacts to the host going online or offline.
//
// Online refreshes the registry and, when a device is attached, re-queries
// it. The previous device versions are dropped first, so a failed re-query
// leaves no comparison. Offline disables the registry, which makes every
// comparison report latest.
//
// Returns:
//   - error: wraps release.ErrFetchUnavailable when the refresh failed
func (s *Service) HandleConnectivity(ctx context.Context, online bool) error {
	if !online {
		s.logger.Info("host offline, release metadata disabled")
		s.registry.Disable()
		s.emit(notify.MetadataUnavailable, "", nil)
		return nil
	}

	snap, err := s.registry.Refresh(ctx)
	if err != nil {
		s.emit(notify.MetadataUnavailable, "", nil)
		return err
	}

	payload := metadataPayload(snap)
	if s.isPresent() {
		s.clearDevice()
		dev, err := s.queryDevice(ctx)
		if err != nil {
			s.reportError("", err)
		} else {
			payload.Device = &dev
		}
	}
	s.emit(notify.MetadataAvailable, "", payload)
	return nil
}

// UpdateFirmware runs a firmware update. A nil local payload downloads the
// current release; otherwise local is written as given.
func (s *Service) UpdateFirmware(ctx context.Context, local []byte) (Result, error) {
	return s.update(ctx, TargetFirmware, local)
}

// UpdateDatabase runs a database update. A nil local payload downloads the
// current release.
func (s *Service) UpdateDatabase(ctx context.Context, local []byte) (Result, error) {
	return s.update(ctx, TargetDatabase, local)
}

func (s *Service) update(ctx context.Context, target Target, local []byte) (Result, error) {
	if !s.busy.TryAcquire(1) {
		return Result{}, ErrUpdateInProgress
	}
	defer s.busy.Release(1)

	s.updating.Store(true)
	defer s.updating.Store(false)
	if s.metrics != nil {
		s.metrics.SetInFlight(true)
		defer s.metrics.SetInFlight(false)
	}

	req := Request{
		ID:            uuid.NewString(),
		Target:        target,
		Local:         local != nil,
		Payload:       local,
		DevicePresent: s.isPresent(),
	}
	s.logger.Info("update requested", "request_id", req.ID, "target", target, "local", req.Local)

	res := s.orch.Execute(ctx, req)
	if res.Outcome == OutcomeSucceeded {
		// The device versions changed; the next query stores the new ones.
		s.clearDevice()
	}

	s.record(ctx, res)
	return res, nil
}

// record persists res to history, telemetry and metrics. Failures are
// logged only.
func (s *Service) record(ctx context.Context, res Result) {
	if s.metrics != nil {
		s.metrics.ObserveResult(res)
	}

	if s.telemetry != nil {
		tags := map[string]string{
			"target":  string(res.Target),
			"outcome": res.Outcome.String(),
			"local":   strconv.FormatBool(res.Local),
		}
		if res.Outcome == OutcomeFailed {
			tags["failure_kind"] = res.Kind.String()
		}
		s.telemetry.WritePointWithTime("update_results", tags, map[string]interface{}{
			"payload_bytes": res.PayloadSize,
			"transferred":   res.Transferred,
			"duration_ms":   res.Duration().Milliseconds(),
		}, res.FinishedAt)
	}

	if s.history != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()
		if err := s.history.Record(rctx, EntryFromResult(res)); err != nil {
			s.logger.Error("recording update history failed", "request_id", res.RequestID, "error", err)
		}
	}
}

// History returns recent update requests, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if s.history == nil {
		return []HistoryEntry{}, nil
	}
	return s.history.List(ctx, limit)
}

// Status returns the current device, registry and comparison state.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		DevicePresent: s.present,
		Updating:      s.updating.Load(),
		Releases:      s.registry.Current(),
	}
	if s.device != nil {
		cmp := codec.CompareVersions(*s.device, st.Releases.RemoteVersions())
		st.Comparison = &cmp
	}
	return st
}

func (s *Service) clearDevice() {
	s.mu.Lock()
	s.device = nil
	s.mu.Unlock()
}

func (s *Service) setPresent(present bool) {
	s.mu.Lock()
	s.present = present
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SetDevicePresent(present)
	}
}

func (s *Service) isPresent() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.present
}

// reportError publishes a request-level failure.
func (s *Service) reportError(requestID string, err error) {
	kind := Classify(err)
	s.logger.Warn("request failed", "kind", kind.String(), "error", err)
	s.emit(notify.RequestError, requestID, notify.FailedPayload{
		Reason:  kind.String(),
		Message: kind.Message(""),
		Detail:  err.Error(),
	})
}

func (s *Service) emit(name notify.Name, requestID string, payload any) {
	s.sink.Notify(notify.New(name, requestID, payload))
}

func metadataPayload(snap release.Snapshot) notify.MetadataPayload {
	fw, _ := snap.Firmware()
	db, _ := snap.Database()
	return notify.MetadataPayload{
		FirmwareVersion: fw.Version.String(),
		DatabaseVersion: db.Version,
	}
}
