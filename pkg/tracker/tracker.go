package tracker

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/dynres"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/liveness"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/registry"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// Options wires a Service. Config, Runtime, DynamicResources, Events,
// and the two key ports are required. Delegated and Queuing are optional
// and stay nil unless set; every other port defaults to an in-process
// implementation so the binary runs standalone.
type Options struct {
	Config           config.Config
	Runtime          *config.Runtime
	DynamicResources *dynres.Table
	Events           events.Sink

	ContainerKeys ContainerTokenKeys
	NMKeys        NMTokenKeys

	Labels     NodeLabelManager
	Delegated  DelegatedLabelsUpdater
	Attributes NodeAttributesManager
	Rack       RackResolver
	Hosts      HostResolver
	NodesList  NodesList
	Apps       ApplicationIndex
	Queuing    QueuingLimitCalculator

	// Version is this server's own version, used for the EqualToRM floor
	// and echoed to agents.
	Version string
}

// Service is the node tracker: the server-side owner of worker-node
// membership. Every surviving node contacts it on a fixed cadence;
// handlers read hot configuration under a read guard, mutate the
// registry under per-record locks, and fan observations out to the
// event bus.
type Service struct {
	logger zerolog.Logger

	cfg      *config.Runtime
	registry *registry.Registry
	liveness *liveness.Monitor
	dynamic  *dynres.Table
	events   events.Sink

	containerKeys ContainerTokenKeys
	nmKeys        NMTokenKeys
	labels        NodeLabelManager
	delegated     DelegatedLabelsUpdater
	attrs         NodeAttributesManager
	rack          RackResolver
	hosts         HostResolver
	nodesList     NodesList
	apps          ApplicationIndex
	queuing       QueuingLimitCalculator

	credentials *SystemCredentials
	collectors  *collectorRegistry
	decom       *DecommissionWatcher

	labelMode      string
	timelineV2     bool
	workPreserving bool

	// clusterEpoch is the rmIdentifier: a timestamp fixed at service
	// construction that agents use to detect server restarts. Read
	// concurrently without synchronization.
	clusterEpoch     int64
	version          string
	collectorVersion atomic.Int64
}

// runtimeNodesList answers admission-list membership from the runtime
// configuration.
type runtimeNodesList struct {
	cfg *config.Runtime
}

func (l runtimeNodesList) IsValid(host string) bool {
	return l.cfg.HostValid(host)
}

func (l runtimeNodesList) IsGracefullyDecommissionable(rec *registry.NodeRecord) bool {
	rec.Lock()
	defer rec.Unlock()
	return rec.State == types.NodeStateDecommissioning
}

// New creates the tracker service and its liveness monitor. Call Start
// to begin expiry scanning.
func New(opts Options) *Service {
	s := &Service{
		logger:         log.WithComponent("tracker"),
		cfg:            opts.Runtime,
		registry:       registry.New(),
		dynamic:        opts.DynamicResources,
		events:         opts.Events,
		containerKeys:  opts.ContainerKeys,
		nmKeys:         opts.NMKeys,
		labels:         opts.Labels,
		delegated:      opts.Delegated,
		attrs:          opts.Attributes,
		rack:           opts.Rack,
		hosts:          opts.Hosts,
		nodesList:      opts.NodesList,
		apps:           opts.Apps,
		queuing:        opts.Queuing,
		credentials:    NewSystemCredentials(),
		collectors:     newCollectorRegistry(),
		decom:          NewDecommissionWatcher(opts.Config.Decommission.WaitForApps),
		labelMode:      opts.Config.LabelMode,
		timelineV2:     opts.Config.TimelineV2Enabled,
		workPreserving: opts.Config.WorkPreservingRecovery,
		clusterEpoch:   time.Now().UnixMilli(),
		version:        opts.Version,
	}

	if s.labels == nil {
		s.labels = NewMemoryLabelManager()
	}
	if s.attrs == nil {
		s.attrs = NewMemoryAttributeManager()
	}
	if s.rack == nil {
		s.rack = StaticRackResolver{}
	}
	if s.hosts == nil {
		s.hosts = DNSHostResolver{}
	}
	if s.nodesList == nil {
		s.nodesList = runtimeNodesList{cfg: s.cfg}
	}
	if s.apps == nil {
		s.apps = NewMemoryApplicationIndex()
	}

	s.liveness = liveness.NewMonitor(
		opts.Config.NodeExpiry.Std(),
		opts.Config.ExpiryScanInterval.Std(),
		s.expireNode,
		log.WithComponent("liveness"),
	)

	return s
}

// Start begins background liveness scanning.
func (s *Service) Start() {
	s.liveness.Start()
}

// Stop halts background work. In-flight handlers run to completion.
func (s *Service) Stop() {
	s.liveness.Stop()
}

// Registry exposes the membership map for read-only consumers.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// Liveness exposes the liveness monitor.
func (s *Service) Liveness() *liveness.Monitor {
	return s.liveness
}

// Credentials exposes the per-app system credentials set.
func (s *Service) Credentials() *SystemCredentials {
	return s.credentials
}

// ClusterEpoch returns the rmIdentifier of this server incarnation.
func (s *Service) ClusterEpoch() int64 {
	return s.clusterEpoch
}

// Version returns this server's version string.
func (s *Service) Version() string {
	return s.version
}

func (s *Service) publish(e *events.Event) {
	metrics.EventsPublishedTotal.WithLabelValues(string(e.Kind)).Inc()
	s.events.Handle(e)
}

// Register admits a node agent into the cluster. peerAddr is the
// transport-reported remote address, or "" when unknown.
func (s *Service) Register(req *types.RegisterRequest, peerAddr string) (*types.RegisterResponse, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RegisterDuration)

	resp := &types.RegisterResponse{
		RMIdentifier: s.clusterEpoch,
		RMVersion:    s.version,
	}

	if diag := s.admit(req, peerAddr); diag != "" {
		s.logger.Warn().
			Str("node", req.NodeID.String()).
			Str("diagnostics", diag).
			Msg("Rejected node registration")
		metrics.RegistrationsTotal.WithLabelValues("rejected").Inc()
		resp.Action = types.ActionShutdown
		resp.Diagnostics = diag
		return resp, nil
	}

	// Dynamic resource override replaces the declared capability and is
	// echoed back; the minimum-allocation floor applies to the override.
	capability := req.Capability
	if override, ok := s.dynamic.Lookup(req.NodeID); ok {
		capability = override
		resp.Resource = &override
	}
	adm := s.cfg.Admission()
	if diag := checkMinimumAllocation(adm.MinAllocMemoryMiB, adm.MinAllocVCores, capability); diag != "" {
		metrics.RegistrationsTotal.WithLabelValues("rejected").Inc()
		resp.Action = types.ActionShutdown
		resp.Diagnostics = diag
		return resp, nil
	}

	resp.ContainerTokenMasterKey = s.containerKeys.CurrentKey()
	resp.NMTokenMasterKey = s.nmKeys.CurrentKey()

	rec := registry.NewNodeRecord(
		req.NodeID,
		req.HTTPPort,
		s.rack.Resolve(req.NodeID.Host),
		req.NMVersion,
		capability,
		req.PhysicalCapability,
		req.RunningApplications,
	)
	rec.CapabilityOverridden = resp.Resource != nil
	rec.LastResponse = &types.HeartbeatResponse{
		ResponseID:            0,
		Action:                types.ActionNormal,
		NextHeartbeatInterval: s.cfg.Pacing().DefaultInterval.Std(),
		TokenSequenceNo:       s.credentials.Sequence(),
	}

	existing, inserted := s.registry.PutIfAbsent(rec)
	if inserted {
		metrics.IncNodeState(rec.State)
		metrics.RegistrationsTotal.WithLabelValues("accepted").Inc()
		s.publish(&events.Event{
			Kind:           events.KindNodeStarted,
			NodeID:         req.NodeID,
			State:          rec.State,
			Capability:     capability,
			Containers:     req.ContainerStatuses,
			RunningApps:    req.RunningApplications,
			Status:         req.NodeStatus,
			LogAggregation: req.LogAggregationReports,
		})
		s.logger.Info().
			Str("node", req.NodeID.String()).
			Str("version", req.NMVersion).
			Int64("memory_mib", capability.MemoryMiB).
			Int("vcores", capability.VCores).
			Msg("Registered node")
	} else {
		s.reconnect(req, rec, existing, capability)
	}

	// Stale nm-token key material for this node must not outlive the old
	// incarnation.
	s.nmKeys.RemoveNodeKey(req.NodeID)
	s.liveness.Register(req.NodeID)

	if !s.workPreserving {
		s.synthesizeFinishedMasters(req.ContainerStatuses)
	}

	labelsOK, attrsOK, diag := s.propagateNodeState(req.NodeID, req.NodeLabels, req.NodeAttributes)
	resp.NodeLabelsAccepted = labelsOK
	resp.NodeAttributesAccepted = attrsOK
	if diag != "" {
		resp.Diagnostics = diag
	}

	resp.Action = types.ActionNormal
	return resp, nil
}

// reconnect handles registration of a node already in the registry:
// either replace the entry outright or reconnect in place.
func (s *Service) reconnect(req *types.RegisterRequest, rec, existing *registry.NodeRecord, capability types.Resource) {
	s.liveness.Unregister(req.NodeID)

	existing.Lock()
	oldState := existing.State
	oldHTTPPort := existing.HTTPPort

	switch {
	case oldState.Terminal():
		// A terminal record leaves the registry before the fresh insert.
		existing.Unlock()
		s.registry.Replace(rec)
		s.decom.Forget(req.NodeID)
		metrics.TransitionNodeState(oldState, rec.State)
		metrics.RegistrationsTotal.WithLabelValues("accepted").Inc()
		s.publish(&events.Event{
			Kind:           events.KindNodeStarted,
			NodeID:         req.NodeID,
			State:          rec.State,
			Capability:     capability,
			Containers:     req.ContainerStatuses,
			RunningApps:    req.RunningApplications,
			Status:         req.NodeStatus,
			LogAggregation: req.LogAggregationReports,
		})

	case len(req.RunningApplications) == 0 && oldState != types.NodeStateDecommissioning && req.HTTPPort != oldHTTPPort:
		// Nothing worth preserving and the agent moved its web endpoint:
		// retire the old incarnation and start over.
		oldCapability := existing.TotalCapability
		existing.Unlock()
		s.registry.Replace(rec)
		metrics.TransitionNodeState(oldState, rec.State)
		metrics.RegistrationsTotal.WithLabelValues("replace").Inc()
		s.publish(&events.Event{
			Kind:       events.KindNodeRemoved,
			NodeID:     req.NodeID,
			State:      oldState,
			Capability: oldCapability,
		})
		s.publish(&events.Event{
			Kind:       events.KindNodeStarted,
			NodeID:     req.NodeID,
			State:      rec.State,
			Capability: capability,
			Status:     req.NodeStatus,
		})
		s.logger.Info().
			Str("node", req.NodeID.String()).
			Int("http_port", req.HTTPPort).
			Msg("Replaced reconnecting node")

	default:
		// Reconnect in place: keep the record, restart its heartbeat
		// counter, and absorb the agent's new view.
		existing.LastResponseID = 0
		existing.LastResponse = rec.LastResponse
		if !existing.TotalCapability.Equal(capability) {
			existing.TotalCapability = capability
			existing.UpdatedCapabilityPending = true
		}
		existing.CapabilityOverridden = rec.CapabilityOverridden
		existing.PhysicalCapability = req.PhysicalCapability
		existing.NMVersion = req.NMVersion
		existing.HTTPPort = req.HTTPPort
		existing.RunningApps = rec.RunningApps
		existing.LastPingAt = time.Now()
		existing.Unlock()
		metrics.RegistrationsTotal.WithLabelValues("reconnect").Inc()
		s.publish(&events.Event{
			Kind:        events.KindNodeReconnect,
			NodeID:      req.NodeID,
			State:       oldState,
			Capability:  capability,
			RunningApps: req.RunningApplications,
			Containers:  req.ContainerStatuses,
		})
		s.logger.Info().Str("node", req.NodeID.String()).Msg("Node reconnected")
	}
}

// synthesizeFinishedMasters emits ContainerFinished for every reported
// completed container that is an application-master container. Only runs
// when work-preserving recovery is disabled; with it enabled the
// recovered attempt keeps running.
func (s *Service) synthesizeFinishedMasters(statuses []types.ContainerStatus) {
	for i := range statuses {
		c := statuses[i]
		if c.State != types.ContainerStateComplete {
			continue
		}
		master, ok := s.apps.MasterContainer(c.AppAttemptID)
		if !ok || master != c.ContainerID {
			continue
		}
		s.publish(&events.Event{
			Kind:         events.KindContainerFinished,
			AppAttemptID: c.AppAttemptID,
			Container:    &c,
		})
	}
}

func (s *Service) propagateNodeState(id types.NodeID, labels *[]string, attrs []types.NodeAttribute) (labelsOK, attrsOK bool, diag string) {
	var merr *multierror.Error

	labelsOK, err := s.propagateLabels(id, labels)
	if err != nil {
		merr = multierror.Append(merr, err)
	}
	attrsOK, err = s.propagateAttributes(id.Host, attrs)
	if err != nil {
		merr = multierror.Append(merr, err)
	}

	if merr != nil {
		diag = merr.Error()
	}
	return labelsOK, attrsOK, diag
}

// Heartbeat processes one node heartbeat. The sequence is semantic: see
// the response-id arbitration and the decommission drain check in
// particular.
func (s *Service) Heartbeat(req *types.HeartbeatRequest, peerAddr string) (*types.HeartbeatResponse, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.HeartbeatDuration)

	status := req.NodeStatus
	id := status.NodeID

	// 1. Admission re-check: a host dropped from the admission lists is
	// told to shut down unless it is draining.
	if !s.nodesList.IsValid(id.Host) && !s.isDecommissioningNode(id) {
		metrics.HeartbeatsTotal.WithLabelValues("shutdown").Inc()
		return &types.HeartbeatResponse{
			ResponseID:      status.ResponseID,
			Action:          types.ActionShutdown,
			Diagnostics:     fmt.Sprintf("disallowed node manager from %s (sending shutdown signal)", id.Host),
			TokenSequenceNo: s.credentials.Sequence(),
		}, nil
	}

	// 2. Membership: unknown nodes must resync and re-register.
	rec := s.registry.Get(id)
	if rec == nil {
		metrics.HeartbeatsTotal.WithLabelValues("resync").Inc()
		return &types.HeartbeatResponse{
			ResponseID:      status.ResponseID,
			Action:          types.ActionResync,
			Diagnostics:     fmt.Sprintf("node %s not registered (sending resync signal)", id),
			TokenSequenceNo: s.credentials.Sequence(),
		}, nil
	}

	// 3. Liveness ping; duplicates and out-of-sync beats still count as
	// signs of life.
	s.liveness.ReceivedPing(id)

	rec.Lock()
	defer rec.Unlock()

	rec.LastPingAt = time.Now()
	rec.QueuedContainerUpdates = status.QueuedContainerUpdates
	s.decom.Update(rec, status)

	// 4. Response-id arbitration against the cached last response.
	lastID := rec.LastResponseID
	if registry.NextResponseID(status.ResponseID) == lastID {
		// Retransmit of the previous beat: replay the cached response
		// verbatim and publish nothing.
		metrics.HeartbeatsTotal.WithLabelValues("duplicate").Inc()
		return rec.LastResponse, nil
	}
	if status.ResponseID != lastID {
		// Too far behind: flag a reboot and force a resync. Possibly too
		// blunt for a single dropped response; pinned by contract for now.
		metrics.HeartbeatsTotal.WithLabelValues("resync").Inc()
		s.publish(&events.Event{
			Kind:       events.KindNodeLifecycle,
			NodeID:     id,
			Transition: events.TransitionRebooting,
		})
		return &types.HeartbeatResponse{
			ResponseID: status.ResponseID,
			Action:     types.ActionResync,
			Diagnostics: fmt.Sprintf(
				"node %s is out of sync with the resource manager: rm response id %d, nm response id %d (sending resync signal)",
				id, lastID, status.ResponseID),
			TokenSequenceNo: s.credentials.Sequence(),
		}, nil
	}

	// 5. A drained decommissioning node gets its clean-exit shutdown.
	if rec.State == types.NodeStateDecommissioning && s.decom.ReadyToBeDecommissioned(id) {
		rec.State = types.NodeStateDecommissioned
		s.registry.Delete(id)
		s.decom.Forget(id)
		s.liveness.Unregister(id)
		metrics.TransitionNodeState(types.NodeStateDecommissioning, types.NodeStateDecommissioned)
		metrics.HeartbeatsTotal.WithLabelValues("shutdown").Inc()
		s.publish(&events.Event{
			Kind:       events.KindNodeLifecycle,
			NodeID:     id,
			Transition: events.TransitionDecommission,
		})
		s.logger.Info().Str("node", id.String()).Msg("Decommissioned drained node")
		return &types.HeartbeatResponse{
			ResponseID:      registry.NextResponseID(lastID),
			Action:          types.ActionShutdown,
			TokenSequenceNo: s.credentials.Sequence(),
		}, nil
	}

	s.applyHealth(rec, status)

	// 6. Timeline collector registrations.
	if s.timelineV2 && len(req.RegisteringCollectors) > 0 {
		s.updateAppCollectors(req.RegisteringCollectors)
	}

	// 7. Baseline response; cached on the record for duplicate replay.
	resp := &types.HeartbeatResponse{
		ResponseID:            registry.NextResponseID(lastID),
		Action:                types.ActionNormal,
		NextHeartbeatInterval: NextHeartbeatInterval(s.cfg.Pacing(), status.QueuedContainerUpdates),
		TokenSequenceNo:       s.credentials.Sequence(),
	}
	rec.LastResponse = resp
	rec.LastResponseID = resp.ResponseID

	// 8. Key rotation: ship staged keys the agent has not seen yet.
	if next := s.containerKeys.NextKey(); next != nil && next.KeyID != req.LastKnownContainerTokenKeyID {
		resp.ContainerTokenMasterKey = next
	}
	if next := s.nmKeys.NextKey(); next != nil && next.KeyID != req.LastKnownNMTokenKeyID {
		resp.NMTokenMasterKey = next
	}

	// 9. Per-app credentials ride along when the agent's sequence lags.
	if req.TokenSequenceNo != resp.TokenSequenceNo && s.credentials.Available() {
		resp.SystemCredentials = s.credentials.Snapshot()
	}

	// 10. Fan the remote status out to the event bus.
	s.publish(&events.Event{
		Kind:           events.KindNodeStatusUpdate,
		NodeID:         id,
		Status:         &status,
		LogAggregation: req.LogAggregationReports,
	})

	// 11. Labels and attributes; failures downgrade to diagnostics.
	labelsOK, attrsOK, diag := s.propagateNodeState(id, req.NodeLabels, req.NodeAttributes)
	resp.NodeLabelsAccepted = labelsOK
	resp.NodeAttributesAccepted = attrsOK
	resp.Diagnostics = diag

	// 12. Capability sync: dynamic override wins; otherwise flush a
	// pending capability update once.
	if override, ok := s.dynamic.Lookup(id); ok {
		resp.Resource = &override
		if !rec.TotalCapability.Equal(override) {
			rec.TotalCapability = override
			rec.CapabilityOverridden = true
		}
	} else if rec.UpdatedCapabilityPending {
		capability := rec.TotalCapability
		resp.Resource = &capability
		rec.UpdatedCapabilityPending = false
	}

	// 13. Container queuing limits, when a calculator is installed.
	if s.queuing != nil {
		limit := s.queuing.Limit()
		resp.ContainerQueuingLimit = &limit
	}

	if s.timelineV2 {
		resp.AppCollectors = s.collectorsForApps(rec.RunningApps.Slice())
	}

	metrics.HeartbeatsTotal.WithLabelValues("normal").Inc()
	return resp, nil
}

// applyHealth moves the record between RUNNING and UNHEALTHY from the
// agent's own health verdict. Caller holds the record lock.
func (s *Service) applyHealth(rec *registry.NodeRecord, status types.NodeStatus) {
	switch {
	case rec.State == types.NodeStateNew && status.Health.Healthy:
		metrics.TransitionNodeState(rec.State, types.NodeStateRunning)
		rec.State = types.NodeStateRunning
	case rec.State == types.NodeStateRunning && !status.Health.Healthy:
		metrics.TransitionNodeState(rec.State, types.NodeStateUnhealthy)
		rec.State = types.NodeStateUnhealthy
		s.logger.Warn().
			Str("node", rec.ID.String()).
			Str("report", status.Health.Report).
			Msg("Node reported unhealthy")
	case rec.State == types.NodeStateUnhealthy && status.Health.Healthy:
		metrics.TransitionNodeState(rec.State, types.NodeStateRunning)
		rec.State = types.NodeStateRunning
	}
}

// Unregister handles clean agent shutdown. Unknown nodes succeed; the
// verb is idempotent.
func (s *Service) Unregister(req *types.UnregisterRequest) (*types.UnregisterResponse, error) {
	id := req.NodeID
	rec := s.registry.Get(id)
	if rec == nil {
		return &types.UnregisterResponse{}, nil
	}

	s.liveness.Unregister(id)

	rec.Lock()
	oldState := rec.State
	rec.State = types.NodeStateShutdown
	rec.Unlock()

	s.registry.Delete(id)
	s.decom.Forget(id)
	metrics.TransitionNodeState(oldState, types.NodeStateShutdown)
	metrics.UnregistrationsTotal.Inc()

	s.publish(&events.Event{
		Kind:       events.KindNodeLifecycle,
		NodeID:     id,
		Transition: events.TransitionShutdown,
	})
	s.logger.Info().Str("node", id.String()).Msg("Unregistered node")
	return &types.UnregisterResponse{}, nil
}

// expireNode is the liveness monitor's callback for nodes past their
// deadline.
func (s *Service) expireNode(id types.NodeID) {
	rec := s.registry.Get(id)
	if rec == nil {
		return
	}

	rec.Lock()
	oldState := rec.State
	rec.State = types.NodeStateLost
	rec.Unlock()

	s.registry.Delete(id)
	s.decom.Forget(id)
	metrics.TransitionNodeState(oldState, types.NodeStateLost)
	metrics.NodesExpiredTotal.Inc()

	s.publish(&events.Event{
		Kind:       events.KindNodeLifecycle,
		NodeID:     id,
		Transition: events.TransitionExpire,
	})
}

// DecommissionNode marks a node as draining. The decision is made
// elsewhere (operator or cluster policy); the tracker only executes it.
func (s *Service) DecommissionNode(id types.NodeID) error {
	rec := s.registry.Get(id)
	if rec == nil {
		return fmt.Errorf("node %s not registered", id)
	}

	rec.Lock()
	defer rec.Unlock()
	if rec.State == types.NodeStateDecommissioning {
		return nil
	}
	if rec.State.Terminal() {
		return fmt.Errorf("node %s is already %s", id, rec.State)
	}
	metrics.TransitionNodeState(rec.State, types.NodeStateDecommissioning)
	rec.State = types.NodeStateDecommissioning
	s.logger.Info().Str("node", id.String()).Msg("Node draining for decommission")
	return nil
}
