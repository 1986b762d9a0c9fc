package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/flowvault-go/internal/domain/flow"
	"github.com/flowvault-go/internal/flow/ports"
	"github.com/flowvault-go/pkg/events"
	"github.com/flowvault-go/pkg/logger"
	"github.com/flowvault-go/pkg/metrics"
	"github.com/flowvault-go/pkg/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const tracerName = "flowvault/lifecycle"

// Manager owns the draft/published state machine of flow definitions.
type Manager struct {
	repo     ports.FlowRepository
	execLogs ports.ExecutionLogRepository
	compiler ports.ExpressionCompiler
	registry ports.ChainRegistry
	eventBus events.EventBus
	validate *validator.Validate
	logger   logger.Logger
}

func NewManager(
	repo ports.FlowRepository,
	execLogs ports.ExecutionLogRepository,
	compiler ports.ExpressionCompiler,
	registry ports.ChainRegistry,
	eventBus events.EventBus,
	log logger.Logger,
) *Manager {
	if eventBus == nil {
		eventBus = events.NopEventBus{}
	}
	return &Manager{
		repo:     repo,
		execLogs: execLogs,
		compiler: compiler,
		registry: registry,
		eventBus: eventBus,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   log.Named("lifecycle"),
	}
}

// SaveFlow creates a flow when payload.ID is empty and updates it otherwise.
// Changing the content of a PUBLISHED flow moves it back to DRAFT.
func (m *Manager) SaveFlow(ctx context.Context, payload *flow.FlowPayload) (flowID string, err error) {
	if payload == nil {
		return "", flow.NewValidationError("payload", "flow payload is required")
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "lifecycle.SaveFlow", telemetry.FlowIDAttribute(payload.ID))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := m.validate.Struct(payload); err != nil {
		return "", toValidationError(err)
	}
	nodes, err := buildNodes(payload.Nodes)
	if err != nil {
		return "", err
	}

	var from, to string
	err = m.repo.WithinTransaction(ctx, func(tx ports.FlowRepository) error {
		if payload.ID == "" {
			def, err := m.createFlow(ctx, tx, payload, nodes)
			if err != nil {
				return err
			}
			flowID, to = def.ID, def.Status
			return nil
		}

		def, err := tx.GetFlow(ctx, payload.ID)
		if err != nil {
			return err
		}
		storedNodes, err := tx.GetNodes(ctx, def.ID)
		if err != nil {
			return err
		}
		storedEdges, err := tx.GetEdges(ctx, def.ID)
		if err != nil {
			return err
		}

		edges, err := buildEdges(payload.Edges, storedEdges)
		if err != nil {
			return err
		}
		expression, err := m.compiler.Compile(nodes, edges)
		if err != nil {
			return err
		}

		changed := def.Name != payload.Name ||
			def.Description != payload.Description ||
			def.Expression != expression ||
			!flow.SameContent(storedNodes, storedEdges, nodes, edges)

		from = def.Status
		if def.IsPublished() && changed {
			def.Status = flow.StatusDraft
		}
		def.Name = payload.Name
		def.Description = payload.Description
		def.Expression = expression
		def.UpdatedBy = payload.Operator
		to = def.Status

		if err := tx.UpdateFlow(ctx, def); err != nil {
			return err
		}
		flowID = def.ID
		return tx.ReplaceGraph(ctx, def.ID, nodes, edges)
	})
	if err != nil {
		return "", err
	}

	if from != "" && from != to {
		metrics.RecordStatusTransition(from, to)
		m.logger.Info("Flow reverted to draft", "flow_id", flowID)
	}
	m.publish(ctx, events.NewEventBuilder(events.FlowSaved).
		WithAggregateID(flowID).
		WithAggregateType("flow").
		WithUserID(payload.Operator).
		WithPayload("status", to).
		Build())

	m.logger.Info("Flow saved", "flow_id", flowID, "status", to)
	return flowID, nil
}

func (m *Manager) createFlow(ctx context.Context, tx ports.FlowRepository, payload *flow.FlowPayload, nodes []flow.FlowNode) (*flow.FlowDefinition, error) {
	edges, err := buildEdges(payload.Edges, nil)
	if err != nil {
		return nil, err
	}
	expression, err := m.compiler.Compile(nodes, edges)
	if err != nil {
		return nil, err
	}

	status := payload.Status
	if status == "" {
		status = flow.StatusDraft
	}
	def := &flow.FlowDefinition{
		ID:          uuid.New().String(),
		Name:        payload.Name,
		Description: payload.Description,
		Expression:  expression,
		Status:      status,
		Version:     1,
		CreatedBy:   payload.Operator,
		UpdatedBy:   payload.Operator,
	}
	if err := tx.CreateFlow(ctx, def); err != nil {
		return nil, err
	}
	if err := tx.ReplaceGraph(ctx, def.ID, nodes, edges); err != nil {
		return nil, err
	}
	return def, nil
}

// PublishFlow freezes the current graph into a new version history row and
// registers the compiled chain. Every call mints a new version, even when
// nothing changed since the last publish.
func (m *Manager) PublishFlow(ctx context.Context, flowID string) (version int, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "lifecycle.PublishFlow", telemetry.FlowIDAttribute(flowID))
	defer func() { telemetry.EndSpan(span, err) }()

	var (
		from       string
		operator   string
		previous   string
		registered bool
	)
	err = m.repo.WithinTransaction(ctx, func(tx ports.FlowRepository) error {
		def, err := tx.GetFlow(ctx, flowID)
		if err != nil {
			return err
		}
		nodes, err := tx.GetNodes(ctx, flowID)
		if err != nil {
			return err
		}
		edges, err := tx.GetEdges(ctx, flowID)
		if err != nil {
			return err
		}
		if err := checkPublishable(flowID, nodes, edges); err != nil {
			return err
		}

		expression, err := m.compiler.Compile(nodes, edges)
		if err != nil {
			return err
		}
		count, err := tx.CountHistory(ctx, flowID)
		if err != nil {
			return err
		}
		if count > 0 {
			last, err := tx.GetHistoryByVersion(ctx, flowID, def.Version)
			if err != nil && !errors.Is(err, flow.ErrNotFound) {
				return err
			}
			if last != nil {
				previous = last.Expression
			}
		}

		version = nextVersion(def.Version, count)
		history := &flow.VersionHistory{
			ID:          uuid.New().String(),
			FlowID:      flowID,
			Version:     version,
			Name:        def.Name,
			Description: def.Description,
			Expression:  expression,
			Snapshot:    flow.NewSnapshot(nodes, edges),
			Active:      true,
			CreatedBy:   def.UpdatedBy,
			UpdatedBy:   def.UpdatedBy,
		}
		if err := tx.CreateHistory(ctx, history); err != nil {
			return err
		}

		from = def.Status
		operator = def.UpdatedBy
		def.Status = flow.StatusPublished
		def.Version = version
		def.Expression = expression
		if err := tx.UpdateFlow(ctx, def); err != nil {
			return err
		}

		// Last, so a rejected registration rolls the publish back.
		if err := m.registry.Register(ctx, flowID, expression); err != nil {
			return fmt.Errorf("failed to register chain for flow %s: %w", flowID, err)
		}
		registered = true
		return nil
	})
	if err != nil {
		if registered {
			// The commit failed after the engine accepted the new chain.
			m.restoreChain(ctx, flowID, previous)
		}
		m.logger.Error("Failed to publish flow", "flow_id", flowID, "error", err)
		return 0, err
	}

	metrics.FlowPublishesTotal.Inc()
	if from != flow.StatusPublished {
		metrics.RecordStatusTransition(from, flow.StatusPublished)
	}
	span.SetAttributes(telemetry.FlowVersionAttribute(version))
	m.publish(ctx, events.NewEventBuilder(events.FlowPublished).
		WithAggregateID(flowID).
		WithAggregateType("flow").
		WithUserID(operator).
		WithPayload("version", version).
		Build())

	m.logger.Info("Flow published", "flow_id", flowID, "version", version)
	return version, nil
}

// restoreChain puts the engine back to the chain of the last committed
// publish, or removes the chain when the flow had none.
func (m *Manager) restoreChain(ctx context.Context, flowID, expression string) {
	var err error
	if expression != "" {
		err = m.registry.Register(ctx, flowID, expression)
	} else {
		err = m.registry.Remove(ctx, flowID)
	}
	if err != nil {
		m.logger.Error("Failed to restore chain after aborted publish", "flow_id", flowID, "error", err)
	}
}

// ReloadChains registers the compiled expression of every PUBLISHED flow.
// Called at startup, since the engine keeps chains in memory only.
func (m *Manager) ReloadChains(ctx context.Context) (int, error) {
	defs, err := m.repo.ListFlowsByStatus(ctx, flow.StatusPublished)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, def := range defs {
		if def.Expression == "" {
			continue
		}
		if err := m.registry.Register(ctx, def.ID, def.Expression); err != nil {
			return loaded, fmt.Errorf("failed to register chain for flow %s: %w", def.ID, err)
		}
		loaded++
	}

	m.logger.Info("Chains reloaded", "count", loaded)
	return loaded, nil
}

// nextVersion keeps versions strictly increasing from the definition's
// current version, which starts at 1 before any publish.
func nextVersion(current int, historyCount int64) int {
	next := int(historyCount) + 1
	if current+1 > next {
		next = current + 1
	}
	return next
}

func checkPublishable(flowID string, nodes []flow.FlowNode, edges []flow.FlowEdge) error {
	switch {
	case len(nodes) == 0:
		return &flow.NotPublishableError{FlowID: flowID, Reason: "flow has no nodes"}
	case len(edges) == 0:
		return &flow.NotPublishableError{FlowID: flowID, Reason: "flow has no edges"}
	case !flow.NewGraph(nodes, edges).HasStartNode():
		return &flow.NotPublishableError{FlowID: flowID, Reason: "flow has no start node"}
	}
	return nil
}

// CloneFromHistory creates a new DRAFT flow at version 1 from a history
// snapshot. Node ids are regenerated and edges renumbered.
func (m *Manager) CloneFromHistory(ctx context.Context, historyID string) (newFlowID string, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "lifecycle.CloneFromHistory")
	defer func() { telemetry.EndSpan(span, err) }()

	var source *flow.VersionHistory
	err = m.repo.WithinTransaction(ctx, func(tx ports.FlowRepository) error {
		h, err := tx.GetHistory(ctx, historyID)
		if err != nil {
			return err
		}
		source = h

		nodes, edges, err := remapGraph(h.Snapshot)
		if err != nil {
			return err
		}
		expression, err := m.compiler.Compile(nodes, edges)
		if err != nil {
			return err
		}

		def := &flow.FlowDefinition{
			ID:          uuid.New().String(),
			Name:        h.Name,
			Description: h.Description,
			Expression:  expression,
			Status:      flow.StatusDraft,
			Version:     1,
			CreatedBy:   h.CreatedBy,
			UpdatedBy:   h.CreatedBy,
		}
		if err := tx.CreateFlow(ctx, def); err != nil {
			return err
		}
		if err := tx.ReplaceGraph(ctx, def.ID, nodes, edges); err != nil {
			return err
		}
		newFlowID = def.ID
		return nil
	})
	if err != nil {
		return "", err
	}

	metrics.FlowClonesTotal.Inc()
	m.publish(ctx, events.NewEventBuilder(events.FlowCloned).
		WithAggregateID(newFlowID).
		WithAggregateType("flow").
		WithPayload("source_flow_id", source.FlowID).
		WithPayload("source_version", source.Version).
		Build())

	m.logger.Info("Flow cloned from history",
		"history_id", historyID,
		"source_flow_id", source.FlowID,
		"source_version", source.Version,
		"flow_id", newFlowID,
	)
	return newFlowID, nil
}

func remapGraph(snapshot flow.Snapshot) ([]flow.FlowNode, []flow.FlowEdge, error) {
	snap := snapshot.Clone()

	idMap := make(map[string]string, len(snap.Nodes))
	nodes := make([]flow.FlowNode, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		newID := uuid.New().String()
		idMap[n.ID] = newID
		nodes = append(nodes, flow.FlowNode{
			ID:        newID,
			Name:      n.Name,
			Type:      n.Type,
			Config:    n.Config,
			PositionX: n.PositionX,
			PositionY: n.PositionY,
		})
	}

	edges := make([]flow.FlowEdge, 0, len(snap.Edges))
	for i, e := range snap.Edges {
		source, ok := idMap[e.SourceNodeID]
		if !ok {
			return nil, nil, flow.NewValidationError("snapshot", fmt.Sprintf("edge %d references unknown node %q", e.ID, e.SourceNodeID))
		}
		target, ok := idMap[e.TargetNodeID]
		if !ok {
			return nil, nil, flow.NewValidationError("snapshot", fmt.Sprintf("edge %d references unknown node %q", e.ID, e.TargetNodeID))
		}
		edges = append(edges, flow.FlowEdge{
			ID:           int64(i + 1),
			SourceNodeID: source,
			TargetNodeID: target,
			Condition:    e.Condition,
		})
	}
	return nodes, edges, nil
}

// ReplayFlowVersion rebuilds a read-only view of a published version.
func (m *Manager) ReplayFlowVersion(ctx context.Context, flowID string, version int) (*flow.FlowDefinitionView, error) {
	h, err := m.repo.GetHistoryByVersion(ctx, flowID, version)
	if err != nil {
		return nil, err
	}

	snap := h.Snapshot.Clone()
	return &flow.FlowDefinitionView{
		ID:          h.FlowID,
		Name:        h.Name,
		Description: h.Description,
		Expression:  h.Expression,
		Status:      flow.StatusPublished,
		Version:     h.Version,
		Nodes:       snap.Nodes,
		Edges:       snap.Edges,
		CreatedBy:   h.CreatedBy,
		PublishedAt: h.CreatedAt,
	}, nil
}

// GetFlow returns the live definition with its current graph.
func (m *Manager) GetFlow(ctx context.Context, flowID string) (*flow.FlowDefinitionView, error) {
	def, err := m.repo.GetFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	nodes, err := m.repo.GetNodes(ctx, flowID)
	if err != nil {
		return nil, err
	}
	edges, err := m.repo.GetEdges(ctx, flowID)
	if err != nil {
		return nil, err
	}

	return &flow.FlowDefinitionView{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Expression:  def.Expression,
		Status:      def.Status,
		Version:     def.Version,
		Nodes:       nodes,
		Edges:       edges,
		CreatedBy:   def.CreatedBy,
	}, nil
}

// DeleteFlow removes a DRAFT flow and everything recorded against it.
func (m *Manager) DeleteFlow(ctx context.Context, flowID string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "lifecycle.DeleteFlow", telemetry.FlowIDAttribute(flowID))
	defer func() { telemetry.EndSpan(span, err) }()

	err = m.repo.WithinTransaction(ctx, func(tx ports.FlowRepository) error {
		def, err := tx.GetFlow(ctx, flowID)
		if err != nil {
			return err
		}
		if def.IsPublished() {
			return &flow.IllegalStateError{FlowID: flowID, Status: def.Status, Operation: "delete"}
		}
		return tx.DeleteFlow(ctx, flowID)
	})
	if err != nil {
		return err
	}

	if err := m.registry.Remove(ctx, flowID); err != nil {
		m.logger.Warn("Failed to remove chain of deleted flow", "flow_id", flowID, "error", err)
	}

	m.publish(ctx, events.NewEventBuilder(events.FlowDeleted).
		WithAggregateID(flowID).
		WithAggregateType("flow").
		Build())

	m.logger.Info("Flow deleted", "flow_id", flowID)
	return nil
}

// ListVersionHistory returns every history row of a flow, archived ones
// included, oldest first.
func (m *Manager) ListVersionHistory(ctx context.Context, flowID string) ([]flow.VersionHistory, error) {
	if _, err := m.repo.GetFlow(ctx, flowID); err != nil {
		return nil, err
	}
	return m.repo.ListHistory(ctx, flowID, false)
}

func (m *Manager) GetVersionHistory(ctx context.Context, historyID string) (*flow.VersionHistory, error) {
	return m.repo.GetHistory(ctx, historyID)
}

func (m *Manager) publish(ctx context.Context, event events.Event) {
	if err := m.eventBus.Publish(ctx, event); err != nil {
		m.logger.Warn("Failed to publish event", "type", event.Type, "flow_id", event.AggregateID, "error", err)
	}
}

func buildNodes(payload []flow.NodePayload) ([]flow.FlowNode, error) {
	seen := make(map[string]bool, len(payload))
	nodes := make([]flow.FlowNode, 0, len(payload))
	for _, p := range payload {
		if seen[p.ID] {
			return nil, flow.NewValidationError("nodes", fmt.Sprintf("duplicate node id %q", p.ID))
		}
		seen[p.ID] = true
		nodes = append(nodes, flow.FlowNode{
			ID:        p.ID,
			Name:      p.Name,
			Type:      p.Type,
			Config:    p.Config,
			PositionX: p.PositionX,
			PositionY: p.PositionY,
		})
	}
	return nodes, nil
}

// buildEdges numbers new edges (id 0) after the highest id already used by
// the stored or submitted edges.
func buildEdges(payload []flow.EdgePayload, stored []flow.FlowEdge) ([]flow.FlowEdge, error) {
	var maxID int64
	for _, e := range stored {
		if e.ID > maxID {
			maxID = e.ID
		}
	}
	seen := make(map[int64]bool, len(payload))
	for _, p := range payload {
		if p.ID == 0 {
			continue
		}
		if seen[p.ID] {
			return nil, flow.NewValidationError("edges", fmt.Sprintf("duplicate edge id %d", p.ID))
		}
		seen[p.ID] = true
		if p.ID > maxID {
			maxID = p.ID
		}
	}

	edges := make([]flow.FlowEdge, 0, len(payload))
	for _, p := range payload {
		id := p.ID
		if id == 0 {
			maxID++
			id = maxID
		}
		edges = append(edges, flow.FlowEdge{
			ID:           id,
			SourceNodeID: p.SourceNodeID,
			TargetNodeID: p.TargetNodeID,
			Condition:    p.Condition,
		})
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges, nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return flow.NewValidationError(fe.Namespace(), fmt.Sprintf("failed on the '%s' rule", fe.Tag()))
	}
	return flow.NewValidationError("", err.Error())
}
