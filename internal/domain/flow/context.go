package flow

import (
	"time"
)

// CurrentSchemaVersion is the CachedExecutionContext layout this build writes.
const CurrentSchemaVersion = 1

// CachedExecutionContext is the transient state of one running execution.
type CachedExecutionContext struct {
	FlowID      string           `json:"flowId"`
	ExecutionID string           `json:"executionId"`
	StartTime   time.Time        `json:"startTime"`
	UserID      string           `json:"userId,omitempty"`
	TenantID    string           `json:"tenantId,omitempty"`
	Variables   map[string]Value `json:"variables"`
	Version     int              `json:"version"`
}

func NewExecutionContext(flowID, executionID string) *CachedExecutionContext {
	return &CachedExecutionContext{
		FlowID:      flowID,
		ExecutionID: executionID,
		StartTime:   time.Now().UTC(),
		Variables:   make(map[string]Value),
		Version:     CurrentSchemaVersion,
	}
}

func (c *CachedExecutionContext) Set(name string, v Value) {
	if c.Variables == nil {
		c.Variables = make(map[string]Value)
	}
	c.Variables[name] = v
}

func (c *CachedExecutionContext) Get(name string) (Value, bool) {
	v, ok := c.Variables[name]
	return v, ok
}
