package statecache

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/flowvault-go/internal/domain/flow"
	"github.com/flowvault-go/pkg/logger"
	"github.com/tidwall/gjson"
)

// Codec converts execution contexts to and from their cached form: a JSON
// object carrying a top-level "version" field.
type Codec struct {
	logger logger.Logger
}

func NewCodec(log logger.Logger) *Codec {
	return &Codec{logger: log}
}

// Encode always stamps the current schema version.
func (c *Codec) Encode(key string, ctx *flow.CachedExecutionContext) ([]byte, error) {
	out := *ctx
	out.Version = flow.CurrentSchemaVersion
	if out.Variables == nil {
		out.Variables = map[string]flow.Value{}
	}

	data, err := json.Marshal(&out)
	if err != nil {
		return nil, &flow.SerializationError{Key: key, Err: err}
	}
	return data, nil
}

// Decode rejects empty, null and malformed payloads. Payloads written by a
// newer schema are read field by field; anything unreadable is skipped.
func (c *Codec) Decode(key string, data []byte) (*flow.CachedExecutionContext, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, &flow.CorruptStateError{Key: key, Reason: "empty payload"}
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, &flow.CorruptStateError{Key: key, Reason: "malformed payload"}
	}

	doc := gjson.ParseBytes(trimmed)
	if !doc.IsObject() {
		return nil, &flow.CorruptStateError{Key: key, Reason: "payload is not an object"}
	}

	version := doc.Get("version")
	if !version.Exists() {
		return nil, &flow.CorruptStateError{Key: key, Reason: "missing schema version"}
	}

	var (
		ctx *flow.CachedExecutionContext
		err error
	)
	if int(version.Int()) > flow.CurrentSchemaVersion {
		c.logger.Warn("Cached state written by a newer schema, using best-effort decode",
			"key", key,
			"version", version.Int(),
			"supported", flow.CurrentSchemaVersion,
		)
		ctx = c.decodeBestEffort(key, doc)
	} else {
		ctx = &flow.CachedExecutionContext{}
		if err = json.Unmarshal(trimmed, ctx); err != nil {
			return nil, &flow.CorruptStateError{Key: key, Reason: "decode failed", Err: err}
		}
	}

	if ctx.FlowID == "" || ctx.ExecutionID == "" {
		return nil, &flow.CorruptStateError{Key: key, Reason: "missing flow or execution id"}
	}
	if ctx.Variables == nil {
		ctx.Variables = map[string]flow.Value{}
	}
	return ctx, nil
}

func (c *Codec) decodeBestEffort(key string, doc gjson.Result) *flow.CachedExecutionContext {
	ctx := &flow.CachedExecutionContext{
		FlowID:      doc.Get("flowId").String(),
		ExecutionID: doc.Get("executionId").String(),
		UserID:      doc.Get("userId").String(),
		TenantID:    doc.Get("tenantId").String(),
		Version:     int(doc.Get("version").Int()),
		Variables:   map[string]flow.Value{},
	}
	if start := doc.Get("startTime"); start.Exists() {
		ctx.StartTime = start.Time()
	}

	var skipped []string
	doc.Get("variables").ForEach(func(name, raw gjson.Result) bool {
		var v flow.Value
		if err := json.Unmarshal([]byte(raw.Raw), &v); err != nil {
			skipped = append(skipped, name.String())
			return true
		}
		ctx.Variables[name.String()] = v
		return true
	})
	if len(skipped) > 0 {
		c.logger.Warn("Skipped unreadable variables", "key", key, "variables", fmt.Sprint(skipped))
	}

	return ctx
}
