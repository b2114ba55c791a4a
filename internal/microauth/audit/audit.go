// Package audit emits one structured event per API operation. The core's
// obligation is to make the request/response fields available; formatting
// and persistence belong to the logging backend.
package audit

import (
	"sort"

	"github.com/bytedance/sonic"
	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"

	"github.com/tinyauth/microauth/internal/model"
)

// notLogged replaces header values in audit output. Credential material
// never reaches the log.
const notLogged = "** NOT LOGGED **"

// Event is one audit record under construction. Handlers fill fields as the
// request progresses and submit the event exactly once.
type Event struct {
	// Action is the API operation name, e.g. "AuthorizeByToken".
	Action string
	fields map[string]any
}

// NewEvent creates an event for the named operation.
func NewEvent(action, requestID string) *Event {
	return &Event{
		Action: action,
		fields: map[string]any{
			"request-id": requestID,
		},
	}
}

// Set records a field.
func (e *Event) Set(key string, value any) {
	e.fields[key] = value
}

// SetJSON records a field as its canonical JSON rendering, for map-valued
// fields whose Go formatting would be unstable.
func (e *Event) SetJSON(key string, value any) {
	data, err := sonic.ConfigStd.Marshal(value)
	if err != nil {
		e.fields[key] = "** UNSERIALIZABLE **"
		return
	}
	e.fields[key] = string(data)
}

// SetHeaders records the forwarded header names with their values redacted.
func (e *Event) SetHeaders(headers []model.HeaderPair) {
	redacted := make([]string, 0, len(headers))
	for _, h := range headers {
		redacted = append(redacted, h.Name()+": "+notLogged)
	}
	e.fields["request.headers"] = redacted
}

// Emitter dispatches audit events asynchronously so request latency never
// pays for audit formatting.
type Emitter struct {
	pool *ants.Pool
}

// NewEmitter creates an Emitter backed by a worker pool of the given size.
func NewEmitter(workers int) (*Emitter, error) {
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers, ants.WithNonblocking(false))
	if err != nil {
		return nil, err
	}
	return &Emitter{pool: pool}, nil
}

// Emit submits the event for asynchronous logging. If the pool rejects the
// task the event is logged synchronously; audit records are never dropped.
func (m *Emitter) Emit(event *Event) {
	if err := m.pool.Submit(func() { log(event) }); err != nil {
		log(event)
	}
}

// Close drains the worker pool.
func (m *Emitter) Close() {
	m.pool.Release()
}

func log(event *Event) {
	keys := make([]string, 0, len(event.fields))
	for k := range event.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kv := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		kv = append(kv, k, event.fields[k])
	}
	logger.Infow(event.Action, kv...)
}
