// Package pipeline implements the staged execution engine shared by the
// comprehension and synthesis assemblies: an ordered list of steps where each
// step is either a single processor or a set of processors run concurrently
// against the same data snapshot.
package pipeline

import (
	"context"
	"sync"
)

// Processor is the unit of work: take (data, shared context), produce new
// data, possibly failing. Implementations must not retain per-run state
// across invocations; anything scoped to one run belongs in the Context.
type Processor interface {
	// Name identifies the processor in logs and error fields.
	Name() string

	// Process transforms data. pctx is shared by every processor of one
	// pipeline run.
	Process(ctx context.Context, data interface{}, pctx *Context) (interface{}, error)
}

// Func adapts a plain function to the Processor interface.
type Func struct {
	ProcessorName string
	Fn            func(ctx context.Context, data interface{}, pctx *Context) (interface{}, error)
}

func (f Func) Name() string { return f.ProcessorName }

func (f Func) Process(ctx context.Context, data interface{}, pctx *Context) (interface{}, error) {
	return f.Fn(ctx, data, pctx)
}

// Context is the mutable key/value store shared across all processors of one
// pipeline run. Processors in a parallel step run on separate goroutines, so
// access is synchronized here rather than relying on cooperative scheduling.
type Context struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

func NewContext() *Context {
	return &Context{values: make(map[string]interface{})}
}

// Get returns the value stored under key.
func (c *Context) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Set stores value under key, visible to all subsequently executed
// processors of the same run.
func (c *Context) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// AppendString appends to a string-slice value, creating it if absent. Used
// for side channels such as the broken-link accumulator of graph traversal.
func (c *Context) AppendString(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, _ := c.values[key].([]string)
	c.values[key] = append(existing, value)
}

// Strings returns a copy of the string-slice value under key.
func (c *Context) Strings(key string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	existing, _ := c.values[key].([]string)
	return append([]string(nil), existing...)
}
