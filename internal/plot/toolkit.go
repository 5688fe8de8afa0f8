package plot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/finai-cli/internal/ai"
	"github.com/KaramelBytes/finai-cli/internal/dataset"
)

// Replies returned to the model.
const (
	successReply  = "Plot generated successfully."
	failurePrefix = "Plot generation failed: "
)

// Toolkit offers a subset of operations to an agent and stores every chart
// it renders in the collector.
type Toolkit struct {
	table     *dataset.Table
	collector *Collector
	ops       []Operation
	log       *zap.Logger
}

// NewToolkit binds operations to a table. Unknown names are an error; an
// empty list selects DefaultEnabled.
func NewToolkit(t *dataset.Table, c *Collector, enabled []string, log *zap.Logger) (*Toolkit, error) {
	if len(enabled) == 0 {
		enabled = DefaultEnabled
	}
	if log == nil {
		log = zap.NewNop()
	}
	k := &Toolkit{table: t, collector: c, log: log}
	seen := map[string]bool{}
	for _, name := range enabled {
		name = strings.TrimSpace(name)
		if seen[name] {
			continue
		}
		op, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown plot tool %q (available: %s)", name, strings.Join(Names(), ", "))
		}
		seen[name] = true
		k.ops = append(k.ops, op)
	}
	return k, nil
}

// Tools implements agent.ToolExecutor.
func (k *Toolkit) Tools() []ai.Tool {
	out := make([]ai.Tool, len(k.ops))
	for i, op := range k.ops {
		out[i] = ai.NewFunctionTool(op.Name, op.Description, op.Schema())
	}
	return out
}

// Execute implements agent.ToolExecutor. Failures are reported as text so
// the model can try a different chart; the error return is never set.
func (k *Toolkit) Execute(_ context.Context, call ai.ToolCall) (string, error) {
	return k.Run(call.Function.Name, call.Function.Arguments), nil
}

// Run renders one operation from raw JSON arguments.
func (k *Toolkit) Run(name, rawArgs string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			k.log.Warn("plot tool panicked", zap.String("tool", name), zap.Any("panic", r))
			reply = fmt.Sprintf("%s%v", failurePrefix, r)
		}
	}()
	op, ok := k.find(name)
	if !ok {
		return failurePrefix + fmt.Sprintf("tool %q is not available", name)
	}
	var p Params
	if strings.TrimSpace(rawArgs) != "" {
		if err := json.Unmarshal([]byte(rawArgs), &p); err != nil {
			return failurePrefix + "invalid arguments: " + err.Error()
		}
	}
	png, desc, err := op.Render(k.table, p)
	if err != nil {
		k.log.Debug("plot tool failed", zap.String("tool", name), zap.Error(err))
		return failurePrefix + err.Error()
	}
	k.collector.Add(NewPlot(op.Name, p.Title, desc, png))
	k.log.Debug("plot generated", zap.String("tool", name), zap.String("title", p.Title), zap.Int("bytes", len(png)))
	return successReply
}

func (k *Toolkit) find(name string) (Operation, bool) {
	for _, op := range k.ops {
		if op.Name == name {
			return op, true
		}
	}
	return Operation{}, false
}
