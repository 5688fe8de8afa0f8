package plot

import (
	"encoding/base64"
	"sync"
)

// Plot is one rendered chart ready for embedding.
type Plot struct {
	// Image is the base64-encoded PNG.
	Image       string `json:"image"`
	Description string `json:"description"`
	Tool        string `json:"tool"`
	Title       string `json:"title,omitempty"`
}

// DataURI returns the image as an inline data URI.
func (p Plot) DataURI() string { return "data:image/png;base64," + p.Image }

// NewPlot encodes png and pairs it with its description.
func NewPlot(tool, title, description string, png []byte) Plot {
	return Plot{Image: base64.StdEncoding.EncodeToString(png), Description: description, Tool: tool, Title: title}
}

// Collector accumulates plots produced during a single report run.
// It is safe for concurrent use.
type Collector struct {
	mu    sync.Mutex
	plots []Plot
}

// NewCollector returns an empty collector.
func NewCollector() *Collector { return &Collector{} }

// Add appends a plot.
func (c *Collector) Add(p Plot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plots = append(c.plots, p)
}

// Len reports how many plots are held.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.plots)
}

// Pop removes and returns the most recent plot.
func (c *Collector) Pop() (Plot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.plots) == 0 {
		return Plot{}, false
	}
	p := c.plots[len(c.plots)-1]
	c.plots = c.plots[:len(c.plots)-1]
	return p, true
}

// All returns a copy of the plots in insertion order.
func (c *Collector) All() []Plot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Plot(nil), c.plots...)
}

// Reset drops every plot.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plots = nil
}
