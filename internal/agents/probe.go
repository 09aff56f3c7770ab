package agents

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const defaultProbeTimeout = 5 * time.Second

// availabilityCache is the JSON shape written next to the database so
// repeated CLI calls skip re-probing every agent binary.
type availabilityCache struct {
	Agents    map[string]bool `json:"agents"`
	CheckedAt time.Time       `json:"checked_at"`
}

// Detector probes which agents can actually be invoked on this host.
type Detector struct {
	CachePath    string
	MaxAge       time.Duration
	ProbeTimeout time.Duration

	HasAnthropicKey bool
	HasOpenAIKey    bool
}

// Available returns agent name → usable. A fresh cache short-circuits
// the probes unless refresh is set.
func (d *Detector) Available(list []Agent, refresh bool) map[string]bool {
	if !refresh {
		if cached, ok := d.loadCache(); ok {
			return cached
		}
	}

	out := make(map[string]bool, len(list))
	for _, a := range list {
		out[a.Name] = d.probe(a)
	}
	d.saveCache(out)
	return out
}

func (d *Detector) probe(a Agent) bool {
	switch a.Kind {
	case KindAnthropic:
		return d.HasAnthropicKey
	case KindOpenAI:
		return d.HasOpenAIKey
	case KindCLI:
		if len(a.Command) == 0 {
			return false
		}
		bin := a.Command[0]
		if _, err := exec.LookPath(bin); err != nil {
			return false
		}
		if len(a.ProbeArgs) == 0 {
			return true
		}
		timeout := d.ProbeTimeout
		if timeout <= 0 {
			timeout = defaultProbeTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return exec.CommandContext(ctx, bin, a.ProbeArgs...).Run() == nil
	}
	return false
}

func (d *Detector) loadCache() (map[string]bool, bool) {
	if d.CachePath == "" || d.MaxAge <= 0 {
		return nil, false
	}
	data, err := os.ReadFile(d.CachePath)
	if err != nil {
		return nil, false
	}
	var cache availabilityCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, false
	}
	if time.Since(cache.CheckedAt) > d.MaxAge || cache.Agents == nil {
		return nil, false
	}
	return cache.Agents, true
}

// saveCache is best-effort; a failed write just means the next call
// re-probes.
func (d *Detector) saveCache(agents map[string]bool) {
	if d.CachePath == "" {
		return
	}
	data, err := json.MarshalIndent(availabilityCache{Agents: agents, CheckedAt: time.Now()}, "", "  ")
	if err != nil {
		return
	}
	_ = os.MkdirAll(filepath.Dir(d.CachePath), 0755)
	_ = os.WriteFile(d.CachePath, data, 0644)
}
