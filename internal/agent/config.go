package agent

import "fmt"

// RuntimeConfig selects the behaviour of an agent session. Unset fields take
// defaults from Normalize.
type RuntimeConfig struct {
	// ModelID names the backing language model.
	ModelID string
	// EnableLongTermMemory persists distilled insights beyond one session.
	EnableLongTermMemory bool
	// EnableHistoryInjection prepends prior turns of this session as context.
	EnableHistoryInjection bool
	// HistoryWindow is how many prior turns to inject.
	HistoryWindow int
	// EnableSearch attaches the web-search tool.
	EnableSearch bool
}

const (
	defaultModelID       = "gemma2-9b-it"
	defaultHistoryWindow = 5
	maxHistoryWindow     = 50
)

// Normalize applies defaults and validates the config.
func (c *RuntimeConfig) Normalize() error {
	if c.ModelID == "" {
		c.ModelID = defaultModelID
	}
	if c.HistoryWindow == 0 {
		c.HistoryWindow = defaultHistoryWindow
	}
	if c.HistoryWindow < 0 {
		return fmt.Errorf("history window must not be negative")
	}
	if c.HistoryWindow > maxHistoryWindow {
		return fmt.Errorf("history window exceeds %d", maxHistoryWindow)
	}
	return nil
}
