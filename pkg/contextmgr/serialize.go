package contextmgr

import (
	"encoding/json"
	"fmt"

	"contextcore/pkg/condenser"
	"contextcore/pkg/event"
	"contextcore/pkg/eventlog"
)

// snapshotVersion is bumped whenever SerializedContext changes incompatibly.
const snapshotVersion = 1

// SerializedContext is the JSON snapshot of a conversation. Only the log is stored; the
// view and the monitor state are derived from it on restore.
type SerializedContext struct {
	Version        int            `json:"version"`
	ConversationID string         `json:"conversation_id"`
	Condenser      string         `json:"condenser,omitempty"`
	Events         []*event.Event `json:"events"`
}

// Serialize converts the ContextManager state to JSON bytes.
func (cm *ContextManager) Serialize() ([]byte, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	events, err := cm.log.All()
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}

	sc := SerializedContext{
		Version:        snapshotVersion,
		ConversationID: cm.convID,
		Condenser:      condenser.Describe(cm.condenser),
		Events:         events,
	}

	data, err := json.Marshal(sc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal context: %w", err)
	}
	return data, nil
}

// Deserialize restores the ContextManager state from JSON bytes. The current log is
// replaced by a fresh in-memory log holding the snapshot's events, and the view and the
// monitor are rebuilt from it. The condenser is kept as configured.
func (cm *ContextManager) Deserialize(data []byte) error {
	var sc SerializedContext
	if err := json.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("failed to unmarshal context: %w", err)
	}
	if sc.Version != snapshotVersion {
		return fmt.Errorf("unsupported context snapshot version %d", sc.Version)
	}

	log := eventlog.New()
	if err := eventlog.Replay(log, sc.Events); err != nil {
		return fmt.Errorf("failed to restore context: %w", err)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if sc.ConversationID != "" {
		cm.convID = sc.ConversationID
	}
	cm.log = log
	if err := cm.reload(); err != nil {
		return err
	}
	cm.logger.Info("[%s] restored %d events (snapshot condenser %q)", cm.convID, len(sc.Events), sc.Condenser)
	return nil
}
