// internal/metadata/models.go
package metadata

import (
	"encoding/json"
	"time"
)

// SchemaVersion is the only metadata schema this engine reads or writes.
const SchemaVersion = 1

// State is the lifecycle state of a session backup. The transition is
// one-way: active to closed.
type State string

const (
	StateActive State = "active"
	StateClosed State = "closed"
)

// Trigger records what initiated a checkpoint.
type Trigger string

const (
	TriggerAuto   Trigger = "auto"
	TriggerManual Trigger = "manual"
)

// SnapshotKind identifies the stored representation of a snapshot.
type SnapshotKind string

const (
	SnapshotTarGz     SnapshotKind = "tar_gz"
	SnapshotDirectory SnapshotKind = "directory"
)

// SnapshotRef points at a snapshot payload, relative to the session's
// backup directory.
type SnapshotRef struct {
	Kind SnapshotKind `json:"kind" validate:"oneof=tar_gz directory"`
	Path string       `json:"path" validate:"required"`

	extra map[string]json.RawMessage
}

// Checkpoint is one recorded point in a session's workspace history.
type Checkpoint struct {
	ID          string      `json:"id" validate:"required"`
	Index       int         `json:"index" validate:"min=0"`
	CreatedAt   time.Time   `json:"createdAt" validate:"required"`
	Trigger     Trigger     `json:"trigger" validate:"oneof=auto manual"`
	Changed     bool        `json:"changed"`
	PatchBytes  int64       `json:"patchBytes" validate:"min=0"`
	Fingerprint string      `json:"fingerprint" validate:"required"`
	Snapshot    SnapshotRef `json:"snapshot"`
	GitBranch   string      `json:"gitBranch,omitempty"`
	GitCommit   string      `json:"gitCommit,omitempty"`

	extra map[string]json.RawMessage
}

// SessionBackup is the single persisted record for one session.
type SessionBackup struct {
	Version          int          `json:"version" validate:"eq=1"`
	SessionID        string       `json:"sessionId" validate:"required"`
	WorkingDirectory string       `json:"workingDirectory" validate:"required"`
	CreatedAt        time.Time    `json:"createdAt" validate:"required"`
	State            State        `json:"state" validate:"oneof=active closed"`
	ClosedAt         *time.Time   `json:"closedAt,omitempty"`
	OriginalSnapshot SnapshotRef  `json:"originalSnapshot"`
	Checkpoints      []Checkpoint `json:"checkpoints" validate:"dive"`

	extra map[string]json.RawMessage
}

// LastCheckpoint returns the most recent checkpoint, or nil when the chain
// is empty.
func (b *SessionBackup) LastCheckpoint() *Checkpoint {
	if len(b.Checkpoints) == 0 {
		return nil
	}
	return &b.Checkpoints[len(b.Checkpoints)-1]
}

// The JSON round-trip below keeps fields this engine does not recognize
// intact across load and save, so newer writers can add fields without
// older engines destroying them.

func splitKnown(data []byte, known map[string]bool) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	extra := make(map[string]json.RawMessage)
	for k, v := range all {
		if !known[k] {
			extra[k] = v
		}
	}
	if len(extra) == 0 {
		extra = nil
	}
	return extra, nil
}

func mergeExtra(knownJSON []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return knownJSON, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(knownJSON, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

var snapshotRefKeys = map[string]bool{"kind": true, "path": true}

func (r *SnapshotRef) UnmarshalJSON(data []byte) error {
	type plain SnapshotRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := splitKnown(data, snapshotRefKeys)
	if err != nil {
		return err
	}
	*r = SnapshotRef(p)
	r.extra = extra
	return nil
}

func (r SnapshotRef) MarshalJSON() ([]byte, error) {
	type plain SnapshotRef
	knownJSON, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}
	return mergeExtra(knownJSON, r.extra)
}

var checkpointKeys = map[string]bool{
	"id": true, "index": true, "createdAt": true, "trigger": true,
	"changed": true, "patchBytes": true, "fingerprint": true,
	"snapshot": true, "gitBranch": true, "gitCommit": true,
}

func (c *Checkpoint) UnmarshalJSON(data []byte) error {
	type plain Checkpoint
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := splitKnown(data, checkpointKeys)
	if err != nil {
		return err
	}
	*c = Checkpoint(p)
	c.extra = extra
	return nil
}

func (c Checkpoint) MarshalJSON() ([]byte, error) {
	type plain Checkpoint
	knownJSON, err := json.Marshal(plain(c))
	if err != nil {
		return nil, err
	}
	return mergeExtra(knownJSON, c.extra)
}

var sessionBackupKeys = map[string]bool{
	"version": true, "sessionId": true, "workingDirectory": true,
	"createdAt": true, "state": true, "closedAt": true,
	"originalSnapshot": true, "checkpoints": true,
}

func (b *SessionBackup) UnmarshalJSON(data []byte) error {
	type plain SessionBackup
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := splitKnown(data, sessionBackupKeys)
	if err != nil {
		return err
	}
	*b = SessionBackup(p)
	b.extra = extra
	return nil
}

func (b SessionBackup) MarshalJSON() ([]byte, error) {
	type plain SessionBackup
	if b.Checkpoints == nil {
		b.Checkpoints = []Checkpoint{}
	}
	knownJSON, err := json.Marshal(plain(b))
	if err != nil {
		return nil, err
	}
	return mergeExtra(knownJSON, b.extra)
}
