package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends journal rows inside the caller's transaction so entity
// state and its events commit together.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Frame map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, kind, workspaceID, entityKind, entityID string, version int, source string, frame Frame) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if frame == nil {
		frame = Frame{}
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal event frame: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,kind,workspace_ref_id,entity_kind,entity_id,version,source,frame_json) VALUES (?,?,?,?,?,?,?,?)`,
		ts, kind, nullable(workspaceID), entityKind, nullable(entityID), version, source, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
