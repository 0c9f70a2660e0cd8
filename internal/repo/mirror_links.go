package repo

import (
	"context"
	"database/sql"
	"fmt"
)

// GetMirrorLink returns the remote id a local entity is linked to in a
// mirror collection, or NOT_FOUND when it was never synced.
func (r Repo) GetMirrorLink(ctx context.Context, collection, refID string) (string, error) {
	var remoteID string
	err := r.q().QueryRowContext(ctx, `SELECT remote_id FROM mirror_links WHERE collection=? AND ref_id=?`, collection, refID).Scan(&remoteID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("mirror link %s/%s: %w", collection, refID, ErrNotFound)
	}
	return remoteID, err
}

func (r Repo) SaveMirrorLink(ctx context.Context, tx *sql.Tx, collection, refID, workspaceID, remoteID, linkedTime string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO mirror_links(collection,ref_id,workspace_ref_id,remote_id,linked_time) VALUES (?,?,?,?,?)
ON CONFLICT(collection,ref_id) DO UPDATE SET remote_id=excluded.remote_id, linked_time=excluded.linked_time`,
		collection, refID, workspaceID, remoteID, linkedTime)
	return err
}

func (r Repo) DeleteAllMirrorLinks(ctx context.Context, tx *sql.Tx, workspaceID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM mirror_links WHERE workspace_ref_id=?`, workspaceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
