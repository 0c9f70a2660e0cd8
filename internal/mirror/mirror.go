// Package mirror defines the notebook capability the sync engine
// consumes. The real adapter (a Notion REST client) lives outside this
// repo; Memory stands in for local runs and tests.
package mirror

import "context"

// Item is one remote record in a collection. RefID is the local link
// written by LinkItem; it is empty for records created remotely.
type Item struct {
	RemoteID       string            `json:"remote_id"`
	RefID          string            `json:"ref_id,omitempty"`
	Name           string            `json:"name"`
	Fields         map[string]string `json:"fields,omitempty"`
	Archived       bool              `json:"archived"`
	LastEditedTime string            `json:"last_edited_time" format:"date-time"`
}

// Mirror is the notebook capability. Creates return a stable remote id,
// saves are idempotent, lists return the full current snapshot and
// removes are terminal.
type Mirror interface {
	UpsertPage(ctx context.Context, name string) (string, error)
	UpsertCollection(ctx context.Context, name string, schema []string) (string, error)
	ListItems(ctx context.Context, collection string) ([]Item, error)
	LoadItem(ctx context.Context, collection, remoteID string) (Item, error)
	SaveItem(ctx context.Context, collection string, item Item) (Item, error)
	RemoveItem(ctx context.Context, collection, remoteID string) error
	LinkItem(ctx context.Context, collection, remoteID, refID string) error
	DropAll(ctx context.Context) error
}
