package testsupport

import (
	"context"
	"testing"

	"likevault/internal/config"
	"likevault/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewItem inserts a fetched item with the given id and title.
func NewItem(t testing.TB, st *store.Store, id, title string) *store.Item {
	t.Helper()

	ctx := context.Background()
	if _, err := st.CreateItem(ctx, store.NewItem{ID: id, Author: "someone", Title: title, URL: "https://reddit.com/r/x/comments/" + id}); err != nil {
		t.Fatalf("store.CreateItem: %v", err)
	}
	item, err := st.GetItem(ctx, id)
	if err != nil || item == nil {
		t.Fatalf("store.GetItem(%s): %v", id, err)
	}
	return item
}

// NewAttachment inserts a pending attachment for itemID.
func NewAttachment(t testing.TB, st *store.Store, itemID, url string, kind store.MediaKind, declared int64) *store.Attachment {
	t.Helper()

	att, err := st.CreateAttachment(context.Background(), store.NewAttachment{ItemID: itemID, URL: url, Kind: kind, DeclaredSize: declared})
	if err != nil {
		t.Fatalf("store.CreateAttachment: %v", err)
	}
	return att
}
