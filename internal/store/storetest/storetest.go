// Package storetest exercises a store.Store implementation against the
// behaviour every backend must share.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/capitalize-ai/assistant/internal/store"
)

// Run runs the shared backend checks against s.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("kv round trip", func(t *testing.T) {
		key := store.ProfileKey("U1")
		if ok, err := s.Exists(ctx, key); err != nil || ok {
			t.Fatalf("Exists before Put = %v, %v; want false, nil", ok, err)
		}
		if _, err := s.Get(ctx, key); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("Get before Put err = %v, want ErrNotFound", err)
		}
		if err := s.Put(ctx, key, []byte(`{"model":"gpt-4o"}`)); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !bytes.Equal(got, []byte(`{"model":"gpt-4o"}`)) {
			t.Errorf("Get = %s", got)
		}
		if ok, err := s.Exists(ctx, key); err != nil || !ok {
			t.Errorf("Exists after Put = %v, %v; want true, nil", ok, err)
		}
	})

	t.Run("kv overwrite", func(t *testing.T) {
		key := store.TokenKey("github", "U2")
		_ = s.Put(ctx, key, []byte("one"))
		_ = s.Put(ctx, key, []byte("two"))
		got, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != "two" {
			t.Errorf("Get = %q, want two", got)
		}
	})

	t.Run("kv delete", func(t *testing.T) {
		key := store.ProfileKey("U3")
		_ = s.Put(ctx, key, []byte("x"))
		if err := s.Delete(ctx, key); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Get(ctx, key); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Get after Delete err = %v, want ErrNotFound", err)
		}
		if err := s.Delete(ctx, key); err != nil {
			t.Errorf("Delete missing key: %v", err)
		}
	})

	t.Run("snapshot round trip", func(t *testing.T) {
		id := "2f1c6a51-6b0e-4c43-9f3a-5d1d2a7b9e10"
		if _, err := s.GetSnapshot(ctx, id); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("GetSnapshot before Put err = %v, want ErrNotFound", err)
		}
		blob := []byte(`{"version":1}`)
		if err := s.PutSnapshot(ctx, id, blob); err != nil {
			t.Fatalf("PutSnapshot: %v", err)
		}
		got, err := s.GetSnapshot(ctx, id)
		if err != nil {
			t.Fatalf("GetSnapshot: %v", err)
		}
		if !bytes.Equal(got, blob) {
			t.Errorf("GetSnapshot = %s", got)
		}
		if err := s.DeleteSnapshot(ctx, id); err != nil {
			t.Fatalf("DeleteSnapshot: %v", err)
		}
		if _, err := s.GetSnapshot(ctx, id); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetSnapshot after delete err = %v, want ErrNotFound", err)
		}
	})

	t.Run("snapshot write once", func(t *testing.T) {
		id := "7d9e3b2a-1c4f-4a8e-b6d5-0e2f9a8c7b61"
		if err := s.PutSnapshot(ctx, id, []byte("first")); err != nil {
			t.Fatalf("PutSnapshot: %v", err)
		}
		if err := s.PutSnapshot(ctx, id, []byte("second")); !errors.Is(err, store.ErrExists) {
			t.Fatalf("second PutSnapshot err = %v, want ErrExists", err)
		}
		got, err := s.GetSnapshot(ctx, id)
		if err != nil {
			t.Fatalf("GetSnapshot: %v", err)
		}
		if string(got) != "first" {
			t.Errorf("GetSnapshot = %q, want first", got)
		}
	})
}
