package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestFilesystemRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("driver = %s", store.Driver())
	}

	body := `{"certificate_number":"RSC-L-2026-000001"}`
	info, err := store.Put(ctx, "certificates/2026/RSC-L-2026-000001.json", strings.NewReader(body), PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"certificate_number": "RSC-L-2026-000001"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len(body)) || info.ETag == "" {
		t.Fatalf("info = %+v", info)
	}
	if info.URL == "" {
		t.Fatalf("missing url")
	}

	got, rc, err := store.Get(ctx, info.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(data) != body {
		t.Fatalf("read back = %q err=%v", data, err)
	}
	if got.ContentType != "application/json" || got.Metadata["certificate_number"] != "RSC-L-2026-000001" {
		t.Fatalf("metadata = %+v", got)
	}

	head, err := store.Head(ctx, info.Key)
	if err != nil || head.ETag != info.ETag {
		t.Fatalf("head = %+v err=%v", head, err)
	}
}

func TestFilesystemPutIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := store.Put(ctx, "a/b.txt", strings.NewReader("one"), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "a/b.txt", strings.NewReader("two"), PutOptions{}); err == nil {
		t.Fatalf("overwrite must be rejected")
	}
}

func TestFilesystemRejectsTraversalKeys(t *testing.T) {
	ctx := context.Background()
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, key := range []string{"", "../escape", "/abs/path", "a/../../b"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("key %q must be rejected", key)
		}
	}
}

func TestFilesystemListAndDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, key := range []string{"certificates/2026/a.json", "certificates/2026/b.json", "reports/r.json"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "certificates/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "certificates/2026/a.json" {
		t.Fatalf("list = %+v", infos)
	}

	existed, err := store.Delete(ctx, "certificates/2026/a.json")
	if err != nil || !existed {
		t.Fatalf("delete = %v %v", existed, err)
	}
	existed, err = store.Delete(ctx, "certificates/2026/a.json")
	if err != nil || existed {
		t.Fatalf("second delete = %v %v", existed, err)
	}
}

func TestFilesystemPresign(t *testing.T) {
	ctx := context.Background()
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	url, err := store.PresignURL(ctx, "a/b.txt", SignedURLOptions{})
	if err != nil || !strings.Contains(url, "a/b.txt") {
		t.Fatalf("presign = %q err=%v", url, err)
	}
	if _, err := store.PresignURL(ctx, "a/b.txt", SignedURLOptions{Method: "PUT"}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("PUT presign must be unsupported, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	if store.Driver() != DriverMemory {
		t.Fatalf("driver = %s", store.Driver())
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("data"), PutOptions{ContentType: "text/plain"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("again"), PutOptions{}); err == nil {
		t.Fatalf("overwrite must be rejected")
	}
	info, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "data" || info.ContentType != "text/plain" {
		t.Fatalf("got %q %+v", data, info)
	}
	if _, err := store.PresignURL(ctx, "k", SignedURLOptions{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("memory presign must be unsupported")
	}
}
