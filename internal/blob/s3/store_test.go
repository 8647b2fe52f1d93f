package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"resultscore/internal/blob"
)

func TestS3StoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	if store.Driver() != blob.DriverS3 {
		t.Fatalf("driver = %s", store.Driver())
	}

	body := `{"certificate_number":"RSC-L-2026-000001"}`
	info, err := store.Put(ctx, "certificates/2026/cert.json", strings.NewReader(body), blob.PutOptions{
		ContentType: "application/json",
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "certificates/2026/cert.json" {
		t.Fatalf("info = %+v", info)
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
	if got.ContentType != "application/json" {
		t.Fatalf("content type = %s", got.ContentType)
	}

	head, err := store.Head(ctx, info.Key)
	if err != nil || head.Size != int64(len(body)) {
		t.Fatalf("head = %+v err=%v", head, err)
	}
}

func TestS3PutIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	if _, err := store.Put(ctx, "k", strings.NewReader("one"), blob.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("two"), blob.PutOptions{}); err == nil {
		t.Fatalf("overwrite must be rejected")
	}
}

func TestS3List(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	for _, key := range []string{"certificates/a.json", "certificates/b.json", "reports/r.json"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), blob.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "certificates/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "certificates/a.json" || infos[1].Key != "certificates/b.json" {
		t.Fatalf("list = %+v", infos)
	}
}

func TestS3Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	if _, err := store.Put(ctx, "k", strings.NewReader("x"), blob.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Head(ctx, "k"); err == nil {
		t.Fatalf("deleted object must not resolve")
	}
}

func TestS3PresignURL(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	url, err := store.PresignURL(ctx, "certificates/a.json", blob.SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(url, "certificates/a.json") || !strings.Contains(url, "X-Amz-Signature") {
		t.Fatalf("url = %s", url)
	}
}
