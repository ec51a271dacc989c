package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/kafka"
)

type fakeIndexer struct {
	seen map[string]bool
	err  error
}

func (f *fakeIndexer) IndexDocument(_ context.Context, doc index.Document) error {
	if f.err != nil {
		return f.err
	}
	if f.seen[doc.ID] {
		return index.ErrDocumentExists
	}
	f.seen[doc.ID] = true
	return nil
}

func TestHandleMessage(t *testing.T) {
	idx := &fakeIndexer{seen: make(map[string]bool)}
	handle := HandleMessage(idx)
	ctx := context.Background()
	msg := []byte(`{"document":{"id":"d1","type":"question","text":{"body":"hello"}}}`)

	if err := handle(ctx, []byte("d1"), msg); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := handle(ctx, []byte("d1"), msg); err != nil {
		t.Errorf("redelivery: %v", err)
	}
	if !idx.seen["d1"] {
		t.Error("document not indexed")
	}

	tests := []struct {
		name  string
		value string
	}{
		{"malformed", `{"document":`},
		{"missing id", `{"document":{"type":"question"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := handle(ctx, nil, []byte(tt.value)); !errors.Is(err, kafka.ErrPoison) {
				t.Errorf("err = %v, want ErrPoison", err)
			}
		})
	}

	boom := errors.New("disk full")
	failing := HandleMessage(&fakeIndexer{err: boom})
	if err := failing(ctx, nil, msg); !errors.Is(err, boom) || errors.Is(err, kafka.ErrPoison) {
		t.Errorf("err = %v, want retryable disk error", err)
	}
}
