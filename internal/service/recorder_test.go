package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondledger/internal/domain"
	"github.com/alanyoungcy/bondledger/internal/store/memory"
)

// fakeBus records publishes and stream appends in memory.
type fakeBus struct {
	published map[string][][]byte
	streamed  map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		published: make(map[string][][]byte),
		streamed:  make(map[string][][]byte),
	}
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *fakeBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.streamed[stream] = append(b.streamed[stream], payload)
	return nil
}

func (b *fakeBus) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func TestEventRecorderFanOut(t *testing.T) {
	audit := memory.NewAuditStore()
	bus := newFakeBus()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := NewEventRecorder(audit, bus, nil, logger)
	ctx := context.Background()

	rec.Record(ctx, domain.Event{
		ID:     "ev-1",
		Type:   domain.EventBondPurchased,
		BondID: 7,
		Actor:  common.HexToAddress("0x00000000000000000000000000000000000000c1"),
		Detail: map[string]any{"units": int64(10)},
		At:     time.Now().UTC(),
	})

	entries, err := audit.List(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Event != domain.EventBondPurchased {
		t.Errorf("audit entries = %+v", entries)
	}

	msgs := bus.published[ChannelBond]
	if len(msgs) != 1 {
		t.Fatalf("bond channel publishes = %d, want 1", len(msgs))
	}
	var ev domain.Event
	if err := json.Unmarshal(msgs[0], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.ID != "ev-1" || ev.BondID != 7 {
		t.Errorf("published event = %+v", ev)
	}

	if len(bus.streamed[EventStream]) != 1 {
		t.Errorf("stream appends = %d, want 1", len(bus.streamed[EventStream]))
	}
}

func TestEventRecorderChannelRouting(t *testing.T) {
	cases := []struct {
		event   string
		channel string
	}{
		{domain.EventBondIssued, ChannelBond},
		{domain.EventEmergencyPayout, ChannelTreasury},
		{domain.EventTreasuryLow, ChannelTreasury},
		{domain.EventPaused, ChannelAdmin},
		{domain.EventAdminChanged, ChannelAdmin},
	}
	for _, tc := range cases {
		if got := channelFor(tc.event); got != tc.channel {
			t.Errorf("channelFor(%s) = %s, want %s", tc.event, got, tc.channel)
		}
	}
}
