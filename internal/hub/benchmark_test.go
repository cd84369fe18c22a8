package hub

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rathrio/log-slurping/internal/model"
)

// BenchmarkHubBroadcast measures the cost of broadcasting to N subscribers.
func BenchmarkHubBroadcast1(b *testing.B)  { benchHubBroadcast(b, 1) }
func BenchmarkHubBroadcast5(b *testing.B)  { benchHubBroadcast(b, 5) }
func BenchmarkHubBroadcast10(b *testing.B) { benchHubBroadcast(b, 10) }

func benchHubBroadcast(b *testing.B, numSubs int) {
	h := New(make(chan model.RawLine), testOptions(true))

	// Create subscribers and drain them.
	for i := 0; i < numSubs; i++ {
		ch := h.Subscribe()
		go func() {
			for range ch {
			}
		}()
	}

	ctx := context.Background()
	r := model.Record{ID: "bench", MessageType: "lease", RemoteID: "host", Server: "dhcp01", Timestamp: time.Now()}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		r.ID = fmt.Sprintf("tx%d", i)
		_ = h.broadcast(ctx, r)
	}
	b.StopTimer()

	h.closeAll()
}
