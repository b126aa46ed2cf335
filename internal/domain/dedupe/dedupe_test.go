package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	dedupe "github.com/okian/callscore/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()
		now := time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)
		d := dedupe.NewInMemoryDeduper(
			dedupe.WithMaxSize(3),
			dedupe.WithTTL(time.Hour),
			dedupe.WithClock(func() time.Time { return now }),
		)

		Convey("When a key is claimed for the first time", func() {
			_, state := d.Claim(ctx, "k1", "fp")
			So(state, ShouldEqual, dedupe.Claimed)
			So(d.Size(), ShouldEqual, 1)

			Convey("Then a concurrent claim sees it in flight", func() {
				_, state := d.Claim(ctx, "k1", "fp")
				So(state, ShouldEqual, dedupe.InFlight)
			})

			Convey("Then after completion the value is replayed", func() {
				d.Complete(ctx, "k1", "rec-1")
				v, state := d.Claim(ctx, "k1", "fp")
				So(state, ShouldEqual, dedupe.Completed)
				So(v, ShouldEqual, "rec-1")
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("Then a release allows a retry", func() {
				d.Release(ctx, "k1")
				So(d.Size(), ShouldEqual, 0)
				_, state := d.Claim(ctx, "k1", "fp")
				So(state, ShouldEqual, dedupe.Claimed)
			})

			Convey("Then a completed key cannot be released", func() {
				d.Complete(ctx, "k1", "rec-1")
				d.Release(ctx, "k1")
				_, state := d.Claim(ctx, "k1", "fp")
				So(state, ShouldEqual, dedupe.Completed)
			})
		})

		Convey("When a key is reused for a different request", func() {
			d.Claim(ctx, "k1", "fp")

			Convey("Then an in-flight key reports the mismatch", func() {
				_, state := d.Claim(ctx, "k1", "other")
				So(state, ShouldEqual, dedupe.Mismatch)
			})

			Convey("Then a completed key reports it without its value", func() {
				d.Complete(ctx, "k1", "rec-1")
				v, state := d.Claim(ctx, "k1", "other")
				So(state, ShouldEqual, dedupe.Mismatch)
				So(v, ShouldBeEmpty)

				v, state = d.Claim(ctx, "k1", "fp")
				So(state, ShouldEqual, dedupe.Completed)
				So(v, ShouldEqual, "rec-1")
			})

			Convey("Then an expired key is free for any request", func() {
				d.Complete(ctx, "k1", "rec-1")
				now = now.Add(2 * time.Hour)
				_, state := d.Claim(ctx, "k1", "other")
				So(state, ShouldEqual, dedupe.Claimed)
			})
		})

		Convey("When a completed key outlives the ttl", func() {
			d.Claim(ctx, "k1", "fp")
			d.Complete(ctx, "k1", "rec-1")
			now = now.Add(2 * time.Hour)

			Convey("Then it can be claimed again", func() {
				_, state := d.Claim(ctx, "k1", "fp")
				So(state, ShouldEqual, dedupe.Claimed)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When the bound is reached", func() {
			for i := 1; i <= 3; i++ {
				key := fmt.Sprintf("k%d", i)
				d.Claim(ctx, key, "fp")
				d.Complete(ctx, key, "v")
			}
			d.Claim(ctx, "k4", "fp")

			Convey("Then the oldest completed key is evicted", func() {
				So(d.Size(), ShouldEqual, 3)
				_, state := d.Claim(ctx, "k2", "fp")
				So(state, ShouldEqual, dedupe.Completed)
				_, state = d.Claim(ctx, "k1", "fp")
				So(state, ShouldEqual, dedupe.Claimed)
			})
		})

		Convey("When in-flight keys fill the bound", func() {
			d.Claim(ctx, "a", "fp")
			d.Claim(ctx, "b", "fp")
			d.Claim(ctx, "c", "fp")
			d.Complete(ctx, "b", "v")
			d.Claim(ctx, "d", "fp")

			Convey("Then a completed key is evicted before in-flight ones", func() {
				_, state := d.Claim(ctx, "a", "fp")
				So(state, ShouldEqual, dedupe.InFlight)
				_, state = d.Claim(ctx, "c", "fp")
				So(state, ShouldEqual, dedupe.InFlight)
			})
		})
	})
}

func TestInMemoryDeduperConcurrentClaims(t *testing.T) {
	Convey("Given many goroutines racing on one key", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		ctx := context.Background()

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			claimed int
		)
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, state := d.Claim(ctx, "same", "fp"); state == dedupe.Claimed {
					mu.Lock()
					claimed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one wins", func() {
			So(claimed, ShouldEqual, 1)
			So(d.Size(), ShouldEqual, 1)
		})
	})
}
