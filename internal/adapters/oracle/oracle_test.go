package oracle_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/sony/gobreaker"

	"github.com/okian/callscore/internal/adapters/oracle"
	"github.com/okian/callscore/internal/domain/model"
	"github.com/okian/callscore/internal/domain/pricing"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)

func TestStaticOracle(t *testing.T) {
	Convey("Given a static series", t, func() {
		o := oracle.NewStaticOracle()
		o.Set("aapl", t0, 100)
		o.Set("AAPL", t0.Add(48*time.Hour), 110)
		o.Set("AAPL", t0.Add(24*time.Hour), 105)
		ctx := context.Background()

		Convey("Then a lookup returns the latest point at or before the instant", func() {
			p, err := o.PriceAt(ctx, "AAPL", t0)
			So(err, ShouldBeNil)
			So(p, ShouldEqual, 100)

			p, err = o.PriceAt(ctx, "aapl", t0.Add(30*time.Hour))
			So(err, ShouldBeNil)
			So(p, ShouldEqual, 105)

			p, err = o.PriceAt(ctx, "AAPL", t0.AddDate(1, 0, 0))
			So(err, ShouldBeNil)
			So(p, ShouldEqual, 110)
		})

		Convey("Then instants before the series are unavailable", func() {
			_, err := o.PriceAt(ctx, "AAPL", t0.Add(-time.Second))
			So(errors.Is(err, model.ErrPriceUnavailable), ShouldBeTrue)
			_, err = o.PriceAt(ctx, "MSFT", t0)
			So(errors.Is(err, model.ErrPriceUnavailable), ShouldBeTrue)
		})

		Convey("Then setting the same instant replaces the price", func() {
			o.Set("AAPL", t0, 99)
			p, err := o.PriceAt(ctx, "AAPL", t0)
			So(err, ShouldBeNil)
			So(p, ShouldEqual, 99)
		})
	})
}

func TestHTTPOracle(t *testing.T) {
	Convey("Given a market-data server", t, func() {
		var hits atomic.Int32
		status := http.StatusOK
		price := 123.45
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			if r.URL.Path != "/prices/AAPL" || r.URL.Query().Get("at") != t0.Format(time.RFC3339) {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			if status != http.StatusOK {
				w.WriteHeader(status)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"symbol": "AAPL", "price": price, "at": t0})
		}))
		Reset(srv.Close)

		o, err := oracle.NewHTTPOracle(srv.URL+"/", oracle.WithBreaker(2, time.Minute), oracle.WithTimeout(time.Second))
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("When the quote exists", func() {
			p, err := o.PriceAt(ctx, "aapl", t0)

			Convey("Then the price is returned", func() {
				So(err, ShouldBeNil)
				So(p, ShouldEqual, 123.45)
			})
		})

		Convey("When the upstream has no quote", func() {
			status = http.StatusNotFound
			for i := 0; i < 4; i++ {
				_, err := o.PriceAt(ctx, "AAPL", t0)
				So(errors.Is(err, model.ErrPriceUnavailable), ShouldBeTrue)
			}

			Convey("Then the breaker stays closed", func() {
				So(hits.Load(), ShouldEqual, 4)
				So(o.BreakerState(), ShouldEqual, gobreaker.StateClosed.String())
			})
		})

		Convey("When the upstream keeps failing", func() {
			status = http.StatusInternalServerError
			for i := 0; i < 2; i++ {
				_, err := o.PriceAt(ctx, "AAPL", t0)
				So(errors.Is(err, model.ErrPriceUnavailable), ShouldBeTrue)
			}
			_, err := o.PriceAt(ctx, "AAPL", t0)

			Convey("Then the breaker opens and short-circuits", func() {
				So(errors.Is(err, model.ErrPriceUnavailable), ShouldBeTrue)
				So(errors.Is(err, gobreaker.ErrOpenState), ShouldBeTrue)
				So(hits.Load(), ShouldEqual, 2)
			})
		})

		Convey("When the quote is not positive", func() {
			price = 0
			_, err := o.PriceAt(ctx, "AAPL", t0)
			So(errors.Is(err, model.ErrPriceUnavailable), ShouldBeTrue)
		})
	})

	Convey("Given a malformed base url", t, func() {
		_, err := oracle.NewHTTPOracle("not a url")
		So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
	})
}

func TestCachedOracle(t *testing.T) {
	Convey("Given a cached oracle over a counting source", t, func() {
		now := t0.AddDate(0, 0, 10)
		when := t0
		key := oracle.CacheKey("AAPL", when)
		var calls int
		inner := pricing.OracleFunc(func(ctx context.Context, symbol string, at time.Time) (float64, error) {
			calls++
			return 101.5, nil
		})
		db, mock := redismock.NewClientMock()
		c := oracle.NewCachedOracle(inner, db, oracle.WithTTL(time.Hour), oracle.WithCacheClock(func() time.Time { return now }))
		ctx := context.Background()

		So(key, ShouldEqual, "price:AAPL:28930500")
		So(oracle.CacheKey("aapl", when.Add(59*time.Second)), ShouldEqual, key)
		So(oracle.CacheKey("AAPL", when.Add(time.Minute)), ShouldNotEqual, key)

		Convey("When the key is missing", func() {
			mock.ExpectGet(key).RedisNil()
			mock.ExpectSet(key, "101.5", time.Hour).SetVal("OK")
			p, err := c.PriceAt(ctx, "aapl", when)

			Convey("Then the source is asked and the price stored", func() {
				So(err, ShouldBeNil)
				So(p, ShouldEqual, 101.5)
				So(calls, ShouldEqual, 1)
				So(mock.ExpectationsWereMet(), ShouldBeNil)
			})
		})

		Convey("When the key is present", func() {
			mock.ExpectGet(key).SetVal("99.25")
			p, err := c.PriceAt(ctx, "AAPL", when)

			Convey("Then the source is not asked", func() {
				So(err, ShouldBeNil)
				So(p, ShouldEqual, 99.25)
				So(calls, ShouldEqual, 0)
				So(mock.ExpectationsWereMet(), ShouldBeNil)
			})
		})

		Convey("When redis is down", func() {
			mock.ExpectGet(key).SetErr(errors.New("connection refused"))
			mock.ExpectSet(key, "101.5", time.Hour).SetErr(errors.New("connection refused"))
			p, err := c.PriceAt(ctx, "AAPL", when)

			Convey("Then the lookup still succeeds", func() {
				So(err, ShouldBeNil)
				So(p, ShouldEqual, 101.5)
				So(calls, ShouldEqual, 1)
			})
		})

		Convey("When the instant is in the current minute", func() {
			p, err := c.PriceAt(ctx, "AAPL", now)

			Convey("Then redis is not touched", func() {
				So(err, ShouldBeNil)
				So(p, ShouldEqual, 101.5)
				So(mock.ExpectationsWereMet(), ShouldBeNil)
			})
		})
	})
}
