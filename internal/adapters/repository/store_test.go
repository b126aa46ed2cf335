package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/callscore/internal/adapters/repository"
	"github.com/okian/callscore/internal/domain/model"
	"github.com/okian/callscore/internal/domain/store"
	. "github.com/smartystreets/goconvey/convey"
)

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%03d", prefix, n)
	}
}

type storeFactory struct {
	name string
	open func(t *testing.T) store.Store
}

func factories() []storeFactory {
	return []storeFactory{
		{
			name: "memory",
			open: func(t *testing.T) store.Store {
				return repository.NewMemoryStore(repository.WithIDGenerator(sequentialIDs("id")))
			},
		},
		{
			name: "badger",
			open: func(t *testing.T) store.Store {
				s, err := repository.OpenBadgerStore(t.TempDir(), repository.WithIDGenerator(sequentialIDs("id")))
				if err != nil {
					t.Fatalf("open badger store: %v", err)
				}
				return s
			},
		},
	}
}

var base = time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)

func TestStoreContract(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			Convey("Given an empty "+f.name+" store", t, func() {
				ctx := context.Background()
				s := f.open(t)
				Reset(func() { _ = s.Close() })

				Convey("When analysts are inserted", func() {
					for i, score := range []float64{50, 70, 70, 30} {
						a := &model.Analyst{
							DisplayName:     fmt.Sprintf("A%d", i),
							Specializations: []string{"Technology"},
							Score:           score,
							LifetimeCalls:   i,
							Tier:            model.TierNew,
							CreatedAt:       base,
						}
						So(s.InsertAnalyst(ctx, a), ShouldBeNil)
						So(a.ID, ShouldNotBeEmpty)
					}

					Convey("Then they can be read back", func() {
						a, err := s.GetAnalyst(ctx, "id-001")
						So(err, ShouldBeNil)
						So(a.DisplayName, ShouldEqual, "A0")
						So(a.Specializations, ShouldResemble, []string{"Technology"})

						n, err := s.CountAnalysts(ctx)
						So(err, ShouldBeNil)
						So(n, ShouldEqual, 4)
					})

					Convey("Then unknown ids are not found", func() {
						_, err := s.GetAnalyst(ctx, "missing")
						So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
						_, err = s.AnalystRank(ctx, "missing")
						So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
					})

					Convey("Then listing by score is descending with id tie-break", func() {
						list, err := s.ListAnalysts(ctx, store.AnalystQuery{OrderBy: store.OrderByScore, Limit: 3})
						So(err, ShouldBeNil)
						So(ids(list), ShouldResemble, []string{"id-002", "id-003", "id-001"})
					})

					Convey("Then listing by lifetime calls is descending", func() {
						list, err := s.ListAnalysts(ctx, store.AnalystQuery{OrderBy: store.OrderByLifetimeCalls})
						So(err, ShouldBeNil)
						So(ids(list), ShouldResemble, []string{"id-004", "id-003", "id-002", "id-001"})
					})

					Convey("Then an unknown order is rejected", func() {
						_, err := s.ListAnalysts(ctx, store.AnalystQuery{OrderBy: "name"})
						So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
					})

					Convey("Then ranks follow competition ranking", func() {
						for id, want := range map[string]int{"id-002": 1, "id-003": 1, "id-001": 3, "id-004": 4} {
							r, err := s.AnalystRank(ctx, id)
							So(err, ShouldBeNil)
							So(r, ShouldEqual, want)
						}
					})

					Convey("Then a transactional score change moves the rank", func() {
						err := s.RunInTx(ctx, func(tx store.Tx) error {
							a, err := tx.GetAnalyst("id-004")
							if err != nil {
								return err
							}
							a.Score = 90
							return tx.PutAnalyst(a)
						})
						So(err, ShouldBeNil)

						r, err := s.AnalystRank(ctx, "id-004")
						So(err, ShouldBeNil)
						So(r, ShouldEqual, 1)
					})
				})

				Convey("When recommendations are inserted", func() {
					seed := []model.Recommendation{
						{AnalystID: "a1", Ticker: "AAPL", Action: model.ActionBuy, T0: base.Add(2 * time.Hour), CreatedAt: base.Add(2 * time.Hour)},
						{AnalystID: "a2", Ticker: "AAPL", Action: model.ActionSell, T0: base, CreatedAt: base},
						{AnalystID: "a1", Ticker: "MSFT", Action: model.ActionHold, T0: base.Add(time.Hour), CreatedAt: base.Add(time.Hour)},
					}
					for i := range seed {
						seed[i].Status = model.StatusOpen
						seed[i].HorizonDays = 30
						seed[i].P0 = 100
						So(s.InsertRecommendation(ctx, &seed[i]), ShouldBeNil)
					}

					Convey("Then the default order is by entry time", func() {
						recs, err := s.FindRecommendations(ctx, store.RecommendationFilter{Status: model.StatusOpen})
						So(err, ShouldBeNil)
						So(recIDs(recs), ShouldResemble, []string{"id-002", "id-003", "id-001"})
					})

					Convey("Then filters combine", func() {
						recs, err := s.FindRecommendations(ctx, store.RecommendationFilter{
							Ticker:       "AAPL",
							CreatedSince: base.Add(time.Minute),
						})
						So(err, ShouldBeNil)
						So(recIDs(recs), ShouldResemble, []string{"id-001"})

						recs, err = s.FindRecommendations(ctx, store.RecommendationFilter{AnalystID: "a1", NewestFirst: true, Limit: 1})
						So(err, ShouldBeNil)
						So(recIDs(recs), ShouldResemble, []string{"id-001"})
					})

					Convey("Then closing inside a transaction writes one evaluation", func() {
						err := s.RunInTx(ctx, func(tx store.Tx) error {
							r, err := tx.GetRecommendation("id-002")
							if err != nil {
								return err
							}
							r.Status = model.StatusClosed
							r.ClosedAt = base.AddDate(0, 1, 0)
							if err := tx.PutRecommendation(r); err != nil {
								return err
							}
							again, err := tx.GetRecommendation("id-002")
							if err != nil {
								return err
							}
							if again.Status != model.StatusClosed {
								return errors.New("transaction does not read its own writes")
							}
							return tx.InsertEvaluation(&model.Evaluation{
								RecommendationID: r.ID,
								AnalystID:        r.AnalystID,
								Outcome:          model.OutcomeCorrect,
								CreatedAt:        r.ClosedAt,
							})
						})
						So(err, ShouldBeNil)

						open, err := s.FindRecommendations(ctx, store.RecommendationFilter{Status: model.StatusOpen})
						So(err, ShouldBeNil)
						So(recIDs(open), ShouldResemble, []string{"id-003", "id-001"})

						evals, err := s.FindEvaluations(ctx, store.EvaluationFilter{RecommendationID: "id-002"})
						So(err, ShouldBeNil)
						So(evals, ShouldHaveLength, 1)
						So(evals[0].ID, ShouldNotBeEmpty)

						Convey("And a second evaluation conflicts", func() {
							err := s.RunInTx(ctx, func(tx store.Tx) error {
								return tx.InsertEvaluation(&model.Evaluation{RecommendationID: "id-002"})
							})
							So(errors.Is(err, model.ErrConflict), ShouldBeTrue)
						})
					})

					Convey("Then a failed transaction leaves no trace", func() {
						boom := errors.New("boom")
						err := s.RunInTx(ctx, func(tx store.Tx) error {
							r, err := tx.GetRecommendation("id-001")
							if err != nil {
								return err
							}
							r.Status = model.StatusClosed
							if err := tx.PutRecommendation(r); err != nil {
								return err
							}
							return boom
						})
						So(errors.Is(err, boom), ShouldBeTrue)

						r, err := s.GetRecommendation(ctx, "id-001")
						So(err, ShouldBeNil)
						So(r.Status, ShouldEqual, model.StatusOpen)
					})
				})
			})
		})
	}
}

func TestOpenBadgerStoreInMemory(t *testing.T) {
	Convey("Given an in-memory badger store", t, func() {
		s, err := repository.OpenBadgerStore("")
		So(err, ShouldBeNil)
		defer s.Close()

		a := &model.Analyst{DisplayName: "Mem", Score: 50}
		So(s.InsertAnalyst(context.Background(), a), ShouldBeNil)

		Convey("Then generated ids are used", func() {
			got, err := s.GetAnalyst(context.Background(), a.ID)
			So(err, ShouldBeNil)
			So(got.DisplayName, ShouldEqual, "Mem")
		})
	})
}

func ids(list []model.Analyst) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.ID
	}
	return out
}

func recIDs(list []model.Recommendation) []string {
	out := make([]string, len(list))
	for i, r := range list {
		out[i] = r.ID
	}
	return out
}
