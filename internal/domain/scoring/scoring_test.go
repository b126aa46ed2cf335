package scoring_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/callscore/internal/domain/model"
	scoring "github.com/okian/callscore/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

const day = 24 * time.Hour

func TestClassify(t *testing.T) {
	Convey("Given the default thresholds", t, func() {
		p := scoring.DefaultParams()

		Convey("When the action is BUY", func() {
			So(p.Classify(model.ActionBuy, 0.025), ShouldEqual, model.OutcomeCorrect)
			So(p.Classify(model.ActionBuy, -0.025), ShouldEqual, model.OutcomeIncorrect)
			So(p.Classify(model.ActionBuy, 0.0), ShouldEqual, model.OutcomeNeutral)
			So(p.Classify(model.ActionBuy, 0.02), ShouldEqual, model.OutcomeCorrect)
			So(p.Classify(model.ActionBuy, -0.02), ShouldEqual, model.OutcomeIncorrect)
		})

		Convey("When the action is SELL", func() {
			So(p.Classify(model.ActionSell, -0.025), ShouldEqual, model.OutcomeCorrect)
			So(p.Classify(model.ActionSell, 0.025), ShouldEqual, model.OutcomeIncorrect)
			So(p.Classify(model.ActionSell, 0.005), ShouldEqual, model.OutcomeNeutral)
		})

		Convey("When the action is HOLD", func() {
			So(p.Classify(model.ActionHold, 0.0), ShouldEqual, model.OutcomeCorrect)
			So(p.Classify(model.ActionHold, 0.02), ShouldEqual, model.OutcomeNeutral)
			So(p.Classify(model.ActionHold, 0.01), ShouldEqual, model.OutcomeNeutral)
			So(p.Classify(model.ActionHold, -0.01), ShouldEqual, model.OutcomeNeutral)

			Convey("Then no alpha ever yields INCORRECT", func() {
				for alpha := -1.0; alpha <= 1.0; alpha += 0.001 {
					So(p.Classify(model.ActionHold, alpha), ShouldNotEqual, model.OutcomeIncorrect)
				}
			})
		})

		Convey("When thresholds are substituted", func() {
			wide := p
			wide.PositiveAlpha = 0.05
			wide.NegativeAlpha = -0.05
			So(wide.Validate(), ShouldBeNil)

			Convey("Then classification follows the new bounds", func() {
				So(wide.Classify(model.ActionBuy, 0.025), ShouldEqual, model.OutcomeNeutral)
				So(wide.Classify(model.ActionBuy, 0.06), ShouldEqual, model.OutcomeCorrect)
			})
		})
	})
}

func TestOutcomeValue(t *testing.T) {
	Convey("Outcome values are 1, 0.5 and 0", t, func() {
		So(scoring.OutcomeValue(model.OutcomeCorrect), ShouldEqual, 1.0)
		So(scoring.OutcomeValue(model.OutcomeNeutral), ShouldEqual, 0.5)
		So(scoring.OutcomeValue(model.OutcomeIncorrect), ShouldEqual, 0.0)
	})
}

func TestExpectedProb(t *testing.T) {
	Convey("Given the Elo expectation", t, func() {
		p := scoring.DefaultParams()

		Convey("Then a pivot score is a coin flip", func() {
			So(p.ExpectedProb(50), ShouldAlmostEqual, 0.5, 1e-12)
		})

		Convey("Then twenty points above the pivot is ten-to-one", func() {
			So(p.ExpectedProb(70), ShouldAlmostEqual, 10.0/11.0, 1e-12)
		})

		Convey("Then it is strictly increasing across the score range", func() {
			prev := p.ExpectedProb(0)
			for s := 0.5; s <= 100; s += 0.5 {
				cur := p.ExpectedProb(s)
				So(cur, ShouldBeGreaterThan, prev)
				prev = cur
			}
		})
	})
}

func TestAssess(t *testing.T) {
	Convey("Given an analyst at 50 with a 0.7 confidence call held 30 days", t, func() {
		p := scoring.DefaultParams()
		in := scoring.Input{
			Action:     model.ActionBuy,
			Confidence: 0.7,
			Score:      50,
			P0:         100,
			P1:         105,
			Bench0:     100,
			Bench1:     102,
			Elapsed:    30 * day,
		}

		Convey("When the call beats its benchmark by three percent", func() {
			a, err := p.Assess(in)
			So(err, ShouldBeNil)

			Convey("Then returns and alpha are computed against entry prices", func() {
				So(a.AbsReturn, ShouldAlmostEqual, 0.05, 1e-12)
				So(a.BenchReturn, ShouldAlmostEqual, 0.02, 1e-12)
				So(a.Alpha, ShouldAlmostEqual, 0.03, 1e-12)
				So(a.Outcome, ShouldEqual, model.OutcomeCorrect)
			})

			Convey("Then the update matches the reference scenario", func() {
				So(a.Freshness, ShouldAlmostEqual, math.Exp(-30.0/180.0), 1e-12)
				So(a.Freshness, ShouldAlmostEqual, 0.8465, 1e-4)
				So(a.K, ShouldAlmostEqual, 4.317, 1e-3)
				So(a.Expected, ShouldAlmostEqual, 0.5, 1e-12)
				So(a.Delta, ShouldAlmostEqual, 2.16, 1e-2)
				So(a.NewScore, ShouldAlmostEqual, 52.16, 1e-2)
			})
		})

		Convey("When an entry price is not positive", func() {
			in.Bench0 = 0
			_, err := p.Assess(in)

			Convey("Then the item is reported as unpriceable", func() {
				So(errors.Is(err, model.ErrPriceUnavailable), ShouldBeTrue)
			})
		})

		Convey("When the score would leave the allowed range", func() {
			hot := p
			hot.BaseK = 500
			high := in
			high.Score = 99.5
			a, err := hot.Assess(high)
			So(err, ShouldBeNil)
			So(a.NewScore, ShouldEqual, 100)

			low := in
			low.Score = 0.5
			low.P1 = 90
			a, err = hot.Assess(low)
			So(err, ShouldBeNil)
			So(a.Outcome, ShouldEqual, model.OutcomeIncorrect)
			So(a.NewScore, ShouldEqual, 0)
		})

		Convey("When confidence is outside [0,1]", func() {
			So(p.KFactor(1, 3), ShouldEqual, p.KFactor(1, 1))
			So(p.KFactor(1, -2), ShouldEqual, p.KFactor(1, 0))
			So(p.KFactor(1, 0), ShouldEqual, p.BaseK/2)
		})
	})
}

func TestTier(t *testing.T) {
	Convey("Given the default tier thresholds", t, func() {
		p := scoring.DefaultParams()

		So(p.Tier(95, 4), ShouldEqual, model.TierNew)
		So(p.Tier(80, 5), ShouldEqual, model.TierTopTier)
		So(p.Tier(79.9, 12), ShouldEqual, model.TierRising)
		So(p.Tier(65, 5), ShouldEqual, model.TierRising)

		Convey("Then an experienced low scorer is labeled NEW again", func() {
			So(p.Tier(40, 50), ShouldEqual, model.TierNew)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given scoring params", t, func() {
		So(scoring.DefaultParams().Validate(), ShouldBeNil)

		for _, mutate := range []func(*scoring.Params){
			func(p *scoring.Params) { p.NegativeAlpha = p.PositiveAlpha },
			func(p *scoring.Params) { p.HoldLower = 0.5 },
			func(p *scoring.Params) { p.DecayDays = 0 },
			func(p *scoring.Params) { p.EloScale = 0 },
			func(p *scoring.Params) { p.MaxScore = p.MinScore },
			func(p *scoring.Params) { p.InitialScore = 101 },
			func(p *scoring.Params) { p.DefaultConfidence = 1.5 },
			func(p *scoring.Params) { p.DefaultHorizonDays = 0 },
			func(p *scoring.Params) { p.RisingScore = 90 },
		} {
			p := scoring.DefaultParams()
			mutate(&p)
			So(errors.Is(p.Validate(), scoring.ErrInvalidParams), ShouldBeTrue)
		}
	})
}
