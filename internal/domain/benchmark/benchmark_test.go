package benchmark_test

import (
	"testing"

	"github.com/okian/callscore/internal/domain/benchmark"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTableResolve(t *testing.T) {
	Convey("Given the default sector table", t, func() {
		table := benchmark.DefaultTable()

		Convey("Then known sectors map to their index in any case or spacing", func() {
			So(table.Resolve("Technology"), ShouldEqual, "XLK")
			So(table.Resolve("  financials "), ShouldEqual, "XLF")
			So(table.Resolve("health   care"), ShouldEqual, "XLV")
		})

		Convey("Then unknown or missing sectors fall back to the broad market", func() {
			So(table.Resolve(""), ShouldEqual, benchmark.DefaultSymbol)
			So(table.Resolve("Crypto"), ShouldEqual, benchmark.DefaultSymbol)
		})
	})

	Convey("Given a substituted table", t, func() {
		table := benchmark.NewTable(map[string]string{"semis": " soxx ", "": "IGNORED", "blank": ""}, "vti")

		So(table.Resolve("SEMIS"), ShouldEqual, "SOXX")
		So(table.Resolve("blank"), ShouldEqual, "VTI")
		So(table.Fallback(), ShouldEqual, "VTI")
		So(len(table.Sectors()), ShouldEqual, 1)
	})

	Convey("Given the zero table", t, func() {
		var table benchmark.Table
		So(table.Resolve("Technology"), ShouldEqual, benchmark.DefaultSymbol)
	})
}
