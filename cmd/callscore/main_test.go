package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

const testConfig = `
log_level: error
store:
  driver: badger
  path: %s
oracle:
  driver: static
  static_prices:
    AAPL:
      - at: "2025-01-06T15:00:00Z"
        price: 100
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "callscore.yaml")
	body := []byte(fmt.Sprintf(testConfig, filepath.Join(dir, "data")))
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI(t *testing.T) {
	convey.Convey("Given a config file with a badger store", t, func() {
		t.Setenv("CALLSCORE_CONFIG", "")
		cfgPath := writeConfig(t)

		convey.Convey("When listing the leaderboard of an empty store", func() {
			out, err := run("--config", cfgPath, "analysts", "top", "-n", "5")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "SCORE")
		})

		convey.Convey("When asking consensus with no calls", func() {
			out, err := run("--config", cfgPath, "consensus", "aapl")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldStartWith, "AAPL HOLD confidence=0.000 participants=0")
		})

		convey.Convey("When running one evaluation pass", func() {
			out, err := run("--config", cfgPath, "evaluate", "--at", "2025-03-01T00:00:00Z")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldStartWith, "evaluated=0 pending=0 skipped=0 errors=0")
		})

		convey.Convey("When the evaluation instant is malformed", func() {
			_, err := run("--config", cfgPath, "evaluate", "--at", "tomorrow")
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When the evaluation instant is in the future", func() {
			_, err := run("--config", cfgPath, "evaluate", "--at", "2999-01-01T00:00:00Z")
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "future")
		})

		convey.Convey("When consensus is called without a ticker", func() {
			_, err := run("--config", cfgPath, "consensus")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})

	convey.Convey("Given a missing config file", t, func() {
		t.Setenv("CALLSCORE_CONFIG", "")
		_, err := run("--config", filepath.Join(t.TempDir(), "nope.yaml"), "analysts", "top")
		convey.So(err, convey.ShouldNotBeNil)
	})
}
