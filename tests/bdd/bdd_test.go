//go:build bdd

// Package bdd runs the Gherkin scan scenarios using godog, following the
// teacher's tests/bdd harness: a TestMain-free suite (protosalvage has no
// external services to bring up) that builds a fresh TestContext per
// scenario and tears its temp directory down afterward.
//
//	go test -tags bdd -v ./tests/bdd/...
package bdd

import (
	"context"
	"os"
	"testing"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"

	"github.com/protosalvage/protosalvage/tests/bdd/steps"
)

func TestFeatures(t *testing.T) {
	opts := godog.Options{
		Format:   "pretty",
		Output:   colors.Colored(os.Stdout),
		Paths:    []string{"features"},
		TestingT: t,
	}

	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			dir, err := os.MkdirTemp("", "protosalvage-bdd-*")
			if err != nil {
				t.Fatalf("failed to create scenario temp dir: %v", err)
			}
			tc := steps.NewTestContext(dir)

			ctx.After(func(gctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
				os.RemoveAll(tc.Dir)
				return gctx, nil
			})

			steps.RegisterScanSteps(ctx, tc)
		},
		Options: &opts,
	}

	if suite.Run() != 0 {
		t.Fatal("BDD tests failed")
	}
}
