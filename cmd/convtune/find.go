package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convtune/internal/runtime"
	"github.com/samcharles93/convtune/internal/solver"
)

func findCmd() *cli.Command {
	var all bool

	return &cli.Command{
		Name:  "find",
		Usage: "Select a kernel build plan for a convolution problem",
		Flags: append(commonFlags(), append(problemFlags(),
			&cli.BoolFlag{
				Name:        "all",
				Usage:       "list every applicable solution instead of picking one",
				Destination: &all,
			})...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyCommonConfig(cmd, LoadConfig())
			log := newLogger()
			problem := problemContext()

			db, err := openDb()
			if err != nil {
				return err
			}
			catalog := solver.Catalog(problem)
			h := runtime.NewHostHandle()

			if all {
				solutions, err := solver.SearchForAllSolutions(catalog, problem, db, h, log)
				if err != nil {
					return err
				}
				return printJSON(solutions)
			}

			solution, err := solver.SearchForSolution(catalog, problem, db, h, log)
			if err != nil {
				return err
			}
			if !solution.Succeeded() {
				return fmt.Errorf("find: no applicable solver for %s", problem.Key())
			}
			return printJSON(solution)
		},
	}
}
