package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/e2eq/querycore/internal/qdsl"
	"github.com/e2eq/querycore/internal/service"
)

// NewParseCommand creates the parse command. It needs no schema.
func NewParseCommand(_ *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <query>",
		Short: "Parse a query and print it in canonical form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := qdsl.Parse(args[0])
			if err != nil {
				return err
			}
			a := qdsl.Analyze(root)
			fmt.Fprintln(cmd.OutOrStdout(), qdsl.Format(root))
			if len(a.ExpandPaths) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "expand: %v\n", a.ExpandPaths)
			}
			return nil
		},
	}
}

func (o *RootOptions) request(query string) service.QueryRequest {
	return service.QueryRequest{RootType: o.RootType, Query: query, Vars: o.Vars}
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <query>",
		Short: "Report the execution mode of a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireType(); err != nil {
				return err
			}
			gw, err := opts.gateway(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			res, err := gw.Plan(cmd.Context(), opts.request(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(opts *RootOptions) *cobra.Command {
	var (
		sort        string
		limit, skip int
		strict      bool
	)
	cmd := &cobra.Command{
		Use:   "compile <query>",
		Short: "Compile a query to a Mongo filter or aggregation pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireType(); err != nil {
				return err
			}
			gw, err := opts.gateway(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			req := opts.request(args[0])
			req.Sort, req.Limit, req.Skip, req.Strict = sort, limit, skip, strict
			pq, err := gw.Compile(cmd.Context(), req)
			if err != nil {
				return err
			}
			out, err := pq.Render()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&sort, "sort", "", "sort terms, e.g. createdAt.desc,refName")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results")
	cmd.Flags().IntVar(&skip, "skip", 0, "number of results to skip")
	cmd.Flags().BoolVar(&strict, "strict", false, "reject filters on unknown fields")
	return cmd
}

// NewValidateCommand creates the validate command. It fails when any
// referenced field is unknown.
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <query>",
		Short: "Check the fields a query references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireType(); err != nil {
				return err
			}
			gw, err := opts.gateway(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			errs, err := gw.Validate(cmd.Context(), opts.request(args[0]))
			if err != nil {
				return err
			}
			for _, e := range errs {
				fmt.Fprintln(cmd.OutOrStdout(), e)
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d invalid field reference(s)", len(errs))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

// NewJoinCommand creates the join command.
func NewJoinCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "join <path>",
		Short: "Resolve a relationship path to its join",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireType(); err != nil {
				return err
			}
			gw, err := opts.gateway(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			spec, err := gw.ResolveJoin(cmd.Context(), opts.RootType, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), spec)
		},
	}
}
