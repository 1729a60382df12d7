// Package cli implements qlc, the query language command line tool.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/e2eq/querycore/internal/metadata"
	"github.com/e2eq/querycore/internal/schema"
	"github.com/e2eq/querycore/internal/service"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	SchemaPath string
	RootType   string
	Vars       map[string]string
	Verbose    bool
}

// NewRootCommand creates the root command for qlc.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "qlc",
		Short:         "Inspect, validate and compile queries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.SchemaPath, "schema", "schema", "schema descriptor file or directory")
	cmd.PersistentFlags().StringVarP(&opts.RootType, "type", "t", "", "root entity type")
	cmd.PersistentFlags().StringToStringVar(&opts.Vars, "var", nil, "query variable, name=value (repeatable)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewParseCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewJoinCommand(opts))

	return cmd
}

// gateway loads the schema and builds a gateway without a store.
func (o *RootOptions) gateway(ctx context.Context, errOut io.Writer) (*service.Gateway, error) {
	log := logrus.New()
	log.SetOutput(errOut)
	log.SetLevel(logrus.WarnLevel)
	if o.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	schemas := schema.NewRegistry()
	if err := schemas.LoadYAML(ctx, o.SchemaPath); err != nil {
		return nil, err
	}
	log.Debugf("schema loaded: %d entity types", schemas.EntityCount())

	meta := metadata.New(schemas, log.WithField("component", "metadata"))
	return service.NewGateway(meta, service.WithLogger(log.WithField("component", "gateway"))), nil
}

func (o *RootOptions) requireType() error {
	if o.RootType == "" {
		return fmt.Errorf("--type is required")
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
