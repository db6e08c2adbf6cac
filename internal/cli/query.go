package cli

import (
	client "github.com/bhoriuchi/graphql-go-client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newQueryCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "query [document]",
		Short: "run a query or mutation over http",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			doc, err := readDocument(cmd, args)
			if err != nil {
				return err
			}

			log, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}

			c, err := newClient(cfg, log, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Query(cmd.Context(), &client.Request{
				Query:         doc,
				OperationName: cfg.OperationName,
				Variables:     cfg.Variables,
			}, nil)
			if res != nil {
				if perr := printResult(cmd, res); perr != nil {
					return perr
				}
			}
			return err
		},
	}
}
