package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/actuation/calibration"
	"github.com/sarchlab/actuation/canpack"
)

func newFamiliesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "families",
		Short: "List the supported vehicle families and their calibration.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FAMILY\tLAYOUT\tSTEER MAX\tDELTA UP/DOWN\tCOOLDOWN\tLONGITUDINAL")

			for _, f := range calibration.Families() {
				p, err := calibration.Lookup(f)
				if err != nil {
					return err
				}

				fmt.Fprintf(w, "%s\t%s\t%d\t%d/%d\t%d\t%t\n",
					f, canpack.LayoutFor(f).Name, p.Steer.MaxValue,
					p.Steer.DeltaUp, p.Steer.DeltaDown,
					p.Engagement.CooldownTicks, p.Longitudinal)
			}

			return w.Flush()
		},
	}
}
