package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/andresmejia3/backdrop/internal/effects"
	"github.com/andresmejia3/backdrop/internal/segment"
	"github.com/spf13/cobra"
)

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List effect modes and segmentation models",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printModes(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(modesCmd)
}

func printModes(out io.Writer) error {
	aliases := map[effects.Mode][]string{}
	for _, name := range []string{"normal", "blur", "virtual", "animated", "snowflakesblur", "external"} {
		m, _, err := effects.ParseMode(name)
		if err != nil {
			return err
		}
		aliases[m] = append(aliases[m], name)
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "MODE\tALIASES\tBACKGROUND")
	fmt.Fprintln(w, "----\t-------\t----------")
	for _, m := range effects.Modes() {
		names := aliases[m]
		sort.Strings(names)
		needs := "-"
		if m.NeedsSource() {
			needs = "required"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", m, strings.Join(names, ", "), needs)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "MODEL\tINPUT\tOUTPUT\tFILE")
	fmt.Fprintln(w, "-----\t-----\t------\t----")
	for _, m := range segment.Models {
		fmt.Fprintf(w, "%s\t%dx%d\t%s\t%s\n", m.Name, m.Width, m.Height, m.Kind, m.File)
	}
	return w.Flush()
}
