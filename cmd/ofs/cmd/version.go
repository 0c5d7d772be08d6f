package cmd

import (
	"github.com/logrusorgru/aurora"
	"github.com/spf13/cobra"
	"github.com/textileio/oraclefs/buildinfo"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information for ofs and the connected daemon",
	Long:  `Display version information for ofs and the connected daemon`,
	Run: func(cmd *cobra.Command, args []string) {
		Message("ofs %s", aurora.White(buildinfo.Get().Short()).Bold())

		ctx, cancel := timeoutCtx()
		defer cancel()
		info, err := ofsClient.BuildInfo(ctx)
		checkErr(err)
		Message("oraclefsd %s", aurora.White(info.Short()).Bold())

		p, err := ofsClient.Params(ctx)
		checkErr(err)
		Message("response window %s, finalize window %s, min votes %d", p.ResponseWindow, p.FinalizeWindow, p.MinVotes)
	},
}
