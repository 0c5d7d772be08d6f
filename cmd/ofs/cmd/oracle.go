package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/spin"
	pb "github.com/cheggaaa/pb/v3"
	"github.com/logrusorgru/aurora"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/oracles/settlement"
)

func init() {
	roundsListCmd.Flags().Bool("settleable", false, "Only list rounds that can be settled now")
	roundsCmd.AddCommand(roundsGetCmd, roundsListCmd, roundsRespondCmd, roundsFinalizeCmd, roundsSettleCmd, roundsWaitCmd)

	ipnsCmd.AddCommand(ipnsRespondCmd, ipnsFinalizeCmd, ipnsSettleCmd)

	jobsListCmd.Flags().Bool("active", false, "List every job blocking a transfer, not only available ones")
	jobsCmd.AddCommand(jobsGetCmd, jobsListCmd, jobsParticipateCmd, jobsDoneCmd)

	rootCmd.AddCommand(roundsCmd, jobsCmd)
}

var roundsCmd = &cobra.Command{
	Use:   "rounds",
	Short: "Provides commands to verify claims and settle rounds",
	Long:  `Provides commands to verify claims and settle rounds`,
}

var roundsGetCmd = &cobra.Command{
	Use:   "get [claim]",
	Short: "Show the verification round of a claim",
	Long:  `Show the verification round of a claim`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := timeoutCtx()
		defer cancel()

		r, err := ofsClient.Oracle.Round(ctx, parseClaimID(args[0]))
		checkErr(err)
		RenderTable(os.Stdout, roundHeader, roundRows([]oracles.Round{r}))
		data := make([][]string, len(r.Votes))
		for i, v := range r.Votes {
			data[i] = []string{strconv.Itoa(i), v.Voter.String(), vote(v.Accept), strconv.FormatBool(v.Finalized), when(v.Time)}
		}
		if len(data) > 0 {
			cmd.Println()
			RenderTable(os.Stdout, []string{"index", "voter", "vote", "finalized", "time"}, data)
		}
	},
}

var roundsListCmd = &cobra.Command{
	Use:    "list",
	Short:  "List unsettled rounds",
	Long:   `List unsettled rounds`,
	PreRun: bindFlags,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := timeoutCtx()
		defer cancel()

		var rs []oracles.Round
		var err error
		if viper.GetBool("settleable") {
			rs, err = ofsClient.Oracle.SettleableRounds(ctx)
		} else {
			rs, err = ofsClient.Oracle.UnsettledRounds(ctx)
		}
		checkErr(err)
		RenderTable(os.Stdout, roundHeader, roundRows(rs))
		Message("Found %d rounds", aurora.White(len(rs)).Bold())
	},
}

var roundsRespondCmd = &cobra.Command{
	Use:   "respond [claim] [accept|reject]",
	Short: "Vote on a claim as a verifier",
	Long:  `Vote on a claim as a verifier`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		idx, err := ofsClient.Oracle.Respond(ctx, parseClaimID(args[0]), parseVote(args[1]))
		checkErr(err)
		Success("Committed vote with index %s, finalize it after the response window", aurora.White(idx).Bold())
	},
}

var roundsFinalizeCmd = &cobra.Command{
	Use:   "finalize [claim] [index]",
	Short: "Finalize your vote on a claim",
	Long:  `Finalize your vote on a claim`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		checkErr(ofsClient.Oracle.Finalize(ctx, parseClaimID(args[0]), parseIndex(args[1])))
		Success("Finalized vote %s", args[1])
	},
}

var roundsSettleCmd = &cobra.Command{
	Use:   "settle [claim]",
	Short: "Settle a finished round as a timeout officer",
	Long:  `Settle a finished round as a timeout officer`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		s := spin.New("%s Settling round...")
		s.Start()
		r, d, err := ofsClient.Oracle.Settle(ctx, parseClaimID(args[0]))
		s.Stop()
		checkErr(err)
		renderSettlement(r, d)
	},
}

var roundsWaitCmd = &cobra.Command{
	Use:   "wait [claim]",
	Short: "Wait for the current window of a round to close",
	Long:  `Wait for the current window of a round to close, showing its progress`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := timeoutCtx()
		r, err := ofsClient.Oracle.Round(ctx, parseClaimID(args[0]))
		cancel()
		checkErr(err)

		var start, end time.Time
		switch r.Status {
		case oracles.Open:
			start, end = r.OpenedAt, r.ResponseDeadline
			Message("Waiting for the response window of claim %s", r.ClaimID)
		case oracles.AwaitingFinalize:
			start, end = r.ResponseDeadline, r.FinalizeDeadline
			Message("Waiting for the finalize window of claim %s", r.ClaimID)
		default:
			Message("Round of claim %s is %s", r.ClaimID, aurora.White(r.Status).Bold())
			return
		}
		waitUntil(start, end)
		Success("Window closed")
	},
}

var ipnsRespondCmd = &cobra.Command{
	Use:   "respond [owner] [accept|reject]",
	Short: "Vote on the current IPNS claim of an owner",
	Long:  `Vote on the current IPNS claim of an owner`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		idx, err := ofsClient.Oracle.RespondIPNS(ctx, oracles.Address(args[0]), parseVote(args[1]))
		checkErr(err)
		Success("Committed vote with index %s", aurora.White(idx).Bold())
	},
}

var ipnsFinalizeCmd = &cobra.Command{
	Use:   "finalize [owner] [index]",
	Short: "Finalize your vote on the current IPNS claim of an owner",
	Long:  `Finalize your vote on the current IPNS claim of an owner`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		checkErr(ofsClient.Oracle.FinalizeIPNS(ctx, oracles.Address(args[0]), parseIndex(args[1])))
		Success("Finalized vote %s", args[1])
	},
}

var ipnsSettleCmd = &cobra.Command{
	Use:   "settle [owner]",
	Short: "Settle the round of the current IPNS claim of an owner",
	Long:  `Settle the round of the current IPNS claim of an owner`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		r, d, err := ofsClient.Oracle.SettleIPNS(ctx, oracles.Address(args[0]))
		checkErr(err)
		renderSettlement(r, d)
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Provides commands to perform re-encryption jobs",
	Long:  `Provides commands to perform re-encryption jobs`,
}

var jobsGetCmd = &cobra.Command{
	Use:   "get [claim]",
	Short: "Show the re-encryption job of a claim",
	Long:  `Show the re-encryption job of a claim`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := timeoutCtx()
		defer cancel()

		j, err := ofsClient.Oracle.Job(ctx, parseClaimID(args[0]))
		checkErr(err)
		RenderTable(os.Stdout, jobHeader, jobRows([]oracles.Job{j}))
	},
}

var jobsListCmd = &cobra.Command{
	Use:    "list",
	Short:  "List re-encryption jobs nobody holds",
	Long:   `List re-encryption jobs nobody holds`,
	PreRun: bindFlags,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := timeoutCtx()
		defer cancel()

		var js []oracles.Job
		var err error
		if viper.GetBool("active") {
			js, err = ofsClient.Oracle.ActiveJobs(ctx)
		} else {
			js, err = ofsClient.Oracle.AvailableJobs(ctx)
		}
		checkErr(err)
		RenderTable(os.Stdout, jobHeader, jobRows(js))
		Message("Found %d jobs", aurora.White(len(js)).Bold())
	},
}

var jobsParticipateCmd = &cobra.Command{
	Use:   "participate [claim]",
	Short: "Claim a re-encryption job as a reencryptor",
	Long:  `Claim a re-encryption job as a reencryptor`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		j, err := ofsClient.Oracle.Participate(ctx, parseClaimID(args[0]))
		checkErr(err)
		Success("Claimed job of claim %s, reward %s", j.ClaimID, aurora.White(amount(j.Reward)).Bold())
	},
}

var jobsDoneCmd = &cobra.Command{
	Use:   "done [claim]",
	Short: "Complete a claimed re-encryption job and collect its reward",
	Long:  `Complete a claimed re-encryption job and collect its reward`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mustToken()
		ctx, cancel := timeoutCtx()
		defer cancel()

		j, err := ofsClient.Oracle.Done(ctx, parseClaimID(args[0]))
		checkErr(err)
		Success("Completed job of claim %s, earned %s", j.ClaimID, aurora.White(amount(j.Reward)).Bold())
	},
}

func renderSettlement(r oracles.Round, d settlement.Distribution) {
	Success("Settled claim %s as %s", r.ClaimID, aurora.White(r.Outcome).Bold())
	data := make([][]string, 0, len(d.Voters)+2)
	for _, s := range d.Voters {
		data = append(data, []string{s.To.String(), "verifier", amount(s.Amount)})
	}
	data = append(data, []string{r.SettledBy.String(), "officer", amount(d.Officer)})
	data = append(data, []string{r.Funder.String(), "refund", amount(d.Refund)})
	RenderTable(os.Stdout, []string{"to", "share", "amount"}, data)
	if d.Late {
		Message("%v", aurora.Yellow("Settled after the grace period"))
	}
}

// waitUntil shows a progress bar of the window between start and end.
func waitUntil(start, end time.Time) {
	total := int64(end.Sub(start).Seconds())
	bar := pb.StartNew(int(total))
	defer bar.Finish()
	ctx, cancel := context.WithDeadline(context.Background(), end)
	defer cancel()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		bar.SetCurrent(int64(time.Since(start).Seconds()))
		select {
		case <-ctx.Done():
			bar.SetCurrent(total)
			return
		case <-ticker.C:
		}
	}
}

func vote(accept bool) string {
	if accept {
		return "accept"
	}
	return "reject"
}

func parseVote(s string) bool {
	switch s {
	case "accept", "yes", "true":
		return true
	case "reject", "no", "false":
		return false
	}
	Fatal(fmt.Errorf("vote must be accept or reject, got %q", s))
	return false
}

func parseIndex(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		Fatal(fmt.Errorf("invalid vote index %q", s))
	}
	return n
}
