package cmd

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/logrusorgru/aurora"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/textileio/oraclefs/oracles"
)

func init() {
	eventsListCmd.Flags().Uint64("since", 0, "Only list events after this sequence number")
	eventsListCmd.Flags().Int("limit", 100, "Maximum number of events")
	eventsCmd.AddCommand(eventsListCmd, eventsWatchCmd)
	rootCmd.AddCommand(eventsCmd)
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Provides commands to read the event log",
	Long:  `Provides commands to read the event log`,
}

var eventsListCmd = &cobra.Command{
	Use:    "list",
	Short:  "List committed events",
	Long:   `List committed events`,
	PreRun: bindFlags,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := timeoutCtx()
		defer cancel()

		evs, err := ofsClient.Events.List(ctx, viper.GetUint64("since"), viper.GetInt("limit"))
		checkErr(err)
		data := make([][]string, len(evs))
		for i, e := range evs {
			data[i] = eventRow(e)
		}
		RenderTable(os.Stdout, eventHeader, data)
		Message("Found %d events", aurora.White(len(evs)).Bold())
	},
}

var eventsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print events as they are committed",
	Long:  `Print events as they are committed, until interrupted`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)
		go func() {
			<-interrupt
			cancel()
		}()

		ch := make(chan oracles.Event)
		errc := make(chan error, 1)
		go func() {
			errc <- ofsClient.Events.Watch(ctx, ch)
			close(ch)
		}()
		for e := range ch {
			Message("%s", strings.Join(eventRow(e), "  "))
		}
		checkErr(<-errc)
	},
}

var eventHeader = []string{"seq", "kind", "claim", "actor", "subject", "status", "amount", "time"}

func eventRow(e oracles.Event) []string {
	claim := "-"
	if e.ClaimID != oracles.EmptyClaimID {
		claim = e.ClaimID.String()
	}
	amt := "-"
	if e.Amount != nil {
		amt = amount(e.Amount)
	}
	return []string{strconv.FormatUint(e.Seq, 10), e.Kind, claim, e.Actor.String(), e.Subject.String(), e.Status, amt, when(e.Time)}
}
