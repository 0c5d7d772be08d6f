package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/textileio/oraclefs/api/client"
	"github.com/textileio/oraclefs/util"
)

var (
	ofsClient *client.Client

	cmdTimeout = time.Second * 10

	rootCmd = &cobra.Command{
		Use:               "ofs",
		Short:             "A client for the oraclefs file registry",
		Long:              `A client for the oraclefs file registry`,
		DisableAutoGenTag: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			err := viper.BindPFlag("serverAddress", cmd.Root().PersistentFlags().Lookup("serverAddress"))
			checkErr(err)
			err = viper.BindPFlag("token", cmd.Root().PersistentFlags().Lookup("token"))
			checkErr(err)

			target, err := util.TCPAddr(viper.GetString("serverAddress"))
			checkErr(err)
			ofsClient, err = client.NewClient(target, client.WithToken(viper.GetString("token")))
			checkErr(err)
		},
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("serverAddress", "/ip4/127.0.0.1/tcp/6006", "address of the oraclefs gateway")
	rootCmd.PersistentFlags().StringP("token", "t", "", "auth token, or the admin token for admin commands")
}

func initConfig() {
	viper.SetEnvPrefix("OFS")
	viper.AutomaticEnv()
}
