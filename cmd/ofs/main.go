package main

import (
	"github.com/textileio/oraclefs/cmd/ofs/cmd"
)

func main() {
	cmd.Execute()
}
