// Command tokengen mints an agent access token signed with the server secret.
//
//	tokengen -agent 3f0c... [-c server.toml] [-s secret] [-t minutes]
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/fleetzen/internal/flagx"
	"github.com/dmitrijs2005/fleetzen/internal/server/auth"
	"github.com/dmitrijs2005/fleetzen/internal/server/config"
)

func main() {
	args := os.Args[1:]
	cfg := config.LoadConfig(args)

	fs := flag.NewFlagSet("tokengen", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	agentID := fs.String("agent", "", "agent id (required)")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-agent", "--agent"})); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *agentID == "" {
		fmt.Fprintln(os.Stderr, "usage: tokengen -agent <id> [-c config] [-s secret] [-t minutes]")
		os.Exit(2)
	}

	token, err := auth.GenerateToken(*agentID, []byte(cfg.SecretKey), cfg.AccessTokenValidityDuration)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
