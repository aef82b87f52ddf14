package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/fleetzen/internal/client/gateway"
	"github.com/dmitrijs2005/fleetzen/internal/netx"
)

func newGatewayCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Send control messages to the running gateway",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "skip-waiting",
			Short: "Activate the waiting cache version and delete old caches",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				reply, err := sendGatewayMessage(cmd, s.app.Config.GatewayAddr, gateway.Message{Type: gateway.MessageSkipWaiting})
				if err != nil {
					return err
				}
				green.Fprintf(cmd.OutOrStdout(), "Active cache version: %s\n", reply.Active)
				return nil
			},
		},
		&cobra.Command{
			Use:   "cache <url>...",
			Short: "Fetch URLs into the runtime cache",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				reply, err := sendGatewayMessage(cmd, s.app.Config.GatewayAddr, gateway.Message{Type: gateway.MessageCacheURLs, URLs: args})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d cached\n", reply.Cached, len(args))
				return nil
			},
		},
	)
	return cmd
}

func sendGatewayMessage(cmd *cobra.Command, addr string, msg gateway.Message) (*gateway.MessageReply, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, "http://"+addr+gateway.MessagePath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := (&http.Client{Timeout: time.Minute}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway not reachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()
	if err := netx.CheckResponse(resp); err != nil {
		return nil, err
	}

	var reply gateway.MessageReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode gateway reply: %w", err)
	}
	return &reply, nil
}
