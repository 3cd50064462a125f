package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/studyclub/authpipe"
	"github.com/studyclub/authpipe/transport"
)

var requestCmd = &cobra.Command{
	Use:   "request [METHOD] PATH",
	Short: "Send an authenticated request",
	Long: `Send one request with the stored session. An expired access token is
refreshed and the request replayed once.

  authpipe request /api/whoami
  authpipe request POST /api/echo -d '{"hello":"world"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRequest,
}

func init() {
	requestCmd.Flags().StringP("data", "d", "", "JSON request body")
	requestCmd.Flags().StringArrayP("header", "H", nil, "Extra header as 'Key: Value' (repeatable)")
	requestCmd.Flags().StringToString("query", nil, "Query parameters as key=value pairs")
	requestCmd.Flags().BoolP("include", "i", false, "Print the response status line")

	rootCmd.AddCommand(requestCmd)
}

func runRequest(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(cmd, args)
	if err != nil {
		return err
	}

	client, release, err := newClient(cfg.clientConfig(), cfg.Session.RedisAddr, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer release()

	ctx := authpipe.WithReturnPath(cmd.Context(), req.Path)
	resp, err := client.Do(ctx, req)
	if resp != nil {
		out := cmd.OutOrStdout()
		if include, _ := cmd.Flags().GetBool("include"); include {
			fmt.Fprintf(out, "%d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		fmt.Fprintln(out, strings.TrimRight(string(resp.Body), "\n"))
	}
	if errors.Is(err, authpipe.ErrSessionTerminated) {
		return fmt.Errorf("session ended, run 'authpipe login': %w", err)
	}
	return err
}

func buildRequest(cmd *cobra.Command, args []string) (transport.Request, error) {
	req := transport.Request{Method: http.MethodGet, Path: args[0]}
	if len(args) == 2 {
		req.Method = strings.ToUpper(args[0])
		req.Path = args[1]
	}
	if !strings.HasPrefix(req.Path, "/") {
		return transport.Request{}, fmt.Errorf("path %q must start with /", req.Path)
	}

	headers, _ := cmd.Flags().GetStringArray("header")
	for _, h := range headers {
		key, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return transport.Request{}, fmt.Errorf("invalid header %q", h)
		}
		req = req.WithHeader(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	query, _ := cmd.Flags().GetStringToString("query")
	if len(query) > 0 {
		req.Query = query
	}

	data, _ := cmd.Flags().GetString("data")
	if data != "" {
		if !json.Valid([]byte(data)) {
			return transport.Request{}, errors.New("request body is not valid JSON")
		}
		req.Body = json.RawMessage(data)
		req = req.WithHeader("Content-Type", "application/json")
	}
	return req, nil
}
