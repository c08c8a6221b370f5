package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mx-space/authgate/internal/app"
	"github.com/mx-space/authgate/internal/config"
	"github.com/mx-space/authgate/internal/pkg/jwt"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue or inspect session tokens",
}

var issueFlags struct {
	subject   string
	username  string
	name      string
	sessionID string
	ttl       time.Duration
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Sign a session token with the configured secret",
	Long: `Sign a session token with the configured secret.

Without --session the token carries no session id and cannot be revoked
through the registry; use it for local testing only.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		codec, err := loadCodec()
		if err != nil {
			return err
		}
		token, _, err := codec.Issue(jwt.SessionPayload{
			SubjectID:   issueFlags.subject,
			Username:    issueFlags.username,
			DisplayName: issueFlags.name,
			SessionID:   issueFlags.sessionID,
		}, issueFlags.ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var tokenVerifyCmd = &cobra.Command{
	Use:   "verify [token]",
	Short: "Verify a token and print its payload; reads stdin when no token is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codec, err := loadCodec()
		if err != nil {
			return err
		}
		var raw string
		if len(args) == 1 {
			raw = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.New("no token given")
			}
			raw = line
		}

		p, err := codec.Verify(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("token rejected: %s", jwt.KindOf(err))
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

func init() {
	f := tokenIssueCmd.Flags()
	f.StringVar(&issueFlags.subject, "subject", "", "Subject id (GitHub user id)")
	f.StringVar(&issueFlags.username, "username", "", "Username")
	f.StringVar(&issueFlags.name, "name", "", "Display name")
	f.StringVar(&issueFlags.sessionID, "session", "", "Session id to bind the token to")
	f.DurationVar(&issueFlags.ttl, "ttl", 0, "Lifetime (default token.ttl)")
	_ = tokenIssueCmd.MarkFlagRequired("subject")

	tokenCmd.AddCommand(tokenIssueCmd, tokenVerifyCmd)
}

func loadCodec() (*jwt.Codec, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return app.NewCodec(cfg)
}

