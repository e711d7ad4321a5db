package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/operous/opsassist/config"
	"github.com/operous/opsassist/internal/runtime"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a JWT for the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		secret, err := runtime.LoadJWTSecret(cfg)
		if err != nil {
			return err
		}
		tok, err := runtime.SignJWT(tokenSubject, secret, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "cli", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
