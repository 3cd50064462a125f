package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/studyclub/authpipe/apitest"
)

var fakeAPICmd = &cobra.Command{
	Use:   "fakeapi",
	Short: "Serve an in-process auth server for trying the client",
	Long: `Serve the test API: POST /auth/login, POST /auth/refresh, POST /oauth/token
and the protected /api/whoami and /api/echo routes. Access tokens are short
lived so refreshes happen quickly.`,
	RunE: runFakeAPI,
}

func init() {
	fakeAPICmd.Flags().String("addr", "127.0.0.1:8080", "Listen address")
	fakeAPICmd.Flags().Duration("access-ttl", 30*time.Second, "Access token lifetime")
	fakeAPICmd.Flags().StringToString("user", map[string]string{"alice": "wonderland"}, "Accepted credentials as user=password")
	fakeAPICmd.Flags().Bool("keep-refresh-token", false, "Reuse refresh tokens instead of rotating them")

	rootCmd.AddCommand(fakeAPICmd)
}

func runFakeAPI(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	ttl, _ := cmd.Flags().GetDuration("access-ttl")
	users, _ := cmd.Flags().GetStringToString("user")
	keep, _ := cmd.Flags().GetBool("keep-refresh-token")

	api, err := apitest.New(apitest.Config{
		Users:            users,
		AccessTTL:        ttl,
		KeepRefreshToken: keep,
		Logger:           log,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.WithFields(logrus.Fields{
		"addr":       addr,
		"access_ttl": ttl,
		"users":      len(users),
	}).Info("fake API listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info("shutting down fake API")
	return srv.Shutdown(shutdownCtx)
}
