package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/hust/bookingclient/config"
	"github.com/hust/bookingclient/core"
	"github.com/hust/bookingclient/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "bookingctl",
		Usage: "sign in to the car rental booking API and manage the account",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "metrics-file",
				Usage: "write pipeline metrics in text format to this file on exit",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "sign in with email and password",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"BOOKING_PASSWORD"}},
				},
				Action: withRuntime(func(c *cli.Context, rt *runtime) error {
					identity, err := rt.svc.Login(c.Context, c.String("email"), c.String("password"))
					if err != nil {
						return err
					}
					return printJSON(c, identity)
				}),
			},
			{
				Name:  "register",
				Usage: "create an account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "phone"},
					&cli.StringFlag{Name: "full-name", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"BOOKING_PASSWORD"}},
				},
				Action: withRuntime(func(c *cli.Context, rt *runtime) error {
					err := rt.svc.Register(c.Context, core.Registration{
						Email:    c.String("email"),
						Phone:    c.String("phone"),
						FullName: c.String("full-name"),
						Password: c.String("password"),
					})
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, "registered, you can now log in")
					return nil
				}),
			},
			{
				Name:  "whoami",
				Usage: "print the cached identity without calling the API",
				Action: withRuntime(func(c *cli.Context, rt *runtime) error {
					identity, ok := rt.svc.Identity()
					if !ok {
						return core.ErrNoSession
					}
					return printJSON(c, identity)
				}),
			},
			{
				Name:  "profile",
				Usage: "fetch the profile of the signed-in user",
				Action: withRuntime(func(c *cli.Context, rt *runtime) error {
					identity, err := rt.svc.Profile(c.Context)
					if err != nil {
						return err
					}
					return printJSON(c, identity)
				}),
			},
			{
				Name:  "update-profile",
				Usage: "change name and phone number",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "full-name", Required: true},
					&cli.StringFlag{Name: "phone", Required: true},
				},
				Action: withRuntime(func(c *cli.Context, rt *runtime) error {
					identity, err := rt.svc.UpdateProfile(c.Context, core.ProfileUpdate{
						FullName: c.String("full-name"),
						Phone:    c.String("phone"),
					})
					if err != nil {
						return err
					}
					return printJSON(c, identity)
				}),
			},
			{
				Name:  "change-password",
				Usage: "change the account password",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "current", Required: true},
					&cli.StringFlag{Name: "new", Required: true},
				},
				Action: withRuntime(func(c *cli.Context, rt *runtime) error {
					if err := rt.svc.ChangePassword(c.Context, c.String("current"), c.String("new")); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, "password changed")
					return nil
				}),
			},
			{
				Name:  "logout",
				Usage: "end the session",
				Action: withRuntime(func(c *cli.Context, rt *runtime) error {
					return rt.svc.Logout(c.Context)
				}),
			},
			{
				Name:  "status",
				Usage: "print the session state",
				Action: withRuntime(func(c *cli.Context, rt *runtime) error {
					out := map[string]any{"state": rt.svc.State().String()}
					if identity, ok := rt.svc.Identity(); ok {
						out["identity"] = identity
					}
					return printJSON(c, out)
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

func withRuntime(action func(c *cli.Context, rt *runtime) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		log := logging.New(cfg.LogLevel, c.App.ErrWriter)

		rt, err := newRuntime(c.Context, cfg, log)
		if err != nil {
			return err
		}
		defer rt.Close()

		runErr := action(c, rt)

		if path := c.String("metrics-file"); path != "" {
			if err := prometheus.WriteToTextfile(path, rt.registry); err != nil {
				log.Warn("failed to write metrics", "error", err)
			}
		}
		return runErr
	}
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func describe(err error) string {
	var apiErr *core.APIError
	switch {
	case errors.Is(err, core.ErrSessionEnded):
		return "session expired, please log in again"
	case errors.Is(err, core.ErrNoSession):
		return "not logged in"
	case errors.Is(err, core.ErrInvalidCredentials):
		return "invalid email or password"
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	default:
		return err.Error()
	}
}
