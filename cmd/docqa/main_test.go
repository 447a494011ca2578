package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestSetupLogger(t *testing.T) {
	newApp := func() *cli.App {
		return &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "log-level",
					Aliases: []string{"l"},
					Value:   "info",
				},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error { return nil },
		}
	}

	t.Run("valid log levels", func(t *testing.T) {
		testCases := []struct {
			input    string
			expected slog.Level
		}{
			{"debug", slog.LevelDebug},
			{"info", slog.LevelInfo},
			{"warn", slog.LevelWarn},
			{"error", slog.LevelError},
		}

		for _, tc := range testCases {
			t.Run(tc.input, func(t *testing.T) {
				err := newApp().Run([]string{"test", "--log-level", tc.input})
				require.NoError(t, err)
			})
		}
	})

	t.Run("case insensitive log levels", func(t *testing.T) {
		for _, tc := range []string{"DEBUG", "Info", "WaRn", "ERROR"} {
			t.Run(tc, func(t *testing.T) {
				err := newApp().Run([]string{"test", "--log-level", tc})
				require.NoError(t, err)
			})
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		err := newApp().Run([]string{"test", "--log-level", "loud"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("short alias", func(t *testing.T) {
		err := newApp().Run([]string{"test", "-l", "debug"})
		require.NoError(t, err)
	})
}

func TestAskCommand_RequiresQuestion(t *testing.T) {
	app := &cli.App{
		Name: "test",
		Commands: []*cli.Command{
			{
				Name:   "ask",
				Action: askCommand,
				Flags: append(dataFlags(),
					&cli.StringFlag{Name: "module", Aliases: []string{"m"}, Required: true},
					&cli.StringFlag{Name: "user", Value: "cli"},
				),
			},
		},
	}

	err := app.Run([]string{"test", "ask", "--module", "42"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "question is required")
}

func TestSeedCommand_RequiresDirectory(t *testing.T) {
	app := &cli.App{
		Name: "test",
		Commands: []*cli.Command{
			{
				Name:   "seed",
				Action: seedCommand,
				Flags: append(dataFlags(),
					&cli.StringFlag{Name: "module", Aliases: []string{"m"}, Required: true},
				),
			},
		},
	}

	err := app.Run([]string{"test", "seed", "--module", "42"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory is required")
}
