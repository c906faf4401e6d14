package down_test

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/opst/trackfab/cmd/track/subcommands/internal/commandline"
	"github.com/opst/trackfab/cmd/track/subcommands/stack/down"
	config "github.com/opst/trackfab/pkg/configs/stack"
)

func TestDownCommand(t *testing.T) {
	t.Run("it tears the stack down", func(t *testing.T) {
		called := 0
		var gotKeepData bool
		testee := down.Task(func(
			ctx context.Context, logger *log.Logger, conf *config.StackConfig, keepData bool,
		) error {
			called += 1
			gotKeepData = keepData
			return nil
		})

		err := testee(
			context.Background(),
			commandline.MockCommandline[down.Flag]{
				Fullname_: "track stack down",
				Stdout_:   io.Discard,
				Stderr_:   io.Discard,
				Flags_:    down.Flag{},
			},
			nil,
		)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if called != 1 {
			t.Errorf("down is called %d times", called)
		}
		if gotKeepData {
			t.Error("--keep-data should default to false")
		}
	})

	t.Run("--keep-data is passed through", func(t *testing.T) {
		var gotKeepData bool
		testee := down.Task(func(
			ctx context.Context, logger *log.Logger, conf *config.StackConfig, keepData bool,
		) error {
			gotKeepData = keepData
			return nil
		})

		err := testee(
			context.Background(),
			commandline.MockCommandline[down.Flag]{
				Fullname_: "track stack down",
				Stdout_:   io.Discard,
				Stderr_:   io.Discard,
				Flags_:    down.Flag{KeepData: true},
			},
			nil,
		)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if !gotKeepData {
			t.Error("--keep-data is not passed through")
		}
	})

	t.Run("when the config file is missing, it does not run teardown", func(t *testing.T) {
		called := 0
		testee := down.Task(func(
			ctx context.Context, logger *log.Logger, conf *config.StackConfig, keepData bool,
		) error {
			called += 1
			return nil
		})

		err := testee(
			context.Background(),
			commandline.MockCommandline[down.Flag]{
				Fullname_: "track stack down",
				Stdout_:   io.Discard,
				Stderr_:   io.Discard,
				Flags_: down.Flag{
					Config: filepath.Join(t.TempDir(), "no-such-config.yml"),
				},
			},
			nil,
		)
		if err == nil {
			t.Fatal("no error occured")
		}
		if called != 0 {
			t.Errorf("down is called %d times", called)
		}
	})

	t.Run("when teardown fails, the error is returned", func(t *testing.T) {
		expectedErr := errors.New("fake error")
		testee := down.Task(func(
			ctx context.Context, logger *log.Logger, conf *config.StackConfig, keepData bool,
		) error {
			return expectedErr
		})

		err := testee(
			context.Background(),
			commandline.MockCommandline[down.Flag]{
				Fullname_: "track stack down",
				Stdout_:   io.Discard,
				Stderr_:   io.Discard,
				Flags_:    down.Flag{},
			},
			nil,
		)
		if !errors.Is(err, expectedErr) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
