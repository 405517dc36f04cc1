package throttle_test

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adamwoolhether/httpmulti/client/throttle"
)

func ExampleNew() {
	l, err := throttle.New(
		throttle.Config{RPS: 10, Burst: 5},
		func() *slog.Logger { return slog.Default() },
	)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	if err := l.Wait(context.Background(), "https://example.com"); err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println("request admitted")
	// Output: request admitted
}
