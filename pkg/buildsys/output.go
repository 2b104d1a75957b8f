package buildsys

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/MosesMendoza/packaging-cli/pkg/logging"
)

func log(ctx context.Context) *zerolog.Logger {
	return logging.Log(ctx)
}
