package cmd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandErrorCarriesExitCode(t *testing.T) {
	cause := errors.New("no such file")
	err := fmt.Errorf("running: %w", withExitCode(foundry.ExitFileNotFound, "Failed to read records", cause))

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, foundry.ExitFileNotFound, cmdErr.Code)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Failed to read records: no such file", cmdErr.Error())

	bare := &CommandError{Code: foundry.ExitFailure, Msg: "Batch finished with failures"}
	assert.Equal(t, "Batch finished with failures", bare.Error())
}
