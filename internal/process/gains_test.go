package process

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/adm-engine-worker/pkg/schema"
)

func TestParseGainMappingMode(t *testing.T) {
	mode, err := ParseGainMappingMode("")
	require.NoError(t, err)
	assert.Equal(t, GainMappingFirst, mode)

	mode, err = ParseGainMappingMode(" ALL ")
	require.NoError(t, err)
	assert.Equal(t, GainMappingAll, mode)

	_, err = ParseGainMappingMode("every")
	var modeErr *UnknownGainModeError
	require.True(t, errors.As(err, &modeErr), "expected UnknownGainModeError, got %v", err)
	assert.Equal(t, GainMappingMode("every"), modeErr.Mode)
}

func TestSelectGainMappingUnknownModeIsPermanent(t *testing.T) {
	_, _, err := SelectGainMapping([]string{"AO_1001=-3"}, GainMappingMode("bogus"))

	var modeErr *UnknownGainModeError
	require.True(t, errors.As(err, &modeErr), "expected UnknownGainModeError, got %v", err)
	assert.Equal(t, schema.FailureTypePermanent, Classify(err))
	assert.Equal(t, schema.FailureTypePermanent, Classify(fmt.Errorf("select gains: %w", err)))
}

func TestSelectGainMappingFirst(t *testing.T) {
	got, dropped, err := SelectGainMapping([]string{"0.5", "AO_1002=3", "AO_1003=-1"}, GainMappingFirst)
	require.NoError(t, err)
	assert.Equal(t, "0.5", got)
	assert.Equal(t, 2, dropped)
}

func TestSelectGainMappingEmpty(t *testing.T) {
	for _, mode := range []GainMappingMode{GainMappingFirst, GainMappingAll} {
		got, dropped, err := SelectGainMapping(nil, mode)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Zero(t, dropped)
	}
}

func TestSelectGainMappingAllEncodesEngineFormat(t *testing.T) {
	got, dropped, err := SelectGainMapping([]string{"AO_1001=-3", "AO_1002=2.5"}, GainMappingAll)
	require.NoError(t, err)
	assert.Equal(t, `["AO_1001=-3", "AO_1002=2.5"]`, got)
	assert.Zero(t, dropped)
}

func TestSelectGainMappingAllRejectsMalformedEntries(t *testing.T) {
	cases := []string{"0.5", "=3", "AO_1001=loud", `AO_"1=3`, "AO_1,AO_2=3"}
	for _, entry := range cases {
		_, _, err := SelectGainMapping([]string{"APR_1001=0", entry}, GainMappingAll)

		var gainErr *GainMappingError
		require.True(t, errors.As(err, &gainErr), "entry %q: expected GainMappingError, got %v", entry, err)
		assert.Equal(t, 1, gainErr.Index)
		assert.Equal(t, entry, gainErr.Entry)
	}
}
