package eval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftctx/weft/pkg/eval"
)

func TestParseRecordSelection(t *testing.T) {
	sel, err := eval.ParseRecordSelection("1,3-4")
	require.NoError(t, err)
	assert.Equal(t, map[int]struct{}{0: {}, 2: {}, 3: {}}, sel.Indexes)
	assert.Equal(t, "1,3,4", sel.Normalized)
}

func TestParseRecordSelectionRejectsInvalid(t *testing.T) {
	_, err := eval.ParseRecordSelection("0")
	assert.Error(t, err)

	_, err = eval.ParseRecordSelection("5-2")
	assert.Error(t, err)

	_, err = eval.ParseRecordSelection("")
	assert.Error(t, err)
}
