package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/datum-exporter/internal/auth"
	"github.com/webitel/datum-exporter/internal/errors"
)

func TestTranslationsLocalizeAuthErrors(t *testing.T) {
	tr, err := translations()
	require.NoError(t, err)

	denied := errors.NewPermissionForbiddenError(auth.NodeAccessDeniedID, "")
	denied.SetTranslationParams(map[string]any{"Nodes": []int64{3}})
	denied.Translate(tr)

	assert.Equal(t, "Access to nodes [3] is not permitted", denied.GetDetailedError())
	assert.Equal(t, "export.policy.unknown", tr("export.policy.unknown"))
}
