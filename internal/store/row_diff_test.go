package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/forge/internal/models"
)

func TestJobRowChanged_NoDiffIsNoOp(t *testing.T) {
	current := models.Job{Name: "nightly sync", Remark: "runs at 2am"}
	desired := current

	assert.False(t, jobRowChanged(current, desired), "identical name/remark must not be reported as a change")
}

func TestJobRowChanged_NameOrRemarkDiffers(t *testing.T) {
	current := models.Job{Name: "nightly sync", Remark: "runs at 2am"}

	assert.True(t, jobRowChanged(current, models.Job{Name: "nightly sync v2", Remark: "runs at 2am"}))
	assert.True(t, jobRowChanged(current, models.Job{Name: "nightly sync", Remark: "runs at 3am"}))
}

func TestEnvironmentRowChanged_NoDiffIsNoOp(t *testing.T) {
	current := models.Environment{Name: "prod", Remark: "primary region"}
	desired := current

	assert.False(t, environmentRowChanged(current, desired), "identical name/remark must not be reported as a change")
}

func TestEnvironmentRowChanged_NameOrRemarkDiffers(t *testing.T) {
	current := models.Environment{Name: "prod", Remark: "primary region"}

	assert.True(t, environmentRowChanged(current, models.Environment{Name: "staging", Remark: "primary region"}))
	assert.True(t, environmentRowChanged(current, models.Environment{Name: "prod", Remark: "secondary region"}))
}
