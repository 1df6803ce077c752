package core

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServices(t *testing.T) {
	db := &mockDB{}

	svcs := NewServices(db, zerolog.Nop())
	defer svcs.Audit.Close()

	require.NotNil(t, svcs)
	assert.NotNil(t, svcs.BackupJob)
	assert.NotNil(t, svcs.Tenant)
	assert.NotNil(t, svcs.Audit)
}
