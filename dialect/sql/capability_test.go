package sql

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilityDefaults(t *testing.T) {
	cap := NewCapability()
	assert.Nil(t, cap.Version())
	assert.False(t, cap.SupportsOffsetFetch())
	assert.False(t, cap.SupportsMultiValuesInsert())
	assert.False(t, cap.DeprecateLargeTypes())
	assert.False(t, cap.DateTypesSupported())
	assert.False(t, cap.LegacySchemaAliasing())
	assert.True(t, cap.UseScopeIdentity())
	assert.Equal(t, "dbo", cap.DefaultSchema())
}

func TestCapabilityVersionThresholds(t *testing.T) {
	tests := []struct {
		version     string
		offsetFetch bool
		multiValues bool
		dateTypes   bool
		largeTypes  bool
	}{
		{"8.0.2039", false, false, false, false},
		{"9.0.1399.0", false, false, false, false},
		{"10.0.2531.0", false, true, true, false},
		{"10.50.1600.1", false, true, true, false},
		{"11.0.3000.0", true, true, true, true},
		{"15.0.2000.5", true, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			cap := NewCapability(WithServerVersion(tt.version))
			require.NotNil(t, cap.Version())
			assert.Equal(t, tt.offsetFetch, cap.SupportsOffsetFetch())
			assert.Equal(t, tt.multiValues, cap.SupportsMultiValuesInsert())
			assert.Equal(t, tt.dateTypes, cap.DateTypesSupported())
			assert.Equal(t, tt.largeTypes, cap.DeprecateLargeTypes())
		})
	}
}

func TestCapabilityProbe(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT CAST(SERVERPROPERTY('productversion') AS NVARCHAR(128))")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("11.0.3000.0"))

	cap := NewCapability()
	require.NoError(t, cap.Probe(context.Background(), Conn{db}))
	assert.True(t, cap.SupportsOffsetFetch())
	assert.Equal(t, "11.0.3000.0", cap.Version().Original())

	// A second probe is a no-op: no more queries expected.
	require.NoError(t, cap.Probe(context.Background(), Conn{db}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCapabilityProbeConcurrent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT CAST").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("13.0.4001.0"))

	cap := NewCapability()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cap.Probe(context.Background(), Conn{db})
		}()
	}
	wg.Wait()
	require.NotNil(t, cap.Version())
	assert.True(t, cap.SupportsOffsetFetch())
}

func TestCapabilityProbeError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT CAST").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("not-a-version"))

	cap := NewCapability()
	err = cap.Probe(context.Background(), Conn{db})
	require.Error(t, err)
	// Decisions stay conservative after a failed probe.
	assert.Nil(t, cap.Version())
	assert.False(t, cap.SupportsOffsetFetch())
}
