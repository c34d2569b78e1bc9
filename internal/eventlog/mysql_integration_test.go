//go:build integration

package eventlog_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tphakala/odeflow/internal/conf"
	"github.com/tphakala/odeflow/internal/eventlog"
	"github.com/tphakala/odeflow/internal/ode"
	"github.com/tphakala/odeflow/internal/testutil/containers"
)

var (
	mysqlContainer *containers.MySQLContainer
	testDB         *gorm.DB
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	mysqlContainer, err = containers.NewMySQLContainer(ctx, nil)
	if err != nil {
		panic("failed to create MySQL container: " + err.Error())
	}

	testDB, err = eventlog.Open(conf.EventLogSettings{Driver: "mysql", DSN: mysqlContainer.GetDSN()})
	if err != nil {
		_ = mysqlContainer.Terminate(context.Background())
		panic("failed to open event log: " + err.Error())
	}

	code := m.Run()

	_ = eventlog.Close(testDB)
	if err := mysqlContainer.Terminate(context.Background()); err != nil {
		panic("failed to terminate MySQL container: " + err.Error())
	}
	os.Exit(code)
}

func TestMySQL_SinkAndQueries(t *testing.T) {
	repo := eventlog.NewRepository(testDB)
	_, err := repo.DeleteAll(t.Context())
	require.NoError(t, err)

	sink := eventlog.NewSink(repo)
	now := time.Now().UTC().Truncate(time.Second)
	for i, trigger := range []string{"gate", "gate", "dock"} {
		require.NoError(t, sink.Deliver(t.Context(), ode.Payload{
			ID:          uuid.NewString(),
			Trigger:     trigger,
			Kind:        ode.KindSummation,
			SourceID:    1,
			FrameNumber: uint64(i),
			Count:       uint64(i + 1),
			Timestamp:   now.Add(time.Duration(i) * time.Second),
		}))
	}

	items, total, err := repo.List(t.Context(), eventlog.Filter{Trigger: "gate"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, uint64(1), items[0].FrameNumber, "newest first")

	counts, err := repo.CountByTrigger(t.Context(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []eventlog.TriggerCount{
		{TriggerName: "dock", Total: 1},
		{TriggerName: "gate", Total: 2},
	}, counts)

	n, err := repo.DeleteBefore(t.Context(), now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
