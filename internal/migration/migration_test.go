package migration

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	paymentdomain "github.com/smallbiznis/levy/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMigrationFilesArePaired(t *testing.T) {
	names, err := MigrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups, downs := 0, 0
	for _, name := range names {
		switch {
		case len(name) > 7 && name[len(name)-7:] == ".up.sql":
			ups++
		case len(name) > 9 && name[len(name)-9:] == ".down.sql":
			downs++
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
	assert.Equal(t, "000001_revenue_schedules.down.sql", names[0])
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	require.Error(t, RunMigrations(nil))
}

func TestAutoMigrateEnforcesPaymentUniqueness(t *testing.T) {
	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(conn))

	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	first := paymentdomain.Payment{
		ID: 1, PayerID: "user-1", ScheduleID: 100, ScheduleName: "Market Levy", Recurrence: "monthly",
		Amount: 5000, Currency: "NGN", PeriodReference: "2024-03", GatewayReference: "ref-1",
		GatewayProvider: "paystack", IdempotencyKey: "paystack:ref-1", Status: paymentdomain.StatusSuccess, CreatedAt: now,
	}
	require.NoError(t, conn.Create(&first).Error)

	sameGateway := first
	sameGateway.ID = 2
	sameGateway.IdempotencyKey = "other-key"
	require.Error(t, conn.Create(&sameGateway).Error)

	samePeriod := first
	samePeriod.ID = 3
	samePeriod.GatewayReference = "ref-2"
	samePeriod.IdempotencyKey = "paystack:ref-2"
	require.NoError(t, conn.Create(&samePeriod).Error)
}
