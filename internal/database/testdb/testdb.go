// Package testdb starts a disposable MySQL container for integration tests.
// Tests call Start and skip themselves when DOCTYPE_TEST_MYSQL is unset, so
// the unit suite stays runnable without Docker.
package testdb

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	image    = "mysql:8.0"
	database = "doctype_test"
	password = "testpw"
)

// Start launches a MySQL container and returns a connected gorm handle. The
// container terminates via t.Cleanup. Tests are skipped unless
// DOCTYPE_TEST_MYSQL=1.
func Start(t *testing.T) *gorm.DB {
	t.Helper()
	if os.Getenv("DOCTYPE_TEST_MYSQL") != "1" {
		t.Skip("set DOCTYPE_TEST_MYSQL=1 to run MySQL integration tests")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"3306/tcp"},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": password,
				"MYSQL_DATABASE":      database,
			},
			WaitingFor: wait.ForListeningPort("3306/tcp").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start MySQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate MySQL container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "3306/tcp")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn := fmt.Sprintf("root:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		password, host, port.Port(), database)

	// The port can be open before MySQL accepts authenticated connections.
	var db *gorm.DB
	deadline := time.Now().Add(60 * time.Second)
	for {
		db, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("failed to connect to MySQL: %v", err)
		}
		time.Sleep(2 * time.Second)
	}
	return db
}
