//go:build integration

// Package testinfra starts throwaway MySQL servers for integration tests.
package testinfra

import (
	"context"
	"database/sql"
	"fmt"
	"os/exec"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	DefaultMySQLImage    = "mysql:8.0"
	DefaultMySQLPassword = "suite-test"
	DefaultMySQLDatabase = "sensores"
)

// MySQLContainer is a running MySQL server
type MySQLContainer struct {
	testcontainers.Container
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// DSN returns a go-sql-driver DSN for the container's database
func (c *MySQLContainer) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&multiStatements=false",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// Open connects to the container's database
func (c *MySQLContainer) Open(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("mysql", c.DSN())
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// SkipIfNoDocker skips the test when no Docker daemon is reachable
func SkipIfNoDocker(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

// StartMySQL starts a MySQL container and terminates it when the test ends
func StartMySQL(t *testing.T) *MySQLContainer {
	t.Helper()
	SkipIfNoDocker(t)

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        DefaultMySQLImage,
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": DefaultMySQLPassword,
			"MYSQL_DATABASE":      DefaultMySQLDatabase,
			"TZ":                  "UTC",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("3306/tcp"),
			wait.ForLog("ready for connections").WithOccurrence(2),
		).WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("create mysql container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "3306/tcp")
	if err != nil {
		t.Fatalf("get mapped port: %v", err)
	}

	mc := &MySQLContainer{
		Container: container,
		Host:      host,
		Port:      port.Int(),
		User:      "root",
		Password:  DefaultMySQLPassword,
		Database:  DefaultMySQLDatabase,
	}

	db := mc.Open(t)
	deadline := time.Now().Add(time.Minute)
	for {
		if err := db.PingContext(ctx); err == nil {
			break
		} else if time.Now().After(deadline) {
			t.Fatalf("mysql never became reachable: %v", err)
		}
		time.Sleep(time.Second)
	}
	return mc
}
