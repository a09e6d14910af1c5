package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	mongoOnce sync.Once
	mongoURI  string
	mongoErr  error
)

// EventStoreURI returns the URI of a shared MongoDB instance backing the
// weft event store tests. Tests are skipped when Docker is unavailable or
// -short is set.
func EventStoreURI(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("weft: mongo event store tests need Docker, skipped in short mode")
	}

	mongoOnce.Do(func() {
		mongoURI, mongoErr = startEventStoreMongo()
	})
	if mongoErr != nil {
		t.Skipf("weft: mongo event store unavailable: %v", mongoErr)
	}
	return mongoURI
}

func startEventStoreMongo() (uri string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("weft mongo container panicked: %v", r)
		}
	}()

	mongoC, err := testcontainers.Run(
		ctx, "mongo:7",
		testcontainers.WithExposedPorts("27017/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("27017/tcp"),
			wait.ForLog("Waiting for connections"),
		),
	)
	if err != nil {
		return "", fmt.Errorf("start weft mongo container: %w", err)
	}

	// The container is left to Testcontainers' reaper at process exit.
	endpoint, err := mongoC.Endpoint(ctx, "mongodb")
	if err != nil {
		_ = mongoC.Terminate(context.Background())
		return "", fmt.Errorf("resolve weft mongo endpoint: %w", err)
	}
	return endpoint, nil
}
