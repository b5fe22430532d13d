// Command storage-init creates the Azure tables and queue the API expects.
package main

import (
	"context"
	"errors"
	"os"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}
	tasksTable := os.Getenv("TASKS_TABLE")
	if tasksTable == "" {
		tasksTable = "Tasks"
	}

	membersTable := os.Getenv("MEMBERS_TABLE")
	if membersTable == "" {
		membersTable = "OrgMembers"
	}

	ctx := context.Background()
	for _, table := range []string{tasksTable, membersTable} {
		if err := createTable(ctx, connStr, table); err != nil {
			log.Fatalf("create table %s: %v", table, err)
		}
	}
	if queue := os.Getenv("EVENTS_QUEUE"); queue != "" {
		if err := createQueue(ctx, connStr, queue); err != nil {
			log.Fatalf("create queue %s: %v", queue, err)
		}
	}
	log.Info("storage init complete")
}

func createTable(ctx context.Context, connStr, name string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	_, err = svc.NewClient(name).CreateTable(ctx, nil)
	if alreadyExists(err, string(aztables.TableAlreadyExists)) {
		log.WithField("table", name).Debug("table exists")
		return nil
	}
	return err
}

func createQueue(ctx context.Context, connStr, name string) error {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
	if err != nil {
		return err
	}
	_, err = q.Create(ctx, nil)
	if alreadyExists(err, "QueueAlreadyExists") {
		log.WithField("queue", name).Debug("queue exists")
		return nil
	}
	return err
}

func alreadyExists(err error, code string) bool {
	var respErr *azcore.ResponseError
	return err != nil && errors.As(err, &respErr) && respErr.ErrorCode == code
}
