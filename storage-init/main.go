// Command storage-init provisions the Azure table and queue used by the
// azure task store. It is safe to run repeatedly.
package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

const queueAlreadyExists = "QueueAlreadyExists"

// resources names what the board's azure store expects to exist.
type resources struct {
	TasksTable  string
	EventsQueue string
}

func resourcesFromEnv() (resources, error) {
	r := resources{
		TasksTable:  os.Getenv("TASKS_TABLE"),
		EventsQueue: os.Getenv("TASK_EVENTS_QUEUE"),
	}
	if r.TasksTable == "" {
		return r, errors.New("missing TASKS_TABLE")
	}
	return r, nil
}

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}
	res, err := resourcesFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	log.WithFields(log.Fields{"table": res.TasksTable, "queue": res.EventsQueue}).Info("storage init starting")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := ensureTable(ctx, connStr, res.TasksTable); err != nil {
		log.Fatalf("create table %s: %v", res.TasksTable, err)
	}
	if res.EventsQueue != "" {
		if err := ensureQueue(ctx, connStr, res.EventsQueue); err != nil {
			log.Fatalf("create queue %s: %v", res.EventsQueue, err)
		}
	} else {
		log.Info("TASK_EVENTS_QUEUE not set; skipping change feed queue")
	}

	log.Info("storage init complete")
}

func ensureTable(ctx context.Context, connStr, name string) error {
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

func ensureQueue(ctx context.Context, connStr, name string) error {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
	if err != nil {
		return err
	}
	_, err = q.Create(ctx, nil)
	if alreadyExists(err, queueAlreadyExists) {
		log.WithField("queue", name).Debug("queue exists")
		return nil
	}
	return err
}

// alreadyExists reports whether err is an Azure response error with code.
func alreadyExists(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
