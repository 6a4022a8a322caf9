package main

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"medkit-workers/internal/common/observability"
)

// instrument records every handled job of taskType on the otel meter.
func instrument(obs *observability.Observability, taskType string, next worker.JobHandler) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		start := time.Now()
		defer func() { obs.RecordJob(context.Background(), taskType, time.Since(start)) }()
		next(client, job)
	}
}
