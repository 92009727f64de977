package kabe

import (
	"context"
	"image"
	"runtime"
)

// Job is an image to be converted by ConvertBatch. If Image is nil, the
// image is decoded from Path.
type Job struct {
	Name  string
	Path  string
	Image image.Image
}

// JobResult is the outcome of a Job.
type JobResult struct {
	Name   string
	Result *Result
	Err    error
}

type batchJob struct {
	job    Job
	output chan<- JobResult
}

// ConvertBatch converts jobs with a pool of workers. Results are delivered in
// the order the jobs were received, and the returned channel is closed once
// jobs is closed and drained. Jobs not yet received when ctx is done are not
// converted.
func ConvertBatch(ctx context.Context, conv *Converter, jobs <-chan Job,
	workers int) <-chan JobResult {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	inbox := make(chan batchJob, workers*2)
	pending := make(chan chan JobResult, workers*2)
	output := make(chan JobResult)

	for i := 0; i < workers; i++ {
		go batchWorker(conv, inbox)
	}

	go func() {
		defer close(inbox)
		defer close(pending)

		for {
			select {
			case <-ctx.Done():
				return
			case job, more := <-jobs:
				if !more {
					return
				}

				result := make(chan JobResult, 1)
				select {
				case pending <- result:
				case <-ctx.Done():
					return
				}

				inbox <- batchJob{
					job:    job,
					output: result,
				}
			}
		}
	}()

	go func() {
		defer close(output)

		for result := range pending {
			res := <-result
			select {
			case output <- res:
			case <-ctx.Done():
				for result := range pending {
					<-result
				}
				return
			}
		}
	}()

	return output
}

func batchWorker(conv *Converter, inbox <-chan batchJob) {
	for job := range inbox {
		img := job.job.Image
		if img == nil {
			var err error
			img, err = DecodeFile(job.job.Path)
			if err != nil {
				job.output <- JobResult{Name: job.job.Name, Err: err}
				continue
			}
		}

		res, err := conv.Convert(img)
		job.output <- JobResult{
			Name:   job.job.Name,
			Result: res,
			Err:    err,
		}
	}
}
