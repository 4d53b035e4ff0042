package converter

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Job is one file conversion of a batch.
type Job struct {
	Input  string
	Output string
	// Check, when set, vets the input bytes before anything is converted
	// or written. A non-nil error fails the job.
	Check func(data []byte) error
}

// ConvertBatch runs independent file conversions with at most limit running
// at once (limit < 1 means no limit). Each job reports its own outcome in
// the result at the same index; the returned error is only set when ctx
// ends before every job started.
func (c *Converter) ConvertBatch(ctx context.Context, jobs []Job, template []byte, limit int) ([]ConversionResult, error) {
	results := make([]ConversionResult, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, job := range jobs {
		results[i].Filename = job.Output
		results[i].Format = DetectFormat(job.Output)

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Error = err
				return err
			}
			res, err := c.convertFile(job.Input, job.Output, template, job.Check)
			if err != nil {
				c.logger.Printf("batch: %s: %v", job.Input, err)
				results[i].Error = err
				return nil
			}
			results[i] = *res
			return nil
		})
	}

	return results, g.Wait()
}
