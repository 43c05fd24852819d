package workflow

import (
	"sync"

	"bitbucket.org/mmdatafocus/expense_recon/config"
	"bitbucket.org/mmdatafocus/expense_recon/extract"
	"bitbucket.org/mmdatafocus/expense_recon/models"
)

type extractionJob struct {
	docType  models.DocumentType
	filename string
	raw      []byte
}

type extractionOutcome struct {
	pageCount int
	result    *extract.Result
	err       error
}

// runExtractionPool runs pattern extraction for a batch of documents on a
// bounded worker pool. Extraction is pure CPU work, so the pool size does not
// touch DB connection limits. Outcomes come back in job order regardless of
// completion order.
func runExtractionPool(jobs []extractionJob, workers int) []extractionOutcome {
	if workers <= 0 {
		workers = config.IntFromEnv("RECON_EXTRACT_WORKERS", 4)
	}
	// A zero or negative pool would block the unbuffered job channel forever.
	if workers < 1 {
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	outcomes := make([]extractionOutcome, len(jobs))
	indexes := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				outcomes[i] = extractOne(jobs[i])
			}
		}()
	}
	for i := range jobs {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return outcomes
}

func extractOne(job extractionJob) extractionOutcome {
	pages, err := extract.ExtractPages(job.filename, job.raw)
	if err != nil {
		return extractionOutcome{err: err}
	}

	var result *extract.Result
	if job.docType == models.DocumentTypeLedger {
		result = extract.NewLedgerExtractor().Extract(pages)
	} else {
		result = extract.NewReceiptExtractor().Extract(pages)
	}
	return extractionOutcome{pageCount: len(pages), result: result}
}
